package kv

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore — реализация Store поверх файла SQLite (modernc.org/sqlite).
// Одно соединение: все операции сериализуются, UpdateAndFetch
// выполняется в транзакции.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	namespaces map[string]*sqliteNamespace
	logger     *slog.Logger
}

// OpenSQLite открывает (или создаёт) хранилище и применяет миграции.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	logger = logger.With(slog.String("component", "kv"))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища метаданных: %w", err)
	}

	if err := migrateSQLite(path, logger); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка подключения к SQLite %s: %w", path, err)
	}

	s := &SQLiteStore{
		db:         db,
		path:       path,
		namespaces: make(map[string]*sqliteNamespace, len(Namespaces)),
		logger:     logger,
	}
	for _, name := range Namespaces {
		s.namespaces[name] = &sqliteNamespace{db: db, name: name, table: "kv_" + name}
	}

	logger.Info("Хранилище метаданных открыто", slog.String("path", path))
	return s, nil
}

// migrateSQLite применяет SQL-миграции из embedded FS.
func migrateSQLite(path string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// Namespace возвращает пространство имён.
func (s *SQLiteStore) Namespace(name string) (Namespace, error) {
	ns, ok := s.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
	}
	return ns, nil
}

// Ping проверяет подключение.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CheckReady реализует проверку готовности для /health/ready.
func (s *SQLiteStore) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("хранилище метаданных недоступно: %v", err)
	}
	return "ok", "хранилище метаданных доступно"
}

type sqliteNamespace struct {
	db    *sql.DB
	name  string
	table string
}

func (n *sqliteNamespace) Name() string { return n.name }

func (n *sqliteNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := n.db.QueryRowContext(ctx, "SELECT value FROM "+n.table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: ошибка чтения ключа %q: %w", n.name, key, err)
	}
	return value, nil
}

func (n *sqliteNamespace) Insert(ctx context.Context, key string, value []byte) error {
	if _, err := n.db.ExecContext(ctx, n.upsertSQL(), key, value); err != nil {
		return fmt.Errorf("%s: ошибка записи ключа %q: %w", n.name, key, err)
	}
	return nil
}

func (n *sqliteNamespace) UpdateAndFetch(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: ошибка начала транзакции: %w", n.name, err)
	}
	defer tx.Rollback() //nolint:errcheck // после Commit возвращает ErrTxDone

	var old []byte
	err = tx.QueryRowContext(ctx, "SELECT value FROM "+n.table+" WHERE key = ?", key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: ошибка чтения ключа %q: %w", n.name, key, err)
	}

	updated, err := fn(old)
	if err != nil {
		return nil, err
	}

	if updated == nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+n.table+" WHERE key = ?", key); err != nil {
			return nil, fmt.Errorf("%s: ошибка удаления ключа %q: %w", n.name, key, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, n.upsertSQL(), key, updated); err != nil {
			return nil, fmt.Errorf("%s: ошибка записи ключа %q: %w", n.name, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: ошибка фиксации транзакции: %w", n.name, err)
	}
	return updated, nil
}

func (n *sqliteNamespace) Remove(ctx context.Context, key string) error {
	if _, err := n.db.ExecContext(ctx, "DELETE FROM "+n.table+" WHERE key = ?", key); err != nil {
		return fmt.Errorf("%s: ошибка удаления ключа %q: %w", n.name, key, err)
	}
	return nil
}

// Scan читает все строки до возврата: единственное соединение
// не должно оставаться занятым курсором.
func (n *sqliteNamespace) Scan(ctx context.Context) ([]Entry, error) {
	rows, err := n.db.QueryContext(ctx, "SELECT key, value FROM "+n.table+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("%s: ошибка сканирования: %w", n.name, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("%s: ошибка чтения строки: %w", n.name, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: ошибка сканирования: %w", n.name, err)
	}
	return entries, nil
}

// Flush выполняет checkpoint журнала SQLite в основной файл.
func (n *sqliteNamespace) Flush(ctx context.Context) error {
	if _, err := n.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("%s: ошибка flush: %w", n.name, err)
	}
	return nil
}

// upsertSQL сохраняет seq существующего ключа.
func (n *sqliteNamespace) upsertSQL() string {
	return "INSERT INTO " + n.table + " (key, value) VALUES (?, ?) " +
		"ON CONFLICT(key) DO UPDATE SET value = excluded.value"
}
