// Пакет modefile — сохранение режима работы между перезапусками.
//
// Формат файла <data_dir>/mode.json:
//
//	{"mode": "ro", "updated_at": "2026-01-01T00:00:00Z", "updated_by": "admin"}
package modefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/storage/fsutil"
)

// FileName — имя файла режима в директории данных.
const FileName = "mode.json"

// ErrNotSaved — режим ещё ни разу не сохранялся.
var ErrNotSaved = errors.New("режим не сохранён")

// Data — содержимое mode.json.
type Data struct {
	Mode      mode.Mode `json:"mode"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Store — файл режима.
type Store struct {
	path string
}

// New создаёт Store для файла в директории dir.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path возвращает путь к файлу режима.
func (s *Store) Path() string {
	return s.path
}

// SaveMode атомарно записывает режим.
func (s *Store) SaveMode(m mode.Mode, updatedBy string) error {
	raw, err := json.MarshalIndent(Data{
		Mode:      m,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: updatedBy,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", FileName, err)
	}
	if err := fsutil.WriteFileAtomic(s.path, raw, 0o640); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", FileName, err)
	}
	return nil
}

// LoadMode читает сохранённый режим. Отсутствующий файл — ErrNotSaved.
func (s *Store) LoadMode() (mode.Mode, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotSaved
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения %s: %w", FileName, err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("ошибка десериализации %s: %w", FileName, err)
	}

	m, err := mode.ParseMode(string(data.Mode))
	if err != nil {
		return "", fmt.Errorf("невалидный режим в %s: %w", FileName, err)
	}
	return m, nil
}
