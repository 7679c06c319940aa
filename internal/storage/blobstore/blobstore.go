// Пакет blobstore — размещение блобов на файловой системе.
// Раскладка: <root>/content/<Category>/<случайное имя>.
// Единственная ссылка на блоб — поле blob_path записи метаданных.
package blobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/storage/fsutil"
)

// nameLength — длина случайного имени файла блоба.
const nameLength = 16

// contentDir — поддиректория корня с блобами.
const contentDir = "content"

// ErrOutsideRoot — путь блоба указывает за пределы корня хранилища.
var ErrOutsideRoot = errors.New("путь блоба вне корня хранилища")

// Store — файловое хранилище блобов.
type Store struct {
	// root — корневая директория (MM_DATA_DIR)
	root string
}

// New создаёт Store и проверяет доступность корня на запись.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь %s: %w", root, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, contentDir), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}
	if err := fsutil.CheckWritable(abs); err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Place записывает данные в поддиректорию категории под новым случайным
// именем и возвращает путь. Поддиректория создаётся при необходимости.
func (s *Store) Place(category model.Category, data []byte) (string, error) {
	dir := filepath.Join(s.root, contentDir, string(category))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	name, err := model.NewID(nameLength)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)

	if err := fsutil.WriteFileAtomic(path, data, 0o640); err != nil {
		return "", fmt.Errorf("ошибка записи блоба %s: %w", path, err)
	}
	return path, nil
}

// Read возвращает содержимое блоба целиком.
func (s *Store) Read(path string) ([]byte, error) {
	if err := s.checkPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения блоба %s: %w", path, err)
	}
	return data, nil
}

// Remove удаляет блоб. Отсутствующий файл не считается ошибкой.
func (s *Store) Remove(path string) error {
	if err := s.checkPath(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления блоба %s: %w", path, err)
	}
	return nil
}

// Exists проверяет наличие блоба на диске.
func (s *Store) Exists(path string) bool {
	if s.checkPath(path) != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Walk обходит все блобы всех категорий. Временные файлы пропускаются.
func (s *Store) Walk(fn func(path string, size int64) error) error {
	base := filepath.Join(s.root, contentDir)
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, fsutil.TmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, info.Size())
	})
}

// Root возвращает корневую директорию хранилища.
func (s *Store) Root() string {
	return s.root
}

// checkPath не допускает операций над файлами вне <root>/content.
func (s *Store) checkPath(path string) error {
	base := filepath.Join(s.root, contentDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(path), base) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}
