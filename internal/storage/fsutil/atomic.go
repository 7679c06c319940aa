// Пакет fsutil — общие файловые примитивы хранилищ.
package fsutil

import (
	"fmt"
	"os"
)

// TmpSuffix — суффикс временных файлов атомарной записи.
const TmpSuffix = ".tmp"

// WriteFileAtomic записывает data в path.
// Паттерн: temp файл → fsync → atomic rename. При ошибке temp файл удаляется.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + TmpSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// CheckWritable проверяет, что директория доступна для записи, через пробный файл.
func CheckWritable(dir string) error {
	probe := dir + string(os.PathSeparator) + ".write_test"
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return fmt.Errorf("директория %s недоступна для записи: %w", dir, err)
	}
	os.Remove(probe)
	return nil
}
