package content

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compress пытается сжать данные DEFLATE в обёртке zlib с максимальным уровнем.
// Сжатая форма сохраняется только если она строго меньше исходной,
// иначе (или при ошибке сжатия) возвращаются исходные байты.
func Compress(data []byte) (stored []byte, compressed bool) {
	packed, err := deflate(data)
	if err != nil || len(packed) >= len(data) {
		return data, false
	}
	return packed, true
}

// Decompress распаковывает данные, сжатые Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заголовка zlib: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки DEFLATE: %w", err)
	}
	return out, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации DEFLATE: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("ошибка сжатия: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения сжатия: %w", err)
	}
	return buf.Bytes(), nil
}
