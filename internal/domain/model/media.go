// Пакет model — доменные модели Media Module.
// MediaRecord и Account сериализуются в JSON и хранятся
// как значения в пространствах имён встроенного KV-хранилища.
package model

import (
	"fmt"
	"time"
)

// Category — грубая категория содержимого, определяет поддиректорию блоба.
type Category string

const (
	// CategoryVideo — видеофайлы
	CategoryVideo Category = "Video"
	// CategoryImage — изображения
	CategoryImage Category = "Image"
	// CategoryOther — всё остальное
	CategoryOther Category = "Other"
)

// Categories — все допустимые категории (порядок стабилен).
var Categories = []Category{CategoryVideo, CategoryImage, CategoryOther}

// ParseCategory преобразует строку в Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("недопустимая категория: %q, допустимые: Video, Image, Other", s)
}

// MediaRecord — метаданные загруженного блоба. Ключ в пространстве media — ID.
type MediaRecord struct {
	// ID — короткий случайный алфавитно-цифровой идентификатор
	ID string `json:"id"`

	// Name — отображаемое имя
	Name string `json:"name"`

	// Extension — расширение, определённое классификатором
	Extension string `json:"extension"`

	// Category — категория содержимого
	Category Category `json:"category"`

	// SizeBytes — размер данных на диске (после сжатия, если оно применено)
	SizeBytes int64 `json:"size_bytes"`

	// BlobPath — путь к файлу блоба. Не возвращается в API.
	BlobPath string `json:"blob_path"`

	// Compressed — содержимое BlobPath сжато DEFLATE
	Compressed bool `json:"compressed"`

	// UploadedAt — время загрузки (UTC), не меняется
	UploadedAt time.Time `json:"uploaded_at"`

	// Author — username владельца
	Author string `json:"author"`

	// Unlisted — скрыта от анонимных листингов
	Unlisted bool `json:"unlisted"`

	// Tags — нормализованные теги; nil означает отсутствие тегов
	Tags []string `json:"tags,omitempty"`

	// DownloadCount — счётчик скачиваний
	DownloadCount uint64 `json:"download_count"`
}

// HasTag проверяет наличие тега (теги уже в нижнем регистре).
func (r *MediaRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FileName возвращает имя файла для Content-Disposition: name.ext.
func (r *MediaRecord) FileName() string {
	if r.Extension == "" {
		return r.Name
	}
	return r.Name + "." + r.Extension
}
