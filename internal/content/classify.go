// Пакет content — классификация содержимого по сигнатуре (magic numbers)
// и политика сжатия DEFLATE.
//
// Классификация никогда не использует имя файла или MIME-тип,
// заявленные клиентом.
package content

import (
	"errors"
	"net/http"
	"strings"

	"github.com/h2non/filetype"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
)

// ErrUnclassifiable — тип содержимого не удалось определить.
var ErrUnclassifiable = errors.New("не удалось определить тип содержимого")

// Расширения для содержимого без известной сигнатуры.
const (
	extText   = "txt"
	extBinary = "bin"
)

// Classification — результат классификации.
type Classification struct {
	Category  model.Category
	Extension string
	MIME      string
}

// Classify определяет категорию и расширение по первым байтам буфера.
// Детерминирована: одинаковые данные дают одинаковый результат.
func Classify(data []byte) (Classification, error) {
	if len(data) == 0 {
		return Classification{}, ErrUnclassifiable
	}

	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return Classification{
			Category:  categoryOf(kind.MIME.Type),
			Extension: kind.Extension,
			MIME:      kind.MIME.Value,
		}, nil
	}

	// Сигнатура неизвестна — сниффер net/http различает текст и бинарные данные
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "text/plain") {
		return Classification{Category: model.CategoryOther, Extension: extText, MIME: sniffed}, nil
	}

	return Classification{Category: model.CategoryOther, Extension: extBinary, MIME: "application/octet-stream"}, nil
}

func categoryOf(majorType string) model.Category {
	switch majorType {
	case "video":
		return model.CategoryVideo
	case "image":
		return model.CategoryImage
	default:
		return model.CategoryOther
	}
}
