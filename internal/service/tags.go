package service

import (
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/media-module/internal/config"
)

// normalizeTags приводит теги к нижнему регистру и оставляет только
// теги из словаря по умолчанию либо, если разрешены пользовательские,
// теги не длиннее MaxTagLength. Пустой результат — nil (теги отсутствуют).
func normalizeTags(raw []string, cfg *config.Config) []string {
	var out []string
	seen := make(map[string]bool, len(raw))

	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}

		if !isDefaultTag(tag, cfg.DefaultTags) {
			if !cfg.AllowCustomTags || utf8.RuneCountInString(tag) > cfg.MaxTagLength {
				continue
			}
		}

		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func isDefaultTag(tag string, defaults []string) bool {
	for _, d := range defaults {
		if strings.EqualFold(d, tag) {
			return true
		}
	}
	return false
}

// lowerTags — фильтр поиска: теги в нижнем регистре без пустых.
func lowerTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
