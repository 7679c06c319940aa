package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// alphabet — допустимые символы идентификаторов и имён блобов.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewID генерирует случайную алфавитно-цифровую строку длины n.
func NewID(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("длина идентификатора должна быть положительной: %d", n)
	}

	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации идентификатора: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// IsAlphanumeric проверяет, что строка непустая и состоит только из [A-Za-z0-9].
func IsAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
