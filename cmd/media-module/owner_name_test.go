package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOwnerName(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		want     string
	}{
		{"Deployment", "media-module-7d8f9b6c4f-x2k9z", "media-module"},
		{"Deployment с длинным именем", "media-module-eu-01-5fbcd8d7b9-k4m2j", "media-module-eu-01"},
		{"StatefulSet ordinal 0", "media-sts-0", "media-sts"},
		{"StatefulSet ordinal 42", "media-sts-42", "media-sts"},
		{"простое имя", "media-app", "media-app"},
		{"localhost", "localhost", "localhost"},
		{"суффикс в верхнем регистре", "media-module-7d8f9b6c4f-X2K9Z", "media-module-7d8f9b6c4f-X2K9Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOwnerName(tt.hostname))
		})
	}
}
