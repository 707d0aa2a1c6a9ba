package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanChunkText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello world", "hello world"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"zero width", "in\u200Bvoice\uFEFF", "invoice"},
		{"nbsp and tabs", "total:\u00A0\t 42", "total: 42"},
		{"blank lines", "para one\r\n\r\n\r\n\r\npara two", "para one\n\npara two"},
		{"nfc", "cafe\u0301", "caf\u00E9"},
		{"invalid utf8", "ok\xffok", "okok"},
		{"trim", "  \n text \n ", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanChunkText(tt.input))
		})
	}
}

func TestObjectURI(t *testing.T) {
	assert.True(t, IsObjectURI("s3://docs/reports"))
	assert.True(t, IsObjectURI("minio://docs"))
	assert.False(t, IsObjectURI("https://example.com/a.pdf"))
	assert.False(t, IsObjectURI("./docs"))

	bucket, prefix, ok := SplitObjectURI("s3://docs/reports/2024/")
	assert.True(t, ok)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "reports/2024/", prefix)

	bucket, prefix, ok = SplitObjectURI("minio://docs")
	assert.True(t, ok)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "", prefix)

	_, _, ok = SplitObjectURI("https://example.com/x")
	assert.False(t, ok)
	_, _, ok = SplitObjectURI("s3:///nobucket")
	assert.False(t, ok)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.pdf"))
	assert.False(t, IsURL("docs/a.pdf"))
	assert.False(t, IsURL("/abs/path.txt"))
}
