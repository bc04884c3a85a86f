package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	content, err := ExtractFile(path)
	require.NoError(t, err)
	require.NotNil(t, content)

	assert.Equal(t, "go", content.Language)
	assert.Equal(t, 4, content.LineCount)
	assert.Equal(t, int64(30), content.SizeBytes)

	sum := sha256.Sum256([]byte(content.Content))
	assert.Equal(t, hex.EncodeToString(sum[:]), content.ContentHash)
}

func TestExtractFile_Binary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.go")
	require.NoError(t, os.WriteFile(path, []byte{'a', 0x00, 'b'}, 0o644))

	content, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Nil(t, content)
}

func TestExtractFile_NullByteBeyondSniffWindow(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, binarySniffLen+10)
	for i := range data {
		data[i] = 'x'
	}
	data[binarySniffLen+5] = 0x00
	path := filepath.Join(dir, "late_null.go")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	// Only the first 8 KiB are sniffed, so this still reads as text
	content, err := ExtractFile(path)
	require.NoError(t, err)
	require.NotNil(t, content)
}

func TestExtractFile_InvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin1.go")
	require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9, '\n'}, 0o644))

	content, err := ExtractFile(path)
	require.NoError(t, err)
	require.NotNil(t, content)

	// The invalid byte is replaced before hashing
	assert.Contains(t, content.Content, "caf�")
	sum := sha256.Sum256([]byte(content.Content))
	assert.Equal(t, hex.EncodeToString(sum[:]), content.ContentHash)
}

func TestExtractFile_Missing(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "nope.go"))
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/b/main.go", "go"},
		{"src/App.tsx", "typescript"},
		{"script.PY", "python"},
		{"style.css", LanguageUnknown},
		{"Makefile", LanguageUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}
