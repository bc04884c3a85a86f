package indexer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// binarySniffLen is how many leading bytes are checked for null bytes
const binarySniffLen = 8 * 1024

// FileContent is the decoded content of a source file
type FileContent struct {
	Content     string
	Language    string
	ContentHash string
	LineCount   int
	SizeBytes   int64
}

// ExtractFile reads a file and prepares it for chunking. Binary files
// (a null byte within the first 8 KiB) return (nil, nil). Invalid UTF-8
// sequences are replaced with U+FFFD before hashing, so the hash is stable
// over the decoded text rather than the raw bytes.
func ExtractFile(path string) (*FileContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, nil
	}

	content := strings.ToValidUTF8(string(data), "�")

	sum := sha256.Sum256([]byte(content))

	return &FileContent{
		Content:     content,
		Language:    DetectLanguage(path),
		ContentHash: hex.EncodeToString(sum[:]),
		LineCount:   strings.Count(content, "\n") + 1,
		SizeBytes:   int64(len(data)),
	}, nil
}
