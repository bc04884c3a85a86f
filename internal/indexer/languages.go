package indexer

import (
	"path/filepath"
	"strings"
)

// LanguageUnknown is returned for extensions outside the table
const LanguageUnknown = "unknown"

// extensionLanguages maps lowercased file extensions to language names.
// The table is fixed; chunk boundary detection keys off these names.
var extensionLanguages = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
}

// DetectLanguage returns the language for a file path based on its
// lowercased extension, or "unknown".
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}
