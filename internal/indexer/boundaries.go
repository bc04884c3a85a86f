package indexer

import (
	"regexp"
	"strings"
)

// languagePatterns matches the first non-space of a line that begins a
// top-level declaration. The table is heuristic: an over-match costs a
// slightly smaller chunk, never a wrong one.
var languagePatterns = map[string][]string{
	"javascript": {
		`^export\s+(default\s+)?function\s+\w+`,
		`^export\s+(default\s+)?class\s+\w+`,
		`^export\s+(const|let|var)\s+\w+`,
		`^(async\s+)?function\s+\w+`,
		`^class\s+\w+`,
		`^(const|let|var)\s+\w+\s*=\s*(async\s+)?\([^)]*\)\s*=>`,
	},
	"typescript": {
		`^export\s+(default\s+)?function\s+\w+`,
		`^export\s+(default\s+)?class\s+\w+`,
		`^export\s+(interface|type|enum)\s+\w+`,
		`^export\s+(const|let|var)\s+\w+`,
		`^(async\s+)?function\s+\w+`,
		`^class\s+\w+`,
		`^interface\s+\w+`,
		`^type\s+\w+\s*=`,
		`^(const|let|var)\s+\w+\s*=\s*(async\s+)?\([^)]*\)\s*=>`,
	},
	"python": {
		`^def\s+\w+`,
		`^async\s+def\s+\w+`,
		`^class\s+\w+`,
		`^@\w+`,
	},
	"go": {
		`^func\s+\w+`,
		`^func\s+\([^)]+\)\s+\w+`,
		`^type\s+\w+\s+(struct|interface)`,
		`^(const|var)\s+\w+`,
	},
	"rust": {
		`^(pub\s+)?fn\s+\w+`,
		`^(pub\s+)?struct\s+\w+`,
		`^(pub\s+)?enum\s+\w+`,
		`^(pub\s+)?trait\s+\w+`,
		`^(pub\s+)?impl\s+`,
	},
	"java": {
		`^(public|private|protected)?\s*(static\s+)?class\s+\w+`,
		`^(public|private|protected)?\s*(static\s+)?interface\s+\w+`,
		`^(public|private|protected)?\s*(static\s+)?enum\s+\w+`,
		`^(public|private|protected)\s+[\w<>\[\]]+\s+\w+\s*\(`,
		`^@\w+`,
	},
	"c": {
		`^\w+\s+\w+\s*\([^)]*\)\s*\{?`,
		`^struct\s+\w+`,
		`^typedef\s+`,
	},
	"cpp": {
		`^\w+\s+\w+::\w+\s*\(`,
		`^class\s+\w+`,
		`^struct\s+\w+`,
		`^namespace\s+\w+`,
		`^template\s*<`,
	},
	"markdown": {
		`^#{1,6}\s+`,
	},
	"yaml": {
		`^\w[\w-]*:`,
	},
}

// defaultPatterns apply to languages without a table entry
var defaultPatterns = []string{
	`^function\s+\w+`,
	`^class\s+\w+`,
	`^def\s+\w+`,
}

var compiledPatterns = compilePatterns()

func compilePatterns() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(languagePatterns)+1)
	for lang, patterns := range languagePatterns {
		for _, p := range patterns {
			out[lang] = append(out[lang], regexp.MustCompile(p))
		}
	}
	for _, p := range defaultPatterns {
		out[LanguageUnknown] = append(out[LanguageUnknown], regexp.MustCompile(p))
	}
	return out
}

// IsBoundary reports whether a line begins a top-level declaration for the
// given language.
func IsBoundary(line, language string) bool {
	patterns, ok := compiledPatterns[language]
	if !ok {
		patterns = compiledPatterns[LanguageUnknown]
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}
