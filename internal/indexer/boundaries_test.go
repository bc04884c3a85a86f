package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBoundary(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		language string
		want     bool
	}{
		{"go function", "func Scan(root string) error {", "go", true},
		{"go method", "func (s *Scanner) walk(dir string) {", "go", true},
		{"go struct", "type Scanner struct {", "go", true},
		{"go body line", "\treturn nil", "go", false},
		{"go indented decl", "    func helper() {", "go", true},

		{"python def", "def process(batch):", "python", true},
		{"python async def", "async def fetch(url):", "python", true},
		{"python decorator", "@staticmethod", "python", true},
		{"python assignment", "x = compute()", "python", false},

		{"ts exported class", "export class Indexer {", "typescript", true},
		{"ts interface", "interface Config {", "typescript", true},
		{"ts arrow const", "const handler = async (req) => {", "typescript", true},
		{"ts call", "handler(req)", "typescript", false},

		{"js function", "function parse(input) {", "javascript", true},
		{"js export default", "export default function App() {", "javascript", true},

		{"rust pub fn", "pub fn new() -> Self {", "rust", true},
		{"rust impl", "impl Scanner {", "rust", true},

		{"java method", "public void process(Batch batch) {", "java", true},
		{"java class", "public class Processor {", "java", true},

		{"markdown heading", "## Configuration", "markdown", true},
		{"markdown text", "Some prose here.", "markdown", false},

		{"yaml key", "server:", "yaml", true},

		{"unknown language falls back", "function doThing() {", "unknown", true},
		{"unknown language plain line", "doThing()", "unknown", false},

		{"empty line", "", "go", false},
		{"whitespace line", "   \t ", "python", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBoundary(tt.line, tt.language))
		})
	}
}
