package indexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizer()
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	return tok
}

func TestChunker_SmallContentSingleChunk(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	content := "func main() {\n\tfmt.Println(\"hi\")\n}"
	chunks := chunker.Chunk(content, ChunkOptions{ChunkSize: 1000, ChunkOverlap: 100, Language: "go"})

	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, lineTokenSum(tok, content), chunks[0].TokenCount)
}

// lineTokenSum mirrors the chunker's measure: each line counted with its
// newline.
func lineTokenSum(tok *Tokenizer, text string) int {
	sum := 0
	for _, l := range strings.Split(text, "\n") {
		sum += tok.Count(l + "\n")
	}
	return sum
}

func TestChunker_EmptyAndWhitespace(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)
	opts := ChunkOptions{ChunkSize: 1000, ChunkOverlap: 0}

	assert.Nil(t, chunker.Chunk("", opts))
	assert.Nil(t, chunker.Chunk("\n\n   \n", opts))
}

func TestChunker_SplitsAtBoundary(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	// Two functions; the chunk size forces a split, and the boundary
	// lookback should place it at the second declaration.
	var b strings.Builder
	b.WriteString("func first() {\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "\tx%d := compute(%d)\n", i, i)
	}
	b.WriteString("}\n")
	b.WriteString("func second() {\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "\ty%d := compute(%d)\n", i, i)
	}
	b.WriteString("}")
	content := b.String()

	total := tok.Count(content)
	half := total/2 + 20

	chunks := chunker.Chunk(content, ChunkOptions{ChunkSize: half, ChunkOverlap: 0, Language: "go"})
	require.GreaterOrEqual(t, len(chunks), 2)

	// With no overlap, some chunk starts exactly at the second declaration
	found := false
	for _, c := range chunks {
		if strings.HasPrefix(c.Content, "func second()") {
			found = true
		}
	}
	assert.True(t, found, "expected a chunk starting at the second function")
}

func TestChunker_LineMetadataConsistent(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	var lines []string
	for i := 1; i <= 120; i++ {
		lines = append(lines, fmt.Sprintf("line %d with some padding text to accumulate tokens", i))
	}
	content := strings.Join(lines, "\n")

	chunks := chunker.Chunk(content, ChunkOptions{ChunkSize: 500, ChunkOverlap: 50})
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.StartLine, 1)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		assert.Equal(t, c.EndLine-c.StartLine+1, len(strings.Split(c.Content, "\n")))
		assert.Positive(t, c.TokenCount)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))

		// Chunk content matches the original lines at its coordinates
		assert.Equal(t, strings.Join(lines[c.StartLine-1:c.EndLine], "\n"), c.Content)
	}

	// Every line is covered by some chunk
	covered := make(map[int]bool)
	for _, c := range chunks {
		for l := c.StartLine; l <= c.EndLine; l++ {
			covered[l] = true
		}
	}
	assert.Len(t, covered, 120)
}

func TestChunker_OverlapWithinBudget(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	var lines []string
	for i := 1; i <= 100; i++ {
		lines = append(lines, fmt.Sprintf("statement number %d doing work", i))
	}
	content := strings.Join(lines, "\n")

	overlap := 40
	chunks := chunker.Chunk(content, ChunkOptions{ChunkSize: 300, ChunkOverlap: overlap})
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		// Consecutive chunks share whole trailing lines of the previous one
		require.LessOrEqual(t, cur.StartLine, prev.EndLine+1)
		if cur.StartLine <= prev.EndLine {
			// The budget applies to the per-line token sum, newlines included
			sum := lineTokenSum(tok, strings.Join(lines[cur.StartLine-1:prev.EndLine], "\n"))
			assert.LessOrEqual(t, sum, overlap)
		}
	}
}

func TestChunker_TokenCountWithinChunkSize(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	// Many short lines: per-line counting must not let the reported size
	// creep past the budget by one newline token per line.
	var b strings.Builder
	for f := 0; f < 4; f++ {
		fmt.Fprintf(&b, "func fn%d() {\n", f)
		for i := 0; i < 40; i++ {
			fmt.Fprintf(&b, "\tv%d := compute(%d)\n", i, i)
		}
		b.WriteString("}\n")
	}
	content := strings.TrimSuffix(b.String(), "\n")

	size := 300
	chunks := chunker.Chunk(content, ChunkOptions{ChunkSize: size, ChunkOverlap: 50, Language: "go"})
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, size)
		// The reported count is the same measure the split enforced
		assert.Equal(t, lineTokenSum(tok, c.Content), c.TokenCount)
	}
}

func TestChunker_OversizedSingleLine(t *testing.T) {
	tok := newTestTokenizer(t)
	chunker := NewChunker(tok)

	long := strings.Repeat("word ", 2000)
	chunks := chunker.Chunk(long, ChunkOptions{ChunkSize: 500, ChunkOverlap: 50})

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
	assert.Greater(t, chunks[0].TokenCount, 500)
}

func TestTokenizer_CountAfterClose(t *testing.T) {
	tok := newTestTokenizer(t)
	assert.Positive(t, tok.Count("hello world"))
	tok.Close()
	assert.Zero(t, tok.Count("hello world"))
}
