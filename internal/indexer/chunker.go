package indexer

import "strings"

// Chunker splits file content into token-bounded, boundary-aligned,
// overlapping chunks.
type Chunker struct {
	tok *Tokenizer
}

// NewChunker creates a chunker over a shared tokenizer
func NewChunker(tok *Tokenizer) *Chunker {
	return &Chunker{tok: tok}
}

// ChunkOptions control a single chunking run
type ChunkOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Language     string
}

// Chunk is a span of file text with 1-based inclusive line metadata
type Chunk struct {
	Content    string
	StartLine  int
	EndLine    int
	TokenCount int
}

// boundaryLookback is how many trailing lines are searched for a
// declaration boundary when a chunk overflows.
const boundaryLookback = 20

// lineTokens measures a line with its newline, so the budget enforced at
// split time and the TokenCount reported on the chunk are the same number.
func (c *Chunker) lineTokens(line string) int {
	return c.tok.Count(line + "\n")
}

// Chunk splits content into chunks of at most ChunkSize tokens. When a
// chunk would overflow, the last boundaryLookback lines are searched for a
// declaration boundary and the split happens immediately before it; with
// no boundary the split falls at the overflow line. Consecutive chunks
// overlap by whole trailing lines of the previous chunk, never exceeding
// the ChunkOverlap token budget. Whitespace-only chunks are dropped. A
// single line longer than ChunkSize is emitted as one oversized chunk.
func (c *Chunker) Chunk(content string, opts ChunkOptions) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var cur []string
	curStart := 1
	curTokens := 0
	carried := 0 // overlap lines carried from the previous chunk

	emit := func(chunkLines []string, startLine, tokens int) {
		text := strings.Join(chunkLines, "\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Content:    text,
			StartLine:  startLine,
			EndLine:    startLine + len(chunkLines) - 1,
			TokenCount: tokens,
		})
	}

	for _, line := range lines {
		tokens := c.lineTokens(line)

		if len(cur) > 0 && curTokens+tokens > opts.ChunkSize {
			// Overflow. Look back for a declaration boundary to split on;
			// never split inside the carried overlap.
			split := -1
			low := len(cur) - boundaryLookback
			if low <= carried {
				low = carried + 1
			}
			for j := len(cur) - 1; j >= low; j-- {
				if IsBoundary(cur[j], opts.Language) {
					split = j
					break
				}
			}

			var committed, rest []string
			if split > 0 {
				committed = cur[:split]
				rest = cur[split:]
			} else {
				committed = cur
			}
			restTokens := 0
			for _, r := range rest {
				restTokens += c.lineTokens(r)
			}
			emit(committed, curStart, curTokens-restTokens)

			overlap, overlapTokens := c.overlapLines(committed, opts.ChunkOverlap)
			curStart = curStart + len(committed) - len(overlap)
			carried = len(overlap)
			cur = append(append([]string(nil), overlap...), rest...)
			curTokens = overlapTokens + restTokens
		}

		cur = append(cur, line)
		curTokens += tokens
	}

	if len(cur) > 0 {
		emit(cur, curStart, curTokens)
	}

	return chunks
}

// overlapLines accumulates whole lines backward from the committed chunk's
// tail while their cumulative token count stays within the overlap budget.
func (c *Chunker) overlapLines(committed []string, budget int) ([]string, int) {
	if budget <= 0 || len(committed) == 0 {
		return nil, 0
	}

	total := 0
	start := len(committed)
	for i := len(committed) - 1; i >= 0; i-- {
		tokens := c.lineTokens(committed[i])
		if total+tokens > budget {
			break
		}
		total += tokens
		start = i
	}
	if start == len(committed) {
		return nil, 0
	}
	return committed[start:], total
}
