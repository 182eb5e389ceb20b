package rag_service

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// MinChunkLength is the floor: chunks whose trimmed length is not
	// above it are dropped.
	MinChunkLength = 50
)

// Chunker splits extracted text into overlapping windows that prefer to end
// on a sentence or line boundary. Lengths are counted in characters (runes).
type Chunker struct {
	chunkSize int
	overlap   int
}

type ChunkerOption func(*Chunker)

func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk returns the ordered chunks of text. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)

	var chunks []string
	for _, w := range c.windows(runes) {
		chunk := strings.TrimSpace(string(runes[w.start:w.end]))
		if len([]rune(chunk)) > MinChunkLength {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

type span struct {
	start, end int
}

// windows returns the untrimmed rune spans, before the length floor applies.
func (c *Chunker) windows(runes []rune) []span {
	total := len(runes)

	var spans []span
	start := 0
	for start < total {
		end := start + c.chunkSize
		if end > total {
			end = total
		}

		if end < total {
			cut := lastBoundary(runes[start:end])
			if cut > c.chunkSize/2 {
				end = start + cut + 1
			}
		}
		spans = append(spans, span{start: start, end: end})

		advance := (end - start) - c.overlap
		if advance <= 0 {
			advance = end - start
		}
		start += advance
	}
	return spans
}

// lastBoundary returns the index of the later of the last '.' and the
// last '\n' in window, or -1.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
