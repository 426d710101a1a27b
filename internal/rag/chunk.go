package rag

import "fmt"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunk splits text into windows of size runes, each starting size-overlap
// runes after the previous one. Splitting stops at the first window that
// reaches the end of text, so no window is a suffix of its predecessor.
// Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("rag: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("rag: overlap must be in [0, %d), got %d", size, overlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := size - overlap
	chunks := make([]string, 0, ChunkCount(len(runes), size, overlap))
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// ChunkCount is the number of windows Chunk produces for n runes:
// ceil(max(n-overlap, 1) / (size-overlap)), or 0 when n is 0.
func ChunkCount(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	step := size - overlap
	span := max(n-overlap, 1)
	return (span + step - 1) / step
}

// ChunkBounds returns the rune offsets [start, end) of window i.
func ChunkBounds(i, n, size, overlap int) (start, end int) {
	start = i * (size - overlap)
	return start, min(start+size, n)
}
