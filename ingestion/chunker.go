package ingestion

import (
	"context"
	"os"
	"strings"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 100
)

// FileChunker splits plain-text document files into chunks. Paragraphs
// are packed together up to the chunk size; a paragraph larger than one
// chunk is split on word boundaries with overlap so no sentence loses
// its surrounding context entirely.
type FileChunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a FileChunker.
type ChunkerOption func(*FileChunker)

// WithChunkSize sets the maximum chunk length in runes.
// Default is 1000.
func WithChunkSize(size int) ChunkerOption {
	return func(f *FileChunker) {
		if size > 0 {
			f.chunkSize = size
		}
	}
}

// WithOverlap sets how many runes of the previous chunk are repeated at
// the start of the next one when a paragraph is split.
// Default is 100.
func WithOverlap(overlap int) ChunkerOption {
	return func(f *FileChunker) {
		if overlap >= 0 {
			f.overlap = overlap
		}
	}
}

func NewFileChunker(opts ...ChunkerOption) *FileChunker {
	f := &FileChunker{
		chunkSize: defaultChunkSize,
		overlap:   defaultOverlap,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.overlap >= f.chunkSize {
		f.overlap = f.chunkSize / 2
	}
	return f
}

// LoadChunks reads the file and returns its chunks in document order.
func (f *FileChunker) LoadChunks(ctx context.Context, filePath, fileType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	chunks := f.Split(string(data))
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	return chunks, nil
}

// Split chunks raw text without touching the filesystem.
func (f *FileChunker) Split(text string) []string {
	var chunks []string
	var current strings.Builder

	for _, para := range paragraphs(text) {
		runes := []rune(para)
		if len(runes) > f.chunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, f.splitLong(runes)...)
			continue
		}

		// +2 accounts for the paragraph separator
		if current.Len() > 0 && len([]rune(current.String()))+len(runes)+2 > f.chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitLong cuts an oversized paragraph into chunkSize windows, stepping
// back to the nearest word boundary and carrying overlap forward.
func (f *FileChunker) splitLong(runes []rune) []string {
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + f.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		// Back up to a word boundary, but never below half a chunk.
		cut := end
		for cut > start+f.chunkSize/2 && runes[cut-1] != ' ' && runes[cut-1] != '\n' {
			cut--
		}
		if cut == start+f.chunkSize/2 {
			cut = end
		}

		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))

		next := cut - f.overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n\n")

	paras := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}
