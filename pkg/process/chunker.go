package process

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk is one retrieval-sized piece of a depth crawl's markdown
type Chunk struct {
	Index      int      `json:"index"`
	Content    string   `json:"content"`
	Headings   []string `json:"headings,omitempty"` // heading context carried by the chunk
	TokenCount int      `json:"token_count"`
}

// ChunkerConfig bounds chunk sizes in units of lenFunc
type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
}

var markdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*\s*$`)

// ChunkMarkdown splits markdown by headings first, then recursively splits any section still
// larger than MaxChunkSize. lenFunc measures size; nil measures runes.
func ChunkMarkdown(markdown string, cfg ChunkerConfig, lenFunc func(string) int) ([]Chunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	if lenFunc == nil {
		lenFunc = func(s string) int { return len([]rune(s)) }
	}

	fallback := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(fallback),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    part,
			Headings:   chunkHeadings(part),
			TokenCount: lenFunc(part),
		})
	}
	return chunks, nil
}

func chunkHeadings(content string) []string {
	var out []string
	for _, m := range markdownHeading.FindAllStringSubmatch(content, -1) {
		if h := strings.TrimSpace(m[1]); h != "" {
			out = append(out, h)
		}
	}
	return out
}
