package process

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// Analysis is what a depth crawl stores next to the extracted text
type Analysis struct {
	Markdown    string
	Headings    []string
	TokenCount  int
	Chunks      []Chunk
	ContentHash string
}

// Analyzer renders extracted content to markdown and measures it
type Analyzer struct {
	tokenizer *Tokenizer
	chunking  ChunkerConfig
	log       *logrus.Entry
}

// NewAnalyzer loads the configured tokenizer encoding.
func NewAnalyzer(cfg config.AnalysisConfig, log *logrus.Entry) (*Analyzer, error) {
	tok, err := NewTokenizer(cfg.TokenizerEncoding)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %q: %w", cfg.TokenizerEncoding, err)
	}
	return &Analyzer{
		tokenizer: tok,
		chunking:  ChunkerConfig{MaxChunkSize: cfg.MaxChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		log:       log,
	}, nil
}

// Analyze never fails: when the content markup cannot be converted the plain text is used as markdown.
func (a *Analyzer) Analyze(detail models.DetailResult) Analysis {
	body := strings.TrimSpace(detail.Content)
	if detail.ContentHTML != "" {
		converted, err := md.NewConverter("", true, nil).ConvertString(detail.ContentHTML)
		if err != nil {
			err = fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, err)
			a.log.Warnf("Using plain text for markdown: %v", err)
		} else if converted = strings.TrimSpace(converted); converted != "" {
			body = converted
		}
	}

	markdown := withTitle(detail.Title, body)
	analysis := Analysis{
		Markdown:    markdown,
		Headings:    ExtractHeadings([]byte(markdown)),
		TokenCount:  a.tokenizer.Count(detail.Content),
		ContentHash: utils.ContentHash(detail.Content),
	}

	chunks, err := a.Chunk(markdown)
	if err != nil {
		a.log.Warnf("Chunking failed: %v", err)
	}
	analysis.Chunks = chunks
	return analysis
}

// Chunk splits markdown into token-bounded chunks.
func (a *Analyzer) Chunk(markdown string) ([]Chunk, error) {
	return ChunkMarkdown(markdown, a.chunking, a.tokenizer.Count)
}

// withTitle prepends the title as a level-1 heading unless the body already opens with it.
func withTitle(title, body string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return body
	}
	heading := "# " + title
	if strings.HasPrefix(body, heading) {
		return body
	}
	if body == "" {
		return heading + "\n"
	}
	return heading + "\n\n" + body
}
