package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHeadings(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     []string
	}{
		{"none", "just a paragraph", nil},
		{"levels in order", "# 西昌\n\ntext\n\n## 邛海\n\n### 湿地\n", []string{"西昌", "邛海", "湿地"}},
		{"inline markup", "## Using *emphasis* and `code`\n", []string{"Using emphasis and code"}},
		{"setext", "Title\n=====\n\nbody\n", []string{"Title"}},
		{"heading inside code block ignored", "```\n# not a heading\n```\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractHeadings([]byte(tt.markdown)))
		})
	}
}
