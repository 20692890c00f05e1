package parse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/utils"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase scheme and host", "HTTPS://WWW.SC.GOV.CN/Path", "https://www.sc.gov.cn/Path"},
		{"drops default https port", "https://news.cn:443/a", "https://news.cn/a"},
		{"drops default http port", "http://news.cn:80/a", "http://news.cn/a"},
		{"keeps custom port", "http://news.cn:8080/a", "http://news.cn:8080/a"},
		{"empty path becomes root", "https://news.cn", "https://news.cn/"},
		{"keeps query drops fragment", "https://www.baidu.com/link?url=abc#top", "https://www.baidu.com/link?url=abc"},
		{"keeps trailing slash", "https://news.cn/list/", "https://news.cn/list/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, NormalizeURL(parsed))
		})
	}

	assert.Equal(t, "", NormalizeURL(nil))
}

func TestParseHTTPURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://www.sc.gov.cn/10462/c105962/article.shtml", false},
		{"  http://sc.news.cn/scyw.htm  ", false},
		{"", true},
		{"ftp://example.com/file", true},
		{"/relative/path", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := ParseHTTPURL(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, utils.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.Host)
		})
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://www.sc.gov.cn/10462/c105962/article.shtml")

	tests := []struct {
		name     string
		ref      string
		expected string
	}{
		{"absolute", "http://img.news.cn/a.jpg", "http://img.news.cn/a.jpg"},
		{"protocol relative", "//img.sc.gov.cn/a.jpg", "https://img.sc.gov.cn/a.jpg"},
		{"root relative", "/images/a.jpg", "https://www.sc.gov.cn/images/a.jpg"},
		{"document relative", "img/a.jpg", "https://www.sc.gov.cn/10462/c105962/img/a.jpg"},
		{"parent relative", "../b.shtml", "https://www.sc.gov.cn/10462/b.shtml"},
		{"empty", "  ", ""},
		{"fragment only", "#top", ""},
		{"javascript", "javascript:void(0)", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveURL(base, tt.ref))
		})
	}

	assert.Equal(t, "", ResolveURL(nil, "/a"))
	assert.Equal(t, "https://x.cn/a", ResolveURL(nil, "https://x.cn/a"))
}

func TestOrigin(t *testing.T) {
	u, _ := url.Parse("https://www.baidu.com/s?wd=x")
	assert.Equal(t, "https://www.baidu.com", Origin(u))
	assert.Equal(t, "", Origin(nil))
}
