package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"content-harvester/pkg/utils"
)

// BlockText returns the visible text under s, one trimmed text node per line.
// Script and style bodies are skipped.
func BlockText(s *goquery.Selection) string {
	var lines []string
	for _, n := range s.Nodes {
		collectText(n, &lines)
	}
	return strings.Join(lines, "\n")
}

func collectText(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := utils.CleanText(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

// IsNavigational reports whether one of the element's class names is a navigation token.
// Class names are compared whole, so "content-nav" is not "nav".
func IsNavigational(s *goquery.Selection, navTokens []string) bool {
	for _, class := range strings.Fields(s.AttrOr("class", "")) {
		for _, tok := range navTokens {
			if class == tok {
				return true
			}
		}
	}
	return false
}

// outerHTML joins the markup of every element in s.
func outerHTML(s *goquery.Selection) string {
	var b strings.Builder
	s.Each(func(_ int, el *goquery.Selection) {
		if h, err := goquery.OuterHtml(el); err == nil {
			b.WriteString(h)
			b.WriteByte('\n')
		}
	})
	return b.String()
}
