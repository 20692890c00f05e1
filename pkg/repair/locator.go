package repair

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"content-harvester/pkg/config"
	"content-harvester/pkg/extract"
	"content-harvester/pkg/utils"
)

// StructuralLocator returns a CSS child path from <html> down to the first node of s,
// e.g. "html > body > div:nth-of-type(2) > h1". A step carries :nth-of-type only when
// the parent has more than one child element with that tag.
func StructuralLocator(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var steps []string
	for n := s.Get(0); n != nil && n.Type == html.ElementNode; n = n.Parent {
		steps = append(steps, locatorStep(n))
	}
	if len(steps) == 0 {
		return ""
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

func locatorStep(n *html.Node) string {
	if n.Parent == nil {
		return n.Data
	}
	index, total := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		total++
		if c == n {
			index = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s:nth-of-type(%d)", n.Data, index)
	}
	return n.Data
}

// FindTitleElement returns the first h1-h3 whose text contains expected or is contained by it.
// Matching is case-sensitive. Empty headings and an empty expected title never match.
func FindTitleElement(doc *goquery.Document, expected string) *goquery.Selection {
	expected = utils.CleanText(expected)
	// an empty title would be contained in every heading; it never selects one
	if expected == "" {
		return nil
	}
	var found *goquery.Selection
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		text := utils.CleanText(h.Text())
		if text != "" && (strings.Contains(text, expected) || strings.Contains(expected, text)) {
			found = h
			return false
		}
		return true
	})
	return found
}

// FindContentElement returns the first article/div/section without a navigational class
// whose text is longer than RepairContentLength runes.
func FindContentElement(doc *goquery.Document, policy config.HeuristicPolicy) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("article, div, section").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if extract.IsNavigational(s, policy.NavTokens) {
			return true
		}
		if utils.RuneLen(extract.BlockText(s)) > policy.RepairContentLength {
			found = s
			return false
		}
		return true
	})
	return found
}
