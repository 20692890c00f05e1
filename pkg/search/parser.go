package search

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
	"content-harvester/pkg/parse"
	"content-harvester/pkg/utils"
)

const (
	headingSelector   = "h1, h2, h3, h4"
	containerSelector = "div, li, article, section"
)

// resultParser turns a provider result page into SearchResults.
// Container strategies run in priority order; the link sweep runs only when all of them come up empty.
type resultParser struct {
	policy config.HeuristicPolicy
	base   *url.URL

	// rewriteLink turns a raw result href into the stored original URL. Defaults to absolutizing.
	rewriteLink func(href string) string
	// acceptSweepLink filters anchors considered by the link sweep. Defaults to accepting all.
	acceptSweepLink func(href string) bool
}

func newResultParser(policy config.HeuristicPolicy, base *url.URL) *resultParser {
	p := &resultParser{policy: policy, base: base}
	p.rewriteLink = func(href string) string { return parse.ResolveURL(p.base, href) }
	p.acceptSweepLink = func(string) bool { return true }
	return p
}

// Parse runs the strategies and the post-pass. Output keeps document order.
func (p *resultParser) Parse(doc *goquery.Document) []models.SearchResult {
	strategies := []func(*goquery.Document) *goquery.Selection{
		p.headingContainers,
		p.classContainers,
		p.styledContainers,
	}

	var results []models.SearchResult
	for _, containers := range strategies {
		results = p.parseContainers(containers(doc))
		if len(results) > 0 {
			break
		}
	}
	if len(results) == 0 {
		results = p.linkSweep(doc)
	}
	return finalize(results)
}

// headingContainers returns the nearest enclosing block of every h2/h3, once per block.
func (p *resultParser) headingContainers(doc *goquery.Document) *goquery.Selection {
	seen := make(map[*html.Node]bool)
	var nodes []*html.Node
	doc.Find("h2, h3").Each(func(_ int, h *goquery.Selection) {
		c := h.Closest(containerSelector)
		if c.Length() == 0 {
			return
		}
		n := c.Get(0)
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	})
	return doc.FindNodes(nodes...)
}

// classContainers returns div/li elements whose class carries a result-container token.
func (p *resultParser) classContainers(doc *goquery.Document) *goquery.Selection {
	return doc.Find("div, li").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return utils.ContainsAny(s.AttrOr("class", ""), p.policy.ContainerTokens)
	})
}

func (p *resultParser) styledContainers(doc *goquery.Document) *goquery.Selection {
	return doc.Find("div[style]")
}

func (p *resultParser) parseContainers(containers *goquery.Selection) []models.SearchResult {
	var results []models.SearchResult
	containers.Each(func(_ int, c *goquery.Selection) {
		if r, ok := p.parseContainer(c); ok {
			results = append(results, r)
		}
	})
	return results
}

// parseContainer extracts one result from a container, rejecting it when the title fails the policy.
func (p *resultParser) parseContainer(c *goquery.Selection) (models.SearchResult, bool) {
	title := utils.CleanText(c.Find(headingSelector).First().Text())
	if !p.acceptTitle(title) {
		return models.SearchResult{}, false
	}

	r := models.SearchResult{
		Title:   title,
		Summary: p.summaryOf(c, title),
		Source:  p.sourceOf(c),
	}

	if img := c.Find("img").First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		r.Cover = parse.ResolveURL(p.base, src)
	}
	if href, ok := c.Find("a[href]").First().Attr("href"); ok {
		r.OriginalURL = p.rewriteLink(href)
	}
	return r, true
}

func (p *resultParser) acceptTitle(title string) bool {
	n := utils.RuneLen(title)
	if n < p.policy.MinTitleLength || n > p.policy.MaxTitleLength {
		return false
	}
	return !utils.ContainsAny(title, p.policy.DenyTokens)
}

// summaryOf prefers an element carrying an abstract-like class token. Otherwise it takes the
// first div/p block of at least MinSummaryLength runes that differs from the title and holds no heading.
func (p *resultParser) summaryOf(c *goquery.Selection, title string) string {
	var summary string
	c.Find("div, p, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !utils.ContainsAny(s.AttrOr("class", ""), p.policy.SummaryTokens) {
			return true
		}
		if text := utils.CleanText(s.Text()); text != "" {
			summary = text
			return false
		}
		return true
	})
	if utils.RuneLen(summary) >= p.policy.MinSummaryLength {
		return summary
	}

	c.Find("div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find(headingSelector).Length() > 0 {
			return true
		}
		text := utils.CleanText(s.Text())
		if text != title && utils.RuneLen(text) >= p.policy.MinSummaryLength {
			summary = text
			return false
		}
		return true
	})
	return summary
}

// sourceOf reads the gray "show url" label, falling back to a <cite>.
func (p *resultParser) sourceOf(c *goquery.Selection) string {
	var source string
	c.Find("span, a, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if utils.ContainsAny(s.AttrOr("class", ""), p.policy.SourceTokens) {
			source = utils.CleanText(s.Text())
			return source == ""
		}
		return true
	})
	if source == "" {
		source = utils.CleanText(c.Find("cite").First().Text())
	}
	return source
}

// linkSweep treats every sufficiently long anchor as a result, with its parent's text as summary.
func (p *resultParser) linkSweep(doc *goquery.Document) []models.SearchResult {
	var results []models.SearchResult
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := utils.CleanText(a.Text())
		if utils.RuneLen(text) < p.policy.MinLinkTextLength || utils.ContainsAny(text, p.policy.DenyTokens) {
			return
		}
		href := a.AttrOr("href", "")
		if !p.acceptSweepLink(href) {
			return
		}

		summary := utils.CleanText(a.Parent().Text())
		if summary == text {
			summary = utils.CleanText(a.Parent().Parent().Text())
		}
		results = append(results, models.SearchResult{
			Title:       text,
			Summary:     summary,
			OriginalURL: p.rewriteLink(href),
		})
	})
	return results
}

// finalize dedupes by exact title (first wins), drops invalid records and assigns IDs.
func finalize(results []models.SearchResult) []models.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		if !r.Valid() {
			continue
		}
		r.ID = uuid.NewString()
		out = append(out, r)
	}
	return out
}
