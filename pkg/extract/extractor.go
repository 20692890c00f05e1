package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"content-harvester/pkg/config"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/parse"
	"content-harvester/pkg/utils"
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

// PageFetcher performs one GET. *fetch.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) fetch.Outcome
}

// RuleMatch records which rule selectors produced a non-empty field
type RuleMatch struct {
	Title   bool
	Content bool
}

// Complete reports whether the rule alone filled both fields.
func (m RuleMatch) Complete() bool {
	return m.Title && m.Content
}

// Extraction is the typed outcome of one detail extraction
type Extraction struct {
	Detail models.DetailResult
	Match  RuleMatch
	Status models.FetchStatus
	Err    error // set when Status is failed
}

// Extractor fetches article pages and pulls structured fields out of them
type Extractor struct {
	fetcher PageFetcher
	policy  config.HeuristicPolicy
	log     *logrus.Entry
}

// NewExtractor creates an Extractor sharing the heuristic policy of the adapters.
func NewExtractor(fetcher PageFetcher, policy config.HeuristicPolicy, log *logrus.Entry) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		policy:  policy,
		log:     log,
	}
}

// Extract is the flattened contract: any fetch or parse failure yields an empty DetailResult.
func (e *Extractor) Extract(ctx context.Context, rawURL string, rule *models.SiteRule, headers map[string]string, cfg config.CrawlerConfig) models.DetailResult {
	return e.ExtractTyped(ctx, rawURL, rule, headers, cfg).Detail
}

// ExtractTyped fetches rawURL and extracts it. rule may be nil.
// Header precedence, lowest first: defaults, rule headers, explicit headers.
func (e *Extractor) ExtractTyped(ctx context.Context, rawURL string, rule *models.SiteRule, headers map[string]string, cfg config.CrawlerConfig) Extraction {
	extLog := e.log.WithField("url", rawURL)
	if rule != nil {
		extLog = extLog.WithField("rule", rule.SiteName)
	}

	if _, err := parse.ParseHTTPURL(rawURL); err != nil {
		extLog.Warnf("Rejecting extraction: %v", err)
		return failed(err)
	}

	out := e.fetcher.Fetch(ctx, rawURL, requestHeaders(rule, headers, cfg), cfg.Timeout)
	switch out.Status {
	case models.FetchStatusSuccess:
	case models.FetchStatusEmpty:
		return Extraction{Detail: models.EmptyDetail(), Status: models.FetchStatusEmpty}
	default:
		extLog.WithField("error_category", utils.CategorizeError(out.Err)).Warnf("Detail fetch failed: %v", out.Err)
		return failed(out.Err)
	}

	doc, err := out.Page.Document()
	if err != nil {
		extLog.Warnf("Detail parse failed: %v", err)
		return failed(err)
	}

	detail, match := ExtractDocument(doc, out.Page.URL, rule, e.policy)
	status := models.FetchStatusSuccess
	if detail.IsEmpty() {
		status = models.FetchStatusEmpty
	}
	extLog.WithFields(logrus.Fields{
		"rule_title":   match.Title,
		"rule_content": match.Content,
		"content_len":  utils.RuneLen(detail.Content),
		"images":       len(detail.Images),
		"links":        len(detail.Links),
	}).Debug("Extracted detail")

	return Extraction{Detail: detail, Match: match, Status: status}
}

func failed(err error) Extraction {
	return Extraction{Detail: models.EmptyDetail(), Status: models.FetchStatusFailed, Err: err}
}

// requestHeaders merges header sources with canonical keys so later sources override earlier ones deterministically.
func requestHeaders(rule *models.SiteRule, explicit map[string]string, cfg config.CrawlerConfig) map[string]string {
	merged := map[string]string{
		"User-Agent": cfg.UserAgent,
		"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
	apply := func(h map[string]string) {
		for k, v := range h {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			merged[http.CanonicalHeaderKey(k)] = v
		}
	}
	if rule != nil {
		apply(rule.RequestHeaders)
	}
	apply(explicit)
	return merged
}

// ExtractDocument extracts a parsed page. Each rule selector that resolves to non-empty text
// supplies its field; any other field comes from the heuristics, so a rule that never matches
// gives exactly the heuristic result.
func ExtractDocument(doc *goquery.Document, base *url.URL, rule *models.SiteRule, policy config.HeuristicPolicy) (models.DetailResult, RuleMatch) {
	detail := models.EmptyDetail()
	var match RuleMatch

	if rule != nil && rule.TitleSelector != "" {
		detail.Title = utils.CleanText(doc.Find(rule.TitleSelector).First().Text())
		match.Title = detail.Title != ""
	}
	if !match.Title {
		detail.Title = heuristicTitle(doc)
	}

	if rule != nil && rule.ContentSelector != "" {
		blocks := doc.Find(rule.ContentSelector)
		if text := BlockText(blocks); text != "" {
			detail.Content = text
			detail.ContentHTML = outerHTML(blocks)
			match.Content = true
		}
	}
	if !match.Content {
		detail.Content, detail.ContentHTML = heuristicContent(doc, policy)
	}

	detail.Images = images(doc, base, policy)
	detail.Videos = videos(doc, base, policy)
	detail.Links = links(doc, base, policy)
	detail.MetaData = metaData(doc)
	return detail, match
}

func heuristicTitle(doc *goquery.Document) string {
	var title string
	doc.Find(headingSelector).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		title = utils.CleanText(h.Text())
		return title == ""
	})
	return title
}

// heuristicContent concatenates non-navigational content blocks until the text passes
// ContentCutoffLength. Blocks nested in an already taken block are skipped. When the result is
// shorter than MinContentLength it is replaced by every paragraph longer than MinParagraphLength.
func heuristicContent(doc *goquery.Document, policy config.HeuristicPolicy) (string, string) {
	var (
		parts  []string
		taken  []*html.Node
		markup strings.Builder
		length int
	)
	doc.Find("article, div, section").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class := s.AttrOr("class", "")
		if class == "" || !utils.ContainsAny(class, policy.ContentTokens) || IsNavigational(s, policy.NavTokens) {
			return true
		}
		if insideAny(s.Get(0), taken) {
			return true
		}
		text := BlockText(s)
		if text == "" {
			return true
		}
		taken = append(taken, s.Get(0))
		parts = append(parts, text)
		markup.WriteString(outerHTML(s))
		length += utils.RuneLen(text)
		return length <= policy.ContentCutoffLength
	})

	content := strings.Join(parts, "\n")
	if utils.RuneLen(content) >= policy.MinContentLength {
		return content, markup.String()
	}

	parts = parts[:0]
	markup.Reset()
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := utils.CleanText(p.Text())
		if utils.RuneLen(text) > policy.MinParagraphLength {
			parts = append(parts, text)
			markup.WriteString(outerHTML(p))
		}
	})
	return strings.Join(parts, "\n"), markup.String()
}

func insideAny(n *html.Node, ancestors []*html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, a := range ancestors {
			if p == a {
				return true
			}
		}
	}
	return false
}

// images returns every sufficiently long img src, absolutized, first occurrence kept.
func images(doc *goquery.Document, base *url.URL, policy config.HeuristicPolicy) []string {
	seen := make(map[string]bool)
	out := []string{}
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if utils.RuneLen(src) <= policy.MinMediaSrcLength {
			return
		}
		abs := parse.ResolveURL(base, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}

func videos(doc *goquery.Document, base *url.URL, policy config.HeuristicPolicy) []string {
	seen := make(map[string]bool)
	out := []string{}
	doc.Find("video[src], iframe[src]").Each(func(_ int, v *goquery.Selection) {
		src := strings.TrimSpace(v.AttrOr("src", ""))
		if !utils.ContainsAny(src, policy.VideoTokens) {
			return
		}
		abs := parse.ResolveURL(base, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}

// links pairs every usable href with its text. Order is kept and duplicates are not removed.
func links(doc *goquery.Document, base *url.URL, policy config.HeuristicPolicy) []models.Link {
	out := []models.Link{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if utils.RuneLen(href) <= policy.MinMediaSrcLength {
			return
		}
		abs := parse.ResolveURL(base, href)
		if abs == "" {
			return
		}
		out = append(out, models.Link{Text: utils.CleanText(a.Text()), Href: abs})
	})
	return out
}

// metaData maps name, property or http-equiv to content. A repeated key keeps the last value.
func metaData(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("meta").Each(func(_ int, m *goquery.Selection) {
		key := m.AttrOr("name", "")
		if key == "" {
			key = m.AttrOr("property", "")
		}
		if key == "" {
			key = m.AttrOr("http-equiv", "")
		}
		content := m.AttrOr("content", "")
		if key != "" && content != "" {
			out[key] = content
		}
	})
	return out
}

// String renders a one-line description for logs.
func (m RuleMatch) String() string {
	return fmt.Sprintf("title=%t content=%t", m.Title, m.Content)
}
