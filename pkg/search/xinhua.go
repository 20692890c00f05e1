package search

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
	"content-harvester/pkg/parse"
	"content-harvester/pkg/utils"
)

const xinhuaSourceLabel = "新华网"

// Xinhua reads the single Sichuan headline list of sc.news.cn. It has no search or paging:
// the keyword only filters titles and may be empty.
type Xinhua struct {
	*provider
}

func newXinhua(p *provider) *Xinhua {
	return &Xinhua{provider: p}
}

func (x *Xinhua) Name() string { return config.ProviderXinhua }

func (x *Xinhua) KeywordOptional() bool { return true }

func (x *Xinhua) Fetch(ctx context.Context, keyword string, pageIndex int, cfg config.CrawlerConfig) PageResult {
	if pageIndex > 0 {
		return PageResult{Results: []models.SearchResult{}, Status: models.FetchStatusEmpty}
	}

	doc, failed := x.get(ctx, x.endpoint("/scyw.htm", nil), cfg)
	if doc == nil {
		return failed
	}
	return resultOf(x.parseList(doc, strings.TrimSpace(keyword)))
}

func (x *Xinhua) parseList(doc *goquery.Document, keyword string) []models.SearchResult {
	var results []models.SearchResult
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := parse.ResolveURL(x.base, a.AttrOr("href", ""))
		if !strings.Contains(href, "news.cn") {
			return
		}
		title := utils.CleanText(a.Text())
		if utils.RuneLen(title) <= x.policy.MinTitleLength {
			return
		}
		if keyword != "" && !strings.Contains(title, keyword) {
			return
		}
		results = append(results, models.SearchResult{
			Title:       title,
			OriginalURL: href,
			Source:      xinhuaSourceLabel,
		})
	})
	return finalize(results)
}
