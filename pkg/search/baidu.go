package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/parse"
)

const baiduPageSize = 10

// Baidu searches www.baidu.com. Result links are Baidu redirect links (/link?url=...).
type Baidu struct {
	*provider
	parser *resultParser
}

func newBaidu(p *provider) *Baidu {
	b := &Baidu{provider: p, parser: newResultParser(p.policy, p.base)}
	origin := parse.Origin(p.base)
	b.parser.rewriteLink = func(href string) string {
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "/link?") {
			return origin + href
		}
		return parse.ResolveURL(p.base, href)
	}
	b.parser.acceptSweepLink = func(href string) bool {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return false
		}
		if strings.HasPrefix(href, "/") {
			return strings.HasPrefix(href, "/link?")
		}
		internal := strings.Contains(href, "baidu.com") || strings.Contains(href, p.base.Host)
		return !internal || strings.Contains(href, "link?")
	}
	return b
}

func (b *Baidu) Name() string { return config.ProviderBaidu }

func (b *Baidu) KeywordOptional() bool { return false }

func (b *Baidu) Fetch(ctx context.Context, keyword string, pageIndex int, cfg config.CrawlerConfig) PageResult {
	query := url.Values{}
	query.Set("wd", keyword)
	query.Set("ie", "utf-8")
	query.Set("tn", "baiduhome_pg")
	query.Set("pn", strconv.Itoa(pageIndex*baiduPageSize))

	doc, failed := b.get(ctx, b.endpoint("/s", query), cfg)
	if doc == nil {
		return failed
	}
	results := b.parser.Parse(doc)
	b.log.WithFields(logrus.Fields{"keyword": keyword, "page_index": pageIndex, "count": len(results)}).Debug("Parsed result page")
	return resultOf(results)
}
