package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
)

const bingPageSize = 10

// Bing searches cn.bing.com. Results sit in li.b_algo with the display URL in <cite>.
type Bing struct {
	*provider
	parser *resultParser
}

func newBing(p *provider) *Bing {
	b := &Bing{provider: p, parser: newResultParser(p.policy, p.base)}
	b.parser.acceptSweepLink = func(href string) bool {
		href = strings.TrimSpace(strings.ToLower(href))
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return false
		}
		return !strings.Contains(href, "bing.com") && !strings.Contains(href, strings.ToLower(p.base.Host))
	}
	return b
}

func (b *Bing) Name() string { return config.ProviderBing }

func (b *Bing) KeywordOptional() bool { return false }

func (b *Bing) Fetch(ctx context.Context, keyword string, pageIndex int, cfg config.CrawlerConfig) PageResult {
	query := url.Values{}
	query.Set("q", keyword)
	query.Set("first", strconv.Itoa(pageIndex*bingPageSize+1))

	doc, failed := b.get(ctx, b.endpoint("/search", query), cfg)
	if doc == nil {
		return failed
	}
	results := b.parser.Parse(doc)
	b.log.WithFields(logrus.Fields{"keyword": keyword, "page_index": pageIndex, "count": len(results)}).Debug("Parsed result page")
	return resultOf(results)
}
