package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/config"
	"content-harvester/pkg/fetch"
	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

const baiduPage = `<html><body><div id="content_left">
<div class="result c-container">
  <h3 class="t"><a href="/link?url=abc123">西昌卫星发射中心成功发射新一代通信卫星</a></h3>
  <div class="c-abstract">北京时间今日，西昌卫星发射中心使用长征三号乙运载火箭成功发射通信卫星。</div>
  <span class="c-color-gray">新华网</span>
</div>
<div class="result c-container">
  <h3 class="t"><a href="/link?url=def456">西昌邛海湿地公园迎来大批越冬候鸟</a></h3>
  <div class="c-abstract">随着气温下降，大批红嘴鸥等越冬候鸟陆续飞抵西昌邛海湿地公园栖息。</div>
</div>
</div></body></html>`

const bingPage = `<html><body><ol id="b_results">
<li class="b_algo"><h2><a href="https://www.sc.gov.cn/news/1.html">四川省人民政府发布西昌旅游发展规划通知</a></h2>
  <div class="b_caption"><cite>www.sc.gov.cn</cite><p>四川省人民政府近日发布西昌旅游发展规划，推动文旅融合发展。</p></div></li>
</ol></body></html>`

const xinhuaPage = `<html><body><ul>
<li><a href="http://www.news.cn/local/2024-01/01/c_1.htm">西昌邛海湿地迎来大批越冬候鸟栖息</a></li>
<li><a href="/20240102/c_2.htm">凉山州西昌市举行冬季马拉松比赛活动</a></li>
<li><a href="http://sc.news.cn/c_3.htm">成都大运会场馆赛后利用情况良好</a></li>
<li><a href="http://sc.news.cn/c_4.htm">短新闻</a></li>
<li><a href="https://example.com/c_5.htm">西昌外部网站的一条很长的新闻标题</a></li>
</ul></body></html>`

// providerServer serves all three providers from one mux and records the query of every request
type providerServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
	cookies []string
}

func newProviderServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request) bool) *providerServer {
	t.Helper()
	ps := &providerServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.queries = append(ps.queries, r.URL.RawQuery)
		ps.cookies = append(ps.cookies, r.Header.Get("Cookie"))
		ps.mu.Unlock()

		if handler != nil && handler(w, r) {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/s":
			fmt.Fprint(w, baiduPage)
		case "/search":
			fmt.Fprint(w, bingPage)
		case "/scyw.htm":
			fmt.Fprint(w, xinhuaPage)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *providerServer) Queries() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]string(nil), ps.queries...)
}

func (ps *providerServer) Cookies() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]string(nil), ps.cookies...)
}

func testAppConfig(t *testing.T, baseURL string, sessions ...config.SessionConfig) config.AppConfig {
	t.Helper()
	appCfg := config.AppConfig{StateDir: t.TempDir(), Providers: map[string]config.ProviderConfig{}}
	for _, name := range config.KnownProviders {
		appCfg.Providers[name] = config.ProviderConfig{BaseURL: baseURL, Sessions: sessions}
	}
	_, err := appCfg.Validate()
	require.NoError(t, err)
	return appCfg
}

func testAdapters(t *testing.T, appCfg config.AppConfig) map[string]Adapter {
	t.Helper()
	client := fetch.NewClient(appCfg.HTTPClientSettings, testLogger())
	fetcher := fetch.NewFetcher(client, nil, 0, testLogger())
	adapters, err := NewAdapters(appCfg, fetcher, testLogger())
	require.NoError(t, err)
	return adapters
}

func TestBaidu_Fetch(t *testing.T) {
	srv := newProviderServer(t, nil)
	appCfg := testAppConfig(t, srv.URL)
	baidu := testAdapters(t, appCfg)[config.ProviderBaidu]

	res := baidu.Fetch(context.Background(), "西昌", 2, appCfg.Crawler)
	require.Equal(t, models.FetchStatusSuccess, res.Status)
	require.Len(t, res.Results, 2)

	assert.Equal(t, srv.URL+"/link?url=abc123", res.Results[0].OriginalURL)
	assert.Equal(t, "新华网", res.Results[0].Source)
	assert.Contains(t, res.Results[1].Summary, "红嘴鸥")

	queries := srv.Queries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "pn=20")
	assert.Contains(t, queries[0], "wd=%E8%A5%BF%E6%98%8C")
}

func TestBaidu_SweepLinks(t *testing.T) {
	p := &provider{policy: config.DefaultHeuristicPolicy(), base: mustURL(t, "https://www.baidu.com")}
	b := newBaidu(p)

	tests := []struct {
		href string
		want bool
	}{
		{"/link?url=zzz", true},
		{"/s?wd=other", false},
		{"https://news.example.com/x", true},
		{"http://www.baidu.com/more", false},
		{"http://www.baidu.com/link?url=1", true},
		{"javascript:void(0)", false},
		{"#", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.want, b.parser.acceptSweepLink(tt.href))
		})
	}
	assert.Equal(t, "https://www.baidu.com/link?url=zzz", b.parser.rewriteLink("/link?url=zzz"))
}

func TestBing_Fetch(t *testing.T) {
	srv := newProviderServer(t, nil)
	appCfg := testAppConfig(t, srv.URL)
	bing := testAdapters(t, appCfg)[config.ProviderBing]

	res := bing.Fetch(context.Background(), "西昌旅游", 1, appCfg.Crawler)
	require.Equal(t, models.FetchStatusSuccess, res.Status)
	require.Len(t, res.Results, 1)

	r := res.Results[0]
	assert.Equal(t, "四川省人民政府发布西昌旅游发展规划通知", r.Title)
	assert.Equal(t, "https://www.sc.gov.cn/news/1.html", r.OriginalURL)
	assert.Equal(t, "www.sc.gov.cn", r.Source)
	assert.Contains(t, r.Summary, "文旅融合")
	assert.Contains(t, srv.Queries()[0], "first=11")
}

func TestBing_SweepRejectsInternalLinks(t *testing.T) {
	p := &provider{policy: config.DefaultHeuristicPolicy(), base: mustURL(t, "https://cn.bing.com")}
	b := newBing(p)

	assert.True(t, b.parser.acceptSweepLink("https://www.sc.gov.cn/a"))
	assert.False(t, b.parser.acceptSweepLink("https://cn.bing.com/search?q=x"))
	assert.False(t, b.parser.acceptSweepLink("/search?q=x"))
}

func TestXinhua_Fetch(t *testing.T) {
	srv := newProviderServer(t, nil)
	appCfg := testAppConfig(t, srv.URL)
	xinhua := testAdapters(t, appCfg)[config.ProviderXinhua]
	require.True(t, xinhua.KeywordOptional())

	t.Run("keyword filters titles", func(t *testing.T) {
		res := xinhua.Fetch(context.Background(), "西昌", 0, appCfg.Crawler)
		require.Equal(t, models.FetchStatusSuccess, res.Status)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "西昌邛海湿地迎来大批越冬候鸟栖息", res.Results[0].Title)
		assert.Equal(t, "新华网", res.Results[0].Source)
	})

	t.Run("empty keyword lists every headline", func(t *testing.T) {
		res := xinhua.Fetch(context.Background(), "", 0, appCfg.Crawler)
		assert.Equal(t, []string{"西昌邛海湿地迎来大批越冬候鸟栖息", "成都大运会场馆赛后利用情况良好"}, titles(res.Results))
	})

	t.Run("later pages are empty without a request", func(t *testing.T) {
		before := len(srv.Queries())
		res := xinhua.Fetch(context.Background(), "西昌", 1, appCfg.Crawler)
		assert.Equal(t, models.FetchStatusEmpty, res.Status)
		assert.NotNil(t, res.Results)
		assert.Empty(t, res.Results)
		assert.Len(t, srv.Queries(), before)
	})
}

func TestAdapter_TransportFailureIsEmpty(t *testing.T) {
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		http.Error(w, "boom", http.StatusInternalServerError)
		return true
	})
	appCfg := testAppConfig(t, srv.URL)

	for name, adapter := range testAdapters(t, appCfg) {
		t.Run(name, func(t *testing.T) {
			res := adapter.Fetch(context.Background(), "西昌", 0, appCfg.Crawler)
			assert.Equal(t, models.FetchStatusFailed, res.Status)
			assert.ErrorIs(t, res.Err, utils.ErrServerHTTPError)

			flat := FetchPage(context.Background(), adapter, "西昌", 0, appCfg.Crawler)
			assert.NotNil(t, flat)
			assert.Empty(t, flat)
		})
	}
}

func TestAdapter_RejectedCookieLeavesRotation(t *testing.T) {
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		if strings.Contains(r.Header.Get("Cookie"), "BAIDUID=A") {
			w.WriteHeader(http.StatusForbidden)
			return true
		}
		return false
	})
	appCfg := testAppConfig(t, srv.URL,
		config.SessionConfig{Cookie: "BAIDUID=A"},
		config.SessionConfig{Cookie: "BAIDUID=B"},
	)
	baidu := testAdapters(t, appCfg)[config.ProviderBaidu]

	first := baidu.Fetch(context.Background(), "西昌", 0, appCfg.Crawler)
	assert.Equal(t, models.FetchStatusFailed, first.Status)
	assert.ErrorIs(t, first.Err, utils.ErrClientHTTPError)

	for range 2 {
		res := baidu.Fetch(context.Background(), "西昌", 0, appCfg.Crawler)
		assert.Equal(t, models.FetchStatusSuccess, res.Status)
	}
	assert.Equal(t, []string{"BAIDUID=A", "BAIDUID=B", "BAIDUID=B"}, srv.Cookies())
}

func TestAdapter_SendsProviderHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := newProviderServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		headers <- r.Header.Clone()
		return false
	})
	appCfg := testAppConfig(t, srv.URL)
	bing := testAdapters(t, appCfg)[config.ProviderBing]

	bing.Fetch(context.Background(), "西昌", 0, appCfg.Crawler)
	got := <-headers
	assert.Equal(t, appCfg.Crawler.UserAgent, got.Get("User-Agent"))
	assert.Contains(t, got.Get("Accept-Language"), "zh-CN")
	assert.Equal(t, srv.URL+"/", got.Get("Referer"))
	assert.Empty(t, got.Get("Cookie"))
}

func TestNewAdapters(t *testing.T) {
	t.Run("disabled provider is skipped", func(t *testing.T) {
		off := false
		appCfg := config.AppConfig{Providers: map[string]config.ProviderConfig{
			config.ProviderBing: {Enabled: &off},
		}}
		_, err := appCfg.Validate()
		require.NoError(t, err)

		adapters := testAdapters(t, appCfg)
		assert.Contains(t, adapters, config.ProviderBaidu)
		assert.Contains(t, adapters, config.ProviderXinhua)
		assert.NotContains(t, adapters, config.ProviderBing)
	})

	t.Run("invalid base url", func(t *testing.T) {
		appCfg := config.AppConfig{Providers: map[string]config.ProviderConfig{
			config.ProviderBaidu: {BaseURL: "not a url"},
		}}
		_, err := appCfg.Validate()
		require.NoError(t, err)

		_, err = NewAdapters(appCfg, nil, testLogger())
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})
}
