package search

import (
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/config"
	"content-harvester/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func titles(results []models.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Title)
	}
	return out
}

const headingContainersPage = `<html><body><div id="content_left">
<div class="result c-container">
  <h3><a href="/news/1.html">西昌卫星发射中心成功发射新一代通信卫星</a></h3>
  <div class="c-abstract">北京时间今日，西昌卫星发射中心使用长征三号乙运载火箭成功发射通信卫星。</div>
  <span class="c-color-gray">新华网</span>
  <img data-src="/img/cover1.jpg">
</div>
<div class="result c-container">
  <h3><a href="/news/2.html">百度首页的帮助中心入口页面链接</a></h3>
  <div class="c-abstract">这一条的标题含有界面用语，应当被过滤掉，不出现在结果里。</div>
</div>
<div class="result c-container">
  <h3><a href="/news/3.html">短标题</a></h3>
  <div class="c-abstract">标题太短的条目同样应当被过滤掉，不出现在结果里面。</div>
</div>
<div class="result c-container">
  <h3><a href="/news/4.html">西昌卫星发射中心成功发射新一代通信卫星</a></h3>
  <div class="c-abstract">重复的标题只保留第一次出现的那一条结果记录即可。</div>
</div>
<div class="result c-container">
  <h3><a href="/news/5.html">凉山州召开西昌市城市更新工作推进会议</a></h3>
  <p>会议强调，要加快推进城市更新工作，持续改善人居环境质量。</p>
</div>
</div></body></html>`

func TestResultParser_HeadingContainers(t *testing.T) {
	p := newResultParser(config.DefaultHeuristicPolicy(), mustURL(t, "https://www.example.com"))
	results := p.Parse(mustDoc(t, headingContainersPage))

	require.Len(t, results, 2)
	assert.Equal(t, []string{"西昌卫星发射中心成功发射新一代通信卫星", "凉山州召开西昌市城市更新工作推进会议"}, titles(results))

	first := results[0]
	assert.NotEmpty(t, first.ID)
	assert.Contains(t, first.Summary, "长征三号乙")
	assert.Equal(t, "新华网", first.Source)
	assert.Equal(t, "https://www.example.com/img/cover1.jpg", first.Cover)
	assert.Equal(t, "https://www.example.com/news/1.html", first.OriginalURL)

	// No abstract class: the first plain block long enough is used
	assert.Contains(t, results[1].Summary, "城市更新")
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestResultParser_ClassContainers(t *testing.T) {
	page := `<html><body>
<div class="result"><span class="title">没有标题标签的结果</span></div>
<li class="b_algo"><a href="https://a.example.com/x"><h4>这一条结果只有四级标题作为标题</h4></a>
  <p>四级标题不会触发标题容器策略，因此由类名容器策略负责解析。</p></li>
</body></html>`
	p := newResultParser(config.DefaultHeuristicPolicy(), mustURL(t, "https://www.example.com"))
	results := p.Parse(mustDoc(t, page))

	require.Len(t, results, 1)
	assert.Equal(t, "这一条结果只有四级标题作为标题", results[0].Title)
	assert.Equal(t, "https://a.example.com/x", results[0].OriginalURL)
}

func TestResultParser_StyledContainers(t *testing.T) {
	page := `<html><body>
<div style="margin:0"><h4>由内联样式容器承载的一条结果标题</h4><a href="/detail">详情</a></div>
</body></html>`
	p := newResultParser(config.DefaultHeuristicPolicy(), mustURL(t, "https://www.example.com"))
	results := p.Parse(mustDoc(t, page))

	require.Len(t, results, 1)
	assert.Equal(t, "https://www.example.com/detail", results[0].OriginalURL)
}

func TestResultParser_LinkSweep(t *testing.T) {
	page := `<html><body><ul>
<li><a href="https://news.example.com/a">这是一个足够长的新闻标题用于测试链接扫描</a> 附加说明文字</li>
<li><span><a href="https://news.example.com/b">第二个足够长的新闻标题用于测试链接扫描</a></span> 祖父节点的说明</li>
<li><a href="https://news.example.com/c">短链接</a></li>
<li><a href="https://news.example.com/d">点击这里进入下一页继续浏览更多的搜索结果</a></li>
</ul></body></html>`
	p := newResultParser(config.DefaultHeuristicPolicy(), mustURL(t, "https://www.example.com"))
	results := p.Parse(mustDoc(t, page))

	require.Len(t, results, 2)
	assert.Equal(t, "这是一个足够长的新闻标题用于测试链接扫描 附加说明文字", results[0].Summary)
	assert.Equal(t, "https://news.example.com/a", results[0].OriginalURL)
	// Parent text equals the anchor text, so the grandparent is used
	assert.Contains(t, results[1].Summary, "祖父节点的说明")
}

func TestResultParser_EmptyPage(t *testing.T) {
	p := newResultParser(config.DefaultHeuristicPolicy(), mustURL(t, "https://www.example.com"))
	results := p.Parse(mustDoc(t, "<html><body><p>nothing</p></body></html>"))
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFinalize(t *testing.T) {
	in := []models.SearchResult{
		{Title: "a", Summary: "s"},
		{Title: "a", Summary: "second"},
		{Title: "b"}, // invalid: title only
		{Title: "c", OriginalURL: "https://x"},
	}
	out := finalize(in)
	require.Len(t, out, 2)
	assert.Equal(t, "s", out[0].Summary)
	assert.Equal(t, "c", out[1].Title)
	for _, r := range out {
		assert.NotEmpty(t, r.ID)
	}
}
