// Package crawler 抓取网页并提取正文
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Page 抓取到的网页
type Page struct {
	URL       string
	Title     string
	Published string
	Text      string
	Err       error
}

// Fetcher 网页抓取客户端
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// NewFetcher 创建抓取客户端, maxChars限制单页正文长度(0为不限制)
func NewFetcher(timeout time.Duration, maxChars int) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
	}
}

// WithClient 替换HTTP客户端
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchBody 获取URL的原始内容
func (f *Fetcher) FetchBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	// 模拟浏览器请求
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,application/rss+xml,application/atom+xml")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, nil
}

// StatusError 非200响应
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("请求 %s 返回 %d", e.URL, e.StatusCode)
}

// FetchPage 获取网页并用goquery提取标题、发布时间和正文
func (f *Fetcher) FetchPage(ctx context.Context, url string) (Page, error) {
	body, err := f.FetchBody(ctx, url)
	if err != nil {
		return Page{URL: url}, err
	}
	page, err := ExtractPage(url, body)
	if err != nil {
		return page, err
	}
	if f.maxChars > 0 {
		if r := []rune(page.Text); len(r) > f.maxChars {
			page.Text = string(r[:f.maxChars])
		}
	}
	return page, nil
}

// ExtractPage 从HTML中提取正文
func ExtractPage(url string, body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{URL: url}, fmt.Errorf("解析HTML失败: %w", err)
	}

	page := Page{URL: url}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	for _, sel := range []string{`meta[property="article:published_time"]`, `meta[name="pubdate"]`, `meta[name="date"]`} {
		if v, ok := doc.Find(sel).Attr("content"); ok && v != "" {
			page.Published = v
			break
		}
	}
	if page.Published == "" {
		if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			page.Published = v
		}
	}

	doc.Find("script, style, noscript, nav, footer, header, iframe, svg").Remove()
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	page.Text = collapseSpace(root.Text())
	return page, nil
}

func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// FetchPages 并行获取多个网页, 失败的页面记录在Page.Err中
func (f *Fetcher) FetchPages(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			page, err := f.FetchPage(ctx, u)
			if err != nil {
				log.Printf("获取网页失败: %v", err)
				page.Err = err
			}
			pages[i] = page
		}(i, u)
	}
	wg.Wait()
	return pages
}

// FormatPages 把网页整理为LLM输入
func FormatPages(pages []Page) string {
	var parts []string
	for _, p := range pages {
		if p.Err != nil || p.Text == "" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<page url=%q>\n", p.URL)
		if p.Title != "" {
			fmt.Fprintf(&b, "<title>\n%s\n</title>\n", p.Title)
		}
		if p.Published != "" {
			fmt.Fprintf(&b, "<published>%s</published>\n", p.Published)
		}
		fmt.Fprintf(&b, "<article>\n%s\n</article>\n</page>", p.Text)
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n---\n\n")
}
