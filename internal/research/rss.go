package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mmcdole/gofeed"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/crawler"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
)

// RSSResearcher RSS/Atom订阅调查
type RSSResearcher struct {
	summarizer
	fetcher     *crawler.Fetcher
	fetchPolicy resilience.RetryPolicy
}

// NewRSSResearcher 创建RSS调查
func NewRSSResearcher(llm ai.Completer, language string, fetcher *crawler.Fetcher) *RSSResearcher {
	return &RSSResearcher{
		summarizer:  newSummarizer(llm, language),
		fetcher:     fetcher,
		fetchPolicy: resilience.FeedFetchPolicy(),
	}
}

type feedEntry struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	Updated     string `json:"updated"`
}

type feedDigest struct {
	Title       string      `json:"title"`
	Link        string      `json:"link"`
	Description string      `json:"description"`
	Updated     string      `json:"updated"`
	Entries     []feedEntry `json:"entries"`
}

// Research 订阅没有更新或没有比水位线新的条目时直接返回无更新, 不调用LLM
func (r *RSSResearcher) Research(ctx context.Context, rc *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error) {
	if seg.RSS == nil || seg.RSS.FeedURL == "" {
		return models.ResearchResult{}, apperr.Newf(apperr.KindPrecondition, "segment %s has no feed url", seg.ID)
	}

	var body []byte
	err := r.fetchPolicy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		body, err = r.fetcher.FetchBody(ctx, seg.RSS.FeedURL)
		return err
	})
	if err != nil {
		return models.ResearchResult{}, apperr.Wrapf(err, apperr.KindTransient, "获取订阅 %s 失败", seg.RSS.FeedURL)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("解析订阅 %s 失败: %w", seg.RSS.FeedURL, err)
	}

	watermark := seg.Watermark()
	updated := feedUpdated(feed)
	log.Printf("订阅 %s 更新时间: %v 上次读取: %v", seg.RSS.FeedURL, updated, watermark)
	if !updated.IsZero() && !updated.After(watermark) {
		rc.Emit(author, fmt.Sprintf("skipped %s. feed is not updated.", seg.Title))
		return models.NoUpdateResult(seg), nil
	}

	entries := newEntries(feed, watermark)
	if len(entries) == 0 {
		rc.Emit(author, fmt.Sprintf("skipped %s. feed entry is not updated.", seg.Title))
		return models.NoUpdateResult(seg), nil
	}

	digest := feedDigest{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Updated:     updated.Format(time.RFC3339),
		Entries:     entries,
	}
	data, err := json.Marshal(digest)
	if err != nil {
		return models.ResearchResult{}, err
	}
	return r.summarize(ctx, "RSS调查 "+seg.ID, ai.RSSResearchPrompt(r.language), "[Feed]\n"+string(data), seg)
}

// newEntries 返回严格晚于水位线的条目
func newEntries(feed *gofeed.Feed, watermark time.Time) []feedEntry {
	var entries []feedEntry
	for _, item := range feed.Items {
		t := itemTime(item)
		if t.IsZero() {
			if !watermark.IsZero() {
				continue
			}
		} else if !t.After(watermark) {
			continue
		}
		entries = append(entries, feedEntry{
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Content:     item.Content,
			Updated:     t.Format(time.RFC3339),
		})
	}
	return entries
}

func itemTime(item *gofeed.Item) time.Time {
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	return time.Time{}
}

// feedUpdated 订阅的更新时间, 没有时取最新条目的时间
func feedUpdated(feed *gofeed.Feed) time.Time {
	if feed.UpdatedParsed != nil {
		return *feed.UpdatedParsed
	}
	if feed.PublishedParsed != nil {
		return *feed.PublishedParsed
	}
	var latest time.Time
	for _, item := range feed.Items {
		if t := itemTime(item); t.After(latest) {
			latest = t
		}
	}
	return latest
}
