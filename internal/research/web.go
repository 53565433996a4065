package research

import (
	"context"
	"fmt"
	"time"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/crawler"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
)

// WebResearcher 网页调查
type WebResearcher struct {
	summarizer
	fetcher *crawler.Fetcher
	timeout time.Duration
}

// NewWebResearcher 创建网页调查, timeout为整次调查的超时
func NewWebResearcher(llm ai.Completer, language string, fetcher *crawler.Fetcher, timeout time.Duration) *WebResearcher {
	return &WebResearcher{summarizer: newSummarizer(llm, language), fetcher: fetcher, timeout: timeout}
}

// Research 并行抓取所有网页后交给LLM, 由LLM丢弃水位线之前的内容
func (w *WebResearcher) Research(ctx context.Context, rc *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error) {
	if seg.Web == nil || len(seg.Web.URLs) == 0 {
		return models.ResearchResult{}, apperr.Newf(apperr.KindPrecondition, "segment %s has no urls", seg.ID)
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	pages := w.fetcher.FetchPages(ctx, seg.Web.URLs)
	content := crawler.FormatPages(pages)
	if content == "" {
		return models.ResearchResult{}, apperr.Newf(apperr.KindTransient, "segment %s: 所有网页获取失败", seg.ID)
	}

	lastRead := "Never"
	if wm := seg.Watermark(); !wm.IsZero() {
		lastRead = wm.Format(time.RFC3339)
	}
	user := fmt.Sprintf("[Current Time]\n%s\n\n[Last Read Time]\n%s\n\n[Pages]\n%s", rc.Now().Format(time.RFC3339), lastRead, content)
	return w.summarize(ctx, "网页调查 "+seg.ID, ai.WebResearchPrompt(w.language), user, seg)
}
