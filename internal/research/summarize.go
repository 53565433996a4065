package research

import (
	"context"

	"radio-station/internal/ai"
	"radio-station/internal/models"
	"radio-station/internal/resilience"
)

// summarizer 用LLM把抓取到的内容整理为调查结果
type summarizer struct {
	llm      ai.Completer
	language string
	policy   resilience.RetryPolicy
}

func newSummarizer(llm ai.Completer, language string) summarizer {
	return summarizer{llm: llm, language: language, policy: resilience.LLMPolicy()}
}

func (s summarizer) summarize(ctx context.Context, name, system, user string, seg models.ProgramSegment) (models.ResearchResult, error) {
	p := ai.Pipeline[models.ProgramSegment, models.ResearchResult]{
		Name: name,
		Prepare: func(seg models.ProgramSegment) (ai.Request, error) {
			return ai.Request{
				System:   system,
				User:     segmentHeader(seg) + "\n\n" + user,
				JSON:     true,
				Thinking: true,
			}, nil
		},
		Postprocess: func(raw string, seg models.ProgramSegment) (models.ResearchResult, error) {
			var res models.ResearchResult
			if err := ai.ResearchSchema.Decode(raw, &res); err != nil {
				return res, err
			}
			return res, nil
		},
	}
	return p.Run(ctx, s.llm, seg, s.policy)
}

func segmentHeader(seg models.ProgramSegment) string {
	return "[Segment]\nTitle: " + seg.Title + "\nDescription: " + seg.Description + "\nConstraints: " + seg.Constraints
}
