// Package newsletter 根据台本写节目简报
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/session"
)

const author = "NewsletterWriter"

// Stage 简报阶段
type Stage struct {
	llm      ai.Completer
	language string
	policy   resilience.RetryPolicy
}

// NewStage 创建简报阶段
func NewStage(llm ai.Completer, language string) *Stage {
	return &Stage{llm: llm, language: language, policy: resilience.LLMPolicy()}
}

// WithPolicy 替换重试策略
func (s *Stage) WithPolicy(p resilience.RetryPolicy) *Stage {
	s.policy = p
	return s
}

// Name 阶段名
func (s *Stage) Name() string { return author }

type input struct {
	now      string
	plan     models.ProgramPlan
	results  []models.ResearchResult
	casts    []models.RadioCast
	segments []models.TalkScriptSegment
}

// Run 生成简报, 保存到会话状态和newsletter.md
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.State.Has(session.KeyNewsletterContents) {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	plan, ok, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindDataIntegrity, "program structure not found")
	}
	segments, ok, err := session.Value[[]models.TalkScriptSegment](rc.State, session.KeyWriterSegments)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindDataIntegrity, "talk script segments not found")
	}
	results, _, err := session.Value[[]models.ResearchResult](rc.State, session.KeyResearchResults)
	if err != nil {
		return err
	}

	p := ai.Pipeline[input, string]{
		Name:        "节目简报",
		Prepare:     s.prepare,
		Postprocess: postprocess,
	}
	contents, err := p.Run(ctx, s.llm, input{
		now:      rc.Now().Format("2006-01-02T15:04:05Z07:00"),
		plan:     plan,
		results:  results,
		casts:    rc.Casts,
		segments: segments,
	}, s.policy)
	if err != nil {
		return err
	}

	if _, err := rc.Artifacts.Save(ctx, artifact.NewsletterName, []byte(contents), "text/markdown"); err != nil && !errors.Is(err, artifact.ErrExists) {
		return fmt.Errorf("保存简报失败: %w", err)
	}
	if err := rc.State.Set(ctx, session.KeyNewsletterContents, contents); err != nil {
		return err
	}
	rc.Emit(author, "finish writing newsletter")
	return nil
}

func (s *Stage) prepare(in input) (ai.Request, error) {
	casts := make([]string, 0, len(in.casts))
	for _, c := range in.casts {
		casts = append(casts, c.LLMText())
	}
	scripts := make([]string, 0, len(in.segments))
	for _, seg := range in.segments {
		scripts = append(scripts, seg.TalkScriptText(in.casts))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<CurrentTime>%s</CurrentTime>\n", in.now)
	fmt.Fprintf(&b, "<ProgramPlan>%s</ProgramPlan>\n", in.plan.LLMText(true))
	fmt.Fprintf(&b, "<ResearchResult>%s</ResearchResult>\n", models.ResultsJSON(in.results))
	fmt.Fprintf(&b, "<RadioCasts>%s</RadioCasts>\n", strings.Join(casts, "\n========="))
	fmt.Fprintf(&b, "<TalkScripts>\n%s\n</TalkScripts>", strings.Join(scripts, "\n========="))
	return ai.Request{
		System:      ai.NewsletterPrompt(s.language),
		User:        b.String(),
		Temperature: 0.7,
	}, nil
}

func postprocess(raw string, _ input) (string, error) {
	text := ai.StripCodeFence(raw)
	if text == "" {
		return "", apperr.New(apperr.KindTransient, "newsletter is empty")
	}
	return text, nil
}
