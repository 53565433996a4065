// Package planner 根据调查结果设计节目结构
package planner

import (
	"context"
	"fmt"
	"slices"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/session"
)

const author = "ProgramPlanner"

// Stage 节目结构规划阶段
type Stage struct {
	llm      ai.Completer
	language string
	policy   resilience.RetryPolicy
}

// NewStage 创建规划阶段
func NewStage(llm ai.Completer, language string) *Stage {
	return &Stage{llm: llm, language: language, policy: resilience.LLMPolicy()}
}

// WithPolicy 替换LLM重试策略
func (s *Stage) WithPolicy(p resilience.RetryPolicy) *Stage {
	s.policy = p
	return s
}

// Name 阶段名
func (s *Stage) Name() string { return author }

type planInput struct {
	program *models.ListenerProgram
	results []models.ResearchResult
	now     string
}

// Run 生成节目结构, 给段落编号并确定每个段落的出演者
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if rc.State.Has(session.KeyProgramStructure) {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	if rc.Program == nil {
		return apperr.New(apperr.KindPrecondition, "listener program is not loaded")
	}
	results, ok, err := session.Value[[]models.ResearchResult](rc.State, session.KeyResearchResults)
	if err != nil {
		return err
	}
	if !ok || len(results) == 0 {
		return apperr.New(apperr.KindDataIntegrity, "research results not found")
	}

	rc.Emit(author, "start planning program")
	p := ai.Pipeline[planInput, models.ProgramPlan]{
		Name:        "节目规划",
		Prepare:     s.prepare,
		Postprocess: decodePlan,
	}
	plan, err := p.Run(ctx, s.llm, planInput{program: rc.Program, results: results, now: rc.Now().Format("2006-01-02 15:04 MST")}, s.policy)
	if err != nil {
		return err
	}

	plan.ListenerID = rc.ListenerID
	plan.ListenerProgramID = rc.ProgramID
	if err := AssignCasts(&plan, rc.Program, rc.Segments, rc.Casts); err != nil {
		return err
	}
	if err := rc.State.Set(ctx, session.KeyProgramStructure, plan); err != nil {
		return err
	}
	rc.Logf("节目结构: %s, %d 个段落, %.0f 秒", plan.Title, len(plan.Segments), plan.ProgramSeconds)
	rc.Emit(author, fmt.Sprintf("finish planning program: %s (%d segments)", plan.Title, len(plan.Segments)))
	return nil
}

func (s *Stage) prepare(in planInput) (ai.Request, error) {
	user := fmt.Sprintf("[Current Time]\n%s\n\n[Program]\n%s\n\n[Research Results]\n%s",
		in.now, in.program.LLMText(), models.ResultsJSON(in.results))
	return ai.Request{
		System:   ai.ProgramPlannerPrompt(s.language),
		User:     user,
		JSON:     true,
		Thinking: true,
	}, nil
}

// decodePlan 校验LLM输出, 引用了未知调查结果时为数据完整性错误
func decodePlan(raw string, in planInput) (models.ProgramPlan, error) {
	var plan models.ProgramPlan
	if err := ai.ProgramPlanSchema.Decode(raw, &plan); err != nil {
		return plan, err
	}
	known := make(map[string]bool, len(in.results))
	for _, r := range in.results {
		known[r.ID] = true
	}
	for i := range plan.Segments {
		for _, id := range plan.Segments[i].ProgramSegmentIDs {
			if !known[id] {
				return plan, apperr.Newf(apperr.KindDataIntegrity, "segment %q references unknown research result %s", plan.Segments[i].Title, id)
			}
		}
		plan.Segments[i].SegmentNo = i + 1
	}
	return plan, nil
}

// AssignCasts 确定每个段落的出演者: 段落覆盖 > 追加嘉宾 > 节目基础阵容
func AssignCasts(plan *models.ProgramPlan, program *models.ListenerProgram, segments []models.ProgramSegment, casts []models.RadioCast) error {
	byID := make(map[string]models.RadioCast, len(casts))
	for _, c := range casts {
		byID[c.ID] = c
	}
	sources := make(map[string]models.ProgramSegment, len(segments))
	for _, s := range segments {
		sources[s.ID] = s
	}

	for i := range plan.Segments {
		sp := &plan.Segments[i]
		ids := slices.Clone(program.BaseRadioCastIDs)
		for _, ref := range sp.ProgramSegmentIDs {
			if src, ok := sources[ref]; ok && len(src.OverrideRadioCastIDs) > 0 {
				ids = slices.Clone(src.OverrideRadioCastIDs)
				break
			}
		}
		for _, ref := range sp.ProgramSegmentIDs {
			for _, g := range sources[ref].AdditionalGuestIDs {
				if !slices.Contains(ids, g) {
					ids = append(ids, g)
				}
			}
		}

		sp.RadioCasts = sp.RadioCasts[:0]
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				sp.RadioCasts = append(sp.RadioCasts, c)
			}
		}
		if len(sp.RadioCasts) == 0 {
			return apperr.Newf(apperr.KindPrecondition, "no radio casts for segment %d %q", sp.SegmentNo, sp.Title)
		}
	}
	return nil
}
