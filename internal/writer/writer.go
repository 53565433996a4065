// Package writer 按节目结构逐段写台词, 长段落分多次续写
package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"radio-station/config"
	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/session"
)

const author = "Writer"

// Stage 台本写作阶段
type Stage struct {
	llm       ai.Completer
	language  string
	maxTurns  int
	maxChars  int
	maxPasses int
	policy    resilience.RetryPolicy
}

// NewStage 创建写作阶段
func NewStage(llm ai.Completer, language string, cfg config.RadioConfig) *Stage {
	maxPasses := cfg.WriterMaxPasses
	if maxPasses <= 0 {
		maxPasses = 1
	}
	return &Stage{
		llm:       llm,
		language:  language,
		maxTurns:  cfg.WriterMaxTurns,
		maxChars:  cfg.WriterMaxChars,
		maxPasses: maxPasses,
		policy:    resilience.WriterPolicy(cfg.WriterRetries),
	}
}

// WithPolicy 替换重试策略
func (s *Stage) WithPolicy(p resilience.RetryPolicy) *Stage {
	s.policy = p
	return s
}

// Name 阶段名
func (s *Stage) Name() string { return author }

// TaskID 节目段落对应的写作任务ID
func TaskID(sp models.SegmentPlan) string {
	return sp.TaskID()
}

// passInput 一次写作所需的全部上下文
type passInput struct {
	now      string
	plan     models.ProgramPlan
	index    int
	results  []models.ResearchResult
	casts    []models.RadioCast
	roster   []models.RadioCast
	written  []models.TalkScriptSegment
	previous *models.TalkScriptSegment
}

func (in passInput) segment() models.SegmentPlan { return in.plan.Segments[in.index] }

// Run 依次写每个段落; 已写完的段落从会话状态恢复, 不再调用LLM
func (s *Stage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if state, _, _ := session.Value[string](rc.State, session.KeyWriterState); state == session.StateDone {
		rc.Emit(author, pipeline.AlreadyFinished)
		return nil
	}
	plan, ok, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	if err != nil {
		return err
	}
	if !ok || len(plan.Segments) == 0 {
		return apperr.New(apperr.KindDataIntegrity, "program structure not found")
	}
	results, _, err := session.Value[[]models.ResearchResult](rc.State, session.KeyResearchResults)
	if err != nil {
		return err
	}

	roster := runRoster(rc.Casts, plan)
	var written []models.TalkScriptSegment
	for i, sp := range plan.Segments {
		taskID := TaskID(sp)
		if done, ok, err := session.Value[[]models.TalkScriptSegment](rc.State, session.WriterTaskKey(taskID)); err != nil {
			return err
		} else if ok {
			rc.Logf("段落 %s 已写完，跳过", taskID)
			written = append(written, done...)
			continue
		}

		rc.Emit(author, fmt.Sprintf("writing segment %d: %s", sp.SegmentNo, sp.Title))
		in := passInput{
			now:     rc.Now().Format("2006-01-02 15:04 MST"),
			plan:    plan,
			index:   i,
			results: filterResults(results, sp.ProgramSegmentIDs),
			casts:   sp.RadioCasts,
			roster:  roster,
			written: written,
		}
		passes, err := s.writeSegment(ctx, rc, in)
		if err != nil {
			return fmt.Errorf("写作段落 %d 失败: %w", sp.SegmentNo, err)
		}
		if len(passes) == 0 {
			rc.Emit(author, fmt.Sprintf("segment %d has no talk script, skipped", sp.SegmentNo))
		}
		if err := rc.State.Set(ctx, session.WriterTaskKey(taskID), passes); err != nil {
			return err
		}
		written = append(written, passes...)
	}

	if err := rc.State.Update(ctx, map[string]any{
		session.KeyWriterSegments: written,
		session.KeyWriterScript:   models.JoinTalkScripts(written, roster),
		session.KeyWriterState:    session.StateDone,
	}); err != nil {
		return err
	}
	rc.Emit(author, fmt.Sprintf("finish writing %d talk script segments", len(written)))
	return nil
}

// writeSegment 一个段落的续写链, 以continue_segment为false的一次结束
func (s *Stage) writeSegment(ctx context.Context, rc *pipeline.RunContext, in passInput) ([]models.TalkScriptSegment, error) {
	sp := in.segment()
	var passes []models.TalkScriptSegment
	for pass := 1; pass <= s.maxPasses; pass++ {
		seg, err := s.writePass(ctx, in)
		if err != nil {
			return nil, err
		}
		seg.ID = uuid.NewString()
		seg.TaskID = TaskID(sp)
		if sp.SegmentType != models.SegmentContent || pass == s.maxPasses {
			seg.ContinueSegment = false
		}
		if len(seg.Scripts) == 0 {
			if pass == 1 {
				return nil, nil
			}
			break
		}
		passes = append(passes, seg)
		if !seg.ContinueSegment {
			break
		}
		rc.Logf("段落 %d 第 %d 次写作未完成，继续: %s", sp.SegmentNo, pass, seg.HandOver)
		rc.Emit(author, fmt.Sprintf("continue writing segment %d (pass %d)", sp.SegmentNo, pass+1))
		in.written = append(in.written, seg)
		prev := seg
		in.previous = &prev
	}
	if n := len(passes); n > 0 {
		passes[n-1].ContinueSegment = false
	}
	return passes, nil
}

func (s *Stage) writePass(ctx context.Context, in passInput) (models.TalkScriptSegment, error) {
	p := ai.Pipeline[passInput, models.TalkScriptSegment]{
		Name:        fmt.Sprintf("台本写作 %s", TaskID(in.segment())),
		Prepare:     s.prepare,
		Postprocess: decodeScript,
	}
	return p.Run(ctx, s.llm, in, s.policy)
}

func (s *Stage) prepare(in passInput) (ai.Request, error) {
	sp := in.segment()
	var b strings.Builder
	fmt.Fprintf(&b, "[Current Time]\n%s\n\n", in.now)
	fmt.Fprintf(&b, "[Program]\n%s\n\n", in.plan.LLMText(false))
	fmt.Fprintf(&b, "[Current Segment Plan]\n%s\n\n", sp.LLMText())
	fmt.Fprintf(&b, "[Current Segment Research Results]\n%s\n\n", models.ResultsJSON(in.results))
	b.WriteString("[Radio Casts]\n")
	for _, c := range in.casts {
		b.WriteString(c.LLMText())
		b.WriteString("\n---\n")
	}
	b.WriteString("\n")
	if in.index > 0 {
		fmt.Fprintf(&b, "[Previous Segment]\n%s\n\n", in.plan.Segments[in.index-1].LLMText())
	}
	if in.index+1 < len(in.plan.Segments) {
		fmt.Fprintf(&b, "[Next Segment]\n%s\n\n", in.plan.Segments[in.index+1].LLMText())
	}
	if len(in.written) > 0 {
		fmt.Fprintf(&b, "<The Talk Scripts so far>\n%s\n</The Talk Scripts so far>\n\n", models.JoinTalkScripts(in.written, in.roster))
	}
	if in.previous != nil {
		fmt.Fprintf(&b, "<Previous on the way Segment>\n%s\n</Previous on the way Segment>\n\n", in.previous.TalkScriptText(in.roster))
		fmt.Fprintf(&b, "<Hands Over>\n%s\n</Hands Over>\n", in.previous.HandOver)
	}
	return ai.Request{
		System:   ai.WriterPrompt(s.language, s.maxTurns, s.maxChars),
		User:     b.String(),
		JSON:     true,
		Thinking: true,
	}, nil
}

// decodeScript 校验台词, 出现段落出演者以外的ID时重新生成
func decodeScript(raw string, in passInput) (models.TalkScriptSegment, error) {
	var seg models.TalkScriptSegment
	if err := ai.TalkScriptSegmentSchema.Decode(raw, &seg); err != nil {
		return seg, err
	}
	known := make(map[string]bool, len(in.casts))
	for _, c := range in.casts {
		known[c.ID] = true
	}
	for i := range seg.Scripts {
		if !known[seg.Scripts[i].RadioCastID] {
			return seg, apperr.Newf(apperr.KindTransient, "unknown radio cast %s in talk script", seg.Scripts[i].RadioCastID)
		}
		if seg.Scripts[i].SpeakingRate <= 0 {
			seg.Scripts[i].SpeakingRate = 1
		}
	}
	return seg, nil
}

func filterResults(results []models.ResearchResult, ids []string) []models.ResearchResult {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []models.ResearchResult{}
	for _, r := range results {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// runRoster 合并节目出演者和各段落出演者, 用于把已写台词中的ID还原成名字
func runRoster(base []models.RadioCast, plan models.ProgramPlan) []models.RadioCast {
	seen := make(map[string]bool)
	var casts []models.RadioCast
	for _, c := range base {
		if !seen[c.ID] {
			seen[c.ID] = true
			casts = append(casts, c)
		}
	}
	for _, sp := range plan.Segments {
		for _, c := range sp.RadioCasts {
			if !seen[c.ID] {
				seen[c.ID] = true
				casts = append(casts, c)
			}
		}
	}
	return casts
}
