package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/internal/ai"
	"radio-station/internal/ai/mocks"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/session"
)

const planJSON = `{
  "title": "Morning Tech",
  "description": "today's tech news",
  "program_seconds": 600,
  "segments": [
    {"title": "Opening", "program_segment_ids": [], "segment_seconds": 60, "is_music": false, "description": "hello", "segment_type": "opening"},
    {"title": "Go news", "program_segment_ids": ["s1"], "segment_seconds": 240, "is_music": false, "description": "go", "segment_type": "content"},
    {"title": "Mail", "program_segment_ids": ["s2"], "segment_seconds": 240, "is_music": false, "description": "mail", "segment_type": "content"},
    {"title": "Ending", "program_segment_ids": [], "segment_seconds": 60, "is_music": false, "description": "bye", "segment_type": "ending"}
  ]
}`

var casts = []models.RadioCast{
	{ID: "host", Name: "Aki", Role: models.RolePersonality},
	{ID: "assist", Name: "Bo", Role: models.RoleAssistant},
	{ID: "guest", Name: "Chen", Role: models.RoleGuest},
	{ID: "expert", Name: "Dana", Role: models.RoleGuest},
}

func newRunContext(t *testing.T) *pipeline.RunContext {
	t.Helper()
	rc := pipeline.NewRunContext("run1", session.New("run1", session.NewMemoryPersister()), artifact.ForRun(artifact.NewMemoryStore(), "run1"), nil)
	rc.Clock = func() time.Time { return time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC) }
	rc.ProgramID = "p1"
	rc.ListenerID = "l1"
	rc.Program = &models.ListenerProgram{ID: "p1", Title: "Morning", ProgramMinutes: 10, BaseRadioCastIDs: []string{"host", "assist"}}
	rc.Segments = []models.ProgramSegment{
		{ID: "s1", Kind: models.SegmentRSS, AdditionalGuestIDs: []string{"guest"}},
		{ID: "s2", Kind: models.SegmentGmail, OverrideRadioCastIDs: []string{"expert"}},
	}
	rc.Casts = casts
	require.NoError(t, rc.State.Set(context.Background(), session.KeyResearchResults, []models.ResearchResult{
		{ID: "s1", Summary: "go 1.24"}, {ID: "s2", Summary: "3 mails"},
	}))
	return rc
}

func noRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 1}
}

func castIDs(cs []models.RadioCast) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestStage_Run(t *testing.T) {
	llm := &mocks.CompleterMock{CompleteFunc: func(_ context.Context, req ai.Request) (string, error) {
		return planJSON, nil
	}}
	rc := newRunContext(t)
	stage := NewStage(llm, "zh-CN").WithPolicy(noRetry())

	require.NoError(t, stage.Run(context.Background(), rc))
	require.Len(t, llm.CompleteCalls(), 1)
	assert.Contains(t, llm.CompleteCalls()[0].Req.User, "go 1.24")

	plan, ok, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", plan.ListenerProgramID)
	assert.Equal(t, "l1", plan.ListenerID)
	require.Len(t, plan.Segments, 4)
	for i, sp := range plan.Segments {
		assert.Equal(t, i+1, sp.SegmentNo)
	}
	assert.Equal(t, []string{"host", "assist"}, castIDs(plan.Segments[0].RadioCasts))
	assert.Equal(t, []string{"host", "assist", "guest"}, castIDs(plan.Segments[1].RadioCasts))
	assert.Equal(t, []string{"expert"}, castIDs(plan.Segments[2].RadioCasts))

	// 已有节目结构时不再调用LLM
	require.NoError(t, stage.Run(context.Background(), rc))
	assert.Len(t, llm.CompleteCalls(), 1)
}

func TestStage_UnknownResearchID(t *testing.T) {
	bad := `{"title":"x","description":"","program_seconds":60,"segments":[{"title":"a","program_segment_ids":["nope"],"segment_seconds":60,"is_music":false,"description":"","segment_type":"content"}]}`
	llm := &mocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) { return bad, nil }}
	rc := newRunContext(t)

	err := NewStage(llm, "zh-CN").WithPolicy(resilience.RetryPolicy{MaxAttempts: 3, Retryable: resilience.RetryAll}).Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDataIntegrity))
	assert.Len(t, llm.CompleteCalls(), 1)
	assert.False(t, rc.State.Has(session.KeyProgramStructure))
}

func TestStage_Preconditions(t *testing.T) {
	llm := &mocks.CompleterMock{}
	rc := newRunContext(t)
	rc.Program = nil
	err := NewStage(llm, "zh-CN").Run(context.Background(), rc)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	rc = pipeline.NewRunContext("run2", session.New("run2", nil), nil, nil)
	rc.Program = &models.ListenerProgram{ID: "p1"}
	err = NewStage(llm, "zh-CN").Run(context.Background(), rc)
	assert.True(t, apperr.IsKind(err, apperr.KindDataIntegrity))
}

func TestAssignCasts_NoCasts(t *testing.T) {
	plan := &models.ProgramPlan{Segments: []models.SegmentPlan{{SegmentNo: 1, Title: "Opening"}}}
	err := AssignCasts(plan, &models.ListenerProgram{BaseRadioCastIDs: []string{"missing"}}, nil, casts)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}
