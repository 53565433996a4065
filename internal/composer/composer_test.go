package composer

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/config"
	"radio-station/internal/ai"
	aimocks "radio-station/internal/ai/mocks"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	musicmocks "radio-station/internal/music/mocks"
	"radio-station/internal/pipeline"
	"radio-station/internal/resilience"
	"radio-station/internal/session"
)

const planJSON = `{"title":"sunrise","stanzas":[
 {"prompts":[{"text":"Lo-fi","weight":2}],"seconds":3,"config":{"bpm":110}},
 {"prompts":[{"text":"Lo-fi","weight":1.5},{"text":"Piano","weight":0.5}],"seconds":2,"config":{"bpm":130}}]}`

func testPlan() models.ProgramPlan {
	return models.ProgramPlan{Segments: []models.SegmentPlan{
		{SegmentNo: 1, Title: "Opening", SegmentType: models.SegmentOpening, SegmentSeconds: 30, BackgroundMusic: "bright piano"},
		{SegmentNo: 2, Title: "News", SegmentType: models.SegmentContent, SegmentSeconds: 300},
		{SegmentNo: 3, Title: "Interlude", SegmentType: models.SegmentMusic, SegmentSeconds: 60, IsMusic: true, Description: "chill"},
	}}
}

func newRunContext(t *testing.T, store artifact.Store) *pipeline.RunContext {
	t.Helper()
	rc := pipeline.NewRunContext("run1", session.New("run1", session.NewMemoryPersister()), artifact.ForRun(store, "run1"), nil)
	require.NoError(t, rc.State.Set(context.Background(), session.KeyProgramStructure, testPlan()))
	return rc
}

func generator() *musicmocks.GeneratorMock {
	return &musicmocks.GeneratorMock{
		NameFunc: func() string { return "fake" },
		GenerateFunc: func(context.Context, models.MusicStanza) (*audio.Track, error) {
			return audio.Silence(24000, time.Second), nil
		},
	}
}

func newStage(llm ai.Completer, gen *musicmocks.GeneratorMock) *Stage {
	s := NewStage(llm, nil, config.DefaultRadioConfig()).WithPolicy(resilience.RetryPolicy{MaxAttempts: 2})
	if gen != nil {
		s.music = gen
	}
	return s
}

func TestStage_Compose(t *testing.T) {
	llm := &aimocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) { return planJSON, nil }}
	gen := generator()
	rc := newRunContext(t, artifact.NewMemoryStore())

	require.NoError(t, newStage(llm, gen).Run(context.Background(), rc))
	require.Len(t, llm.CompleteCalls(), 2)
	assert.Len(t, gen.GenerateCalls(), 4)

	var users []string
	for _, c := range llm.CompleteCalls() {
		users = append(users, c.Req.User)
	}
	joined := strings.Join(users, "\n")
	assert.Contains(t, joined, "Music: bright piano")
	assert.Contains(t, joined, "[Music Duration Seconds]\n60")

	// 5秒的音乐按120BPM(一小节2秒)截断为4秒
	data, err := rc.Artifacts.Load(context.Background(), "music_1.wav")
	require.NoError(t, err)
	track, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, track.Duration())

	plan, _, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	require.NoError(t, err)
	require.NotNil(t, plan.Segments[0].MusicBPM)
	assert.Equal(t, 120.0, *plan.Segments[0].MusicBPM)
	assert.Nil(t, plan.Segments[1].MusicBPM)
	require.NotNil(t, plan.Segments[2].MusicBPM)

	ids, _, err := session.Value[[]string](rc.State, session.KeyComposerTaskIDs)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids)
	assert.True(t, rc.State.Has(session.MusicPlanKey("1")))

	require.NoError(t, newStage(llm, gen).Run(context.Background(), rc))
	assert.Len(t, llm.CompleteCalls(), 2)
}

func TestStage_ReusesStoredPlanAndArtifacts(t *testing.T) {
	store := artifact.NewMemoryStore()
	_, err := store.Save(context.Background(), "run1", "music_1.wav", []byte("x"), "audio/wav")
	require.NoError(t, err)
	rc := newRunContext(t, store)
	stored := models.MusicPlan{Title: "stored", Stanzas: []models.MusicStanza{{Seconds: 2, Config: models.MusicConfig{BPM: 90}}}}
	require.NoError(t, rc.State.Update(context.Background(), map[string]any{
		session.MusicPlanKey("1"): stored,
		session.MusicPlanKey("3"): stored,
	}))
	llm := &aimocks.CompleterMock{}
	gen := generator()

	require.NoError(t, newStage(llm, gen).Run(context.Background(), rc))
	assert.Empty(t, llm.CompleteCalls())
	assert.Len(t, gen.GenerateCalls(), 1)

	plan, _, err := session.Value[models.ProgramPlan](rc.State, session.KeyProgramStructure)
	require.NoError(t, err)
	require.NotNil(t, plan.Segments[0].MusicBPM)
	assert.Equal(t, 90.0, *plan.Segments[0].MusicBPM)
}

func TestStage_NoMusic(t *testing.T) {
	llm := &aimocks.CompleterMock{}
	rc := newRunContext(t, artifact.NewMemoryStore())
	var events []string
	rc = pipeline.NewRunContext(rc.RunID, rc.State, rc.Artifacts, func(e models.Event) { events = append(events, e.Content) })

	require.NoError(t, newStage(llm, nil).Run(context.Background(), rc))
	ids, ok, err := session.Value[[]string](rc.State, session.KeyComposerTaskIDs)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, ids)
	assert.Empty(t, llm.CompleteCalls())
	assert.Contains(t, events, "music generator not configured, 2 segments will be mixed without music")
}

func TestStage_InvalidPlanRetried(t *testing.T) {
	var calls atomic.Int32
	llm := &aimocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) {
		calls.Add(1)
		return `{"title":"x","stanzas":[]}`, nil
	}}
	rc := newRunContext(t, artifact.NewMemoryStore())

	err := newStage(llm, generator()).Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
	assert.False(t, rc.State.Has(session.KeyComposerTaskIDs))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
