package director

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/catalog"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/session"
)

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, name)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *trace) index(name string) int {
	return slices.Index(t.list(), name)
}

type fakeStage struct {
	name  string
	trace *trace
	run   func(ctx context.Context, rc *pipeline.RunContext) error
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	s.trace.add(s.name)
	rc.Emit(s.name, "working")
	if s.run != nil {
		return s.run(ctx, rc)
	}
	return nil
}

func newStages(tr *trace) (Stages, map[string]*fakeStage) {
	byName := make(map[string]*fakeStage)
	mk := func(name string) *fakeStage {
		s := &fakeStage{name: name, trace: tr}
		byName[name] = s
		return s
	}
	return Stages{
		Research:   mk("Researcher"),
		Planner:    mk("ProgramPlanner"),
		Writer:     mk("Writer"),
		Recorder:   mk("Recorder"),
		Composer:   mk("Composer"),
		Mastering:  mk("Mastering"),
		Newsletter: mk("NewsletterWriter"),
	}, byName
}

func newCatalog() *catalog.Memory {
	c := catalog.NewMemory()
	c.PutProgram(models.ListenerProgram{ID: "p1", ListenerID: "u1", Title: "早间新闻", ProgramMinutes: 10, BaseRadioCastIDs: []string{"c1"}},
		models.ProgramSegment{ID: "s1", ProgramID: "p1", Kind: models.SegmentRSS, AdditionalGuestIDs: []string{"g1"}})
	c.PutCasts(models.RadioCast{ID: "c1", Name: "Host", Role: models.RolePersonality}, models.RadioCast{ID: "g1", Name: "Guest", Role: models.RoleGuest})
	return c
}

type fixture struct {
	director  *Director
	persister *session.MemoryPersister
	trace     *trace
	stages    map[string]*fakeStage
}

func newFixture(programs catalog.ProgramStore) *fixture {
	tr := &trace{}
	stages, byName := newStages(tr)
	persister := session.NewMemoryPersister()
	d := New(programs, persister, artifact.NewMemoryStore(), stages, nil)
	d.newID = func() string { return "run-1" }
	d.clock = func() time.Time { return time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC) }
	return &fixture{director: d, persister: persister, trace: tr, stages: byName}
}

func (f *fixture) state(t *testing.T, runID string) *session.State {
	t.Helper()
	state, ok, err := session.Open(context.Background(), runID, f.persister)
	require.NoError(t, err)
	require.True(t, ok)
	return state
}

func TestRun_FullPipelineOrder(t *testing.T) {
	f := newFixture(newCatalog())
	var seen *pipeline.RunContext
	f.stages["Researcher"].run = func(_ context.Context, rc *pipeline.RunContext) error {
		seen = rc
		return nil
	}

	run, err := f.director.Run(context.Background(), Request{ProgramID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, run.State)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "p1", run.ProgramID)
	assert.Equal(t, "u1", run.ListenerID)

	tr := f.trace
	assert.Len(t, tr.list(), 7)
	assert.Equal(t, 0, tr.index("Researcher"))
	assert.Equal(t, 1, tr.index("ProgramPlanner"))
	assert.Less(t, tr.index("Writer"), tr.index("Recorder"))
	assert.Less(t, tr.index("Writer"), tr.index("NewsletterWriter"))
	assert.Equal(t, 6, tr.index("Mastering"))

	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.ListenerID)
	assert.Len(t, seen.Casts, 2)
	assert.Len(t, seen.Segments, 1)

	state := f.state(t, "run-1")
	prog, ok, err := session.Value[models.ListenerProgram](state, session.KeyRunProgram)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", prog.ID)

	events, ok := f.director.Hub().Events("run-1")
	require.True(t, ok)
	assert.Equal(t, author, events[0].Author)
	last := events[len(events)-1]
	assert.Equal(t, author, last.Author)
	assert.Equal(t, "节目生成完成", last.Content)
	for _, e := range events {
		assert.False(t, e.IsError())
	}
}

func TestRun_DryRunStopsAfterNewsletter(t *testing.T) {
	f := newFixture(newCatalog())

	run, err := f.director.Run(context.Background(), Request{ProgramID: "p1", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, run.State)
	assert.True(t, run.DryRun)
	assert.Equal(t, []string{"Researcher", "ProgramPlanner", "Writer", "NewsletterWriter"}, f.trace.list())
}

func TestRun_Preconditions(t *testing.T) {
	noCasts := catalog.NewMemory()
	noCasts.PutProgram(models.ListenerProgram{ID: "p1", BaseRadioCastIDs: []string{"missing"}},
		models.ProgramSegment{ID: "s1", ProgramID: "p1", Kind: models.SegmentRSS})
	noSegments := catalog.NewMemory()
	noSegments.PutProgram(models.ListenerProgram{ID: "p1", BaseRadioCastIDs: []string{"c1"}})
	noSegments.PutCasts(models.RadioCast{ID: "c1"})

	tests := []struct {
		name    string
		catalog catalog.ProgramStore
		want    string
	}{
		{"program", catalog.NewMemory(), "listener program not found"},
		{"segments", noSegments, "program segments not found"},
		{"casts", noCasts, "radio casts not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.catalog)

			run, err := f.director.Run(context.Background(), Request{ProgramID: "p1"})
			require.NoError(t, err)
			assert.Equal(t, models.RunFailure, run.State)
			assert.Contains(t, run.Error, tt.want)
			assert.Contains(t, run.Error, string(apperr.KindPrecondition))
			assert.Empty(t, f.trace.list())

			events, _ := f.director.Hub().Events("run-1")
			var errs []models.Event
			for _, e := range events {
				if e.IsError() {
					errs = append(errs, e)
				}
			}
			require.Len(t, errs, 1)
			assert.Equal(t, ErrorCode, errs[0].ErrorCode)
			assert.Equal(t, events[len(events)-1], errs[0])
		})
	}
}

func TestRun_StageFailure(t *testing.T) {
	f := newFixture(newCatalog())
	f.stages["Composer"].run = func(context.Context, *pipeline.RunContext) error {
		return apperr.New(apperr.KindTransient, "lyria unavailable")
	}
	writerDone := make(chan struct{})
	f.stages["Writer"].run = func(context.Context, *pipeline.RunContext) error {
		close(writerDone)
		return nil
	}

	run, err := f.director.Run(context.Background(), Request{ProgramID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunFailure, run.State)
	assert.Contains(t, run.Error, "Composer")
	assert.Contains(t, run.Error, "lyria unavailable")

	<-writerDone
	calls := f.trace.list()
	assert.Contains(t, calls, "Recorder")
	assert.Contains(t, calls, "NewsletterWriter")
	assert.NotContains(t, calls, "Mastering")

	state := f.state(t, "run-1")
	msg, _, err := session.Value[string](state, session.KeyRunError)
	require.NoError(t, err)
	assert.Equal(t, run.Error, msg)

	events, _ := f.director.Hub().Events("run-1")
	last := events[len(events)-1]
	assert.True(t, last.IsError())
	assert.Equal(t, author, last.Author)
}

func TestRun_ResumeUsesStoredInputs(t *testing.T) {
	f := newFixture(newCatalog())
	f.stages["Mastering"].run = func(context.Context, *pipeline.RunContext) error {
		return errors.New("ffmpeg crashed")
	}
	run, err := f.director.Run(context.Background(), Request{ProgramID: "p1"})
	require.NoError(t, err)
	require.Equal(t, models.RunFailure, run.State)

	// 目录里的节目已经被删除, 续跑仍然使用会话中的版本
	tr := &trace{}
	stages, byName := newStages(tr)
	resumed := New(catalog.NewMemory(), f.persister, artifact.NewMemoryStore(), stages, nil)
	var casts int
	byName["Researcher"].run = func(_ context.Context, rc *pipeline.RunContext) error {
		casts = len(rc.Casts)
		return nil
	}

	run, err = resumed.Run(context.Background(), Request{ProgramID: "p1", ResumeHistoryID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, run.State)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 2, casts)
	assert.Contains(t, tr.list(), "Mastering")
}

func TestRun_ResumeAfterFailureClearsError(t *testing.T) {
	f := newFixture(newCatalog())
	fail := true
	f.stages["Writer"].run = func(context.Context, *pipeline.RunContext) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}
	run, err := f.director.Run(context.Background(), Request{ProgramID: "p1"})
	require.NoError(t, err)
	require.Equal(t, models.RunFailure, run.State)
	require.Equal(t, "Writer: boom", run.Error)

	fail = false
	run, err = f.director.Run(context.Background(), Request{ProgramID: "p1", ResumeHistoryID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, run.State)
	assert.Empty(t, run.Error)

	msg, _, err := session.Value[string](f.state(t, "run-1"), session.KeyRunError)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestStartRun_StreamKeepsEveryEvent(t *testing.T) {
	f := newFixture(newCatalog())
	const lines = 3 * subscriberBuffer
	f.stages["Writer"].run = func(_ context.Context, rc *pipeline.RunContext) error {
		for i := 0; i < lines; i++ {
			rc.Emit("Writer", "line")
		}
		return errors.New("boom")
	}

	_, events, err := f.director.StartRun(context.Background(), Request{ProgramID: "p1", DryRun: true})
	require.NoError(t, err)

	// 等run结束后才开始读
	require.Eventually(t, func() bool {
		recorded, _ := f.director.Hub().Events("run-1")
		return len(recorded) > 0 && recorded[len(recorded)-1].IsError()
	}, 2*time.Second, 10*time.Millisecond)

	var got []models.Event
	for e := range events {
		got = append(got, e)
	}
	n := 0
	for _, e := range got {
		if e.Author == "Writer" && e.Content == "line" {
			n++
		}
	}
	assert.Equal(t, lines, n)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.IsError())
	assert.Equal(t, "Writer: boom", last.ErrorMessage)
}

func TestStartRun_Validation(t *testing.T) {
	f := newFixture(newCatalog())

	_, _, err := f.director.StartRun(context.Background(), Request{})
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	release := make(chan struct{})
	f.stages["Researcher"].run = func(context.Context, *pipeline.RunContext) error {
		<-release
		return nil
	}
	run, events, err := f.director.StartRun(context.Background(), Request{ProgramID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.State)

	_, _, err = f.director.StartRun(context.Background(), Request{ProgramID: "p1", ResumeHistoryID: run.ID})
	assert.ErrorIs(t, err, ErrRunActive)

	close(release)
	var got []models.Event
	for e := range events {
		got = append(got, e)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "节目生成完成", got[len(got)-1].Content)
}

func TestStartRun_CancelledRequestContext(t *testing.T) {
	f := newFixture(newCatalog())
	ctx, cancel := context.WithCancel(context.Background())
	_, events, err := f.director.StartRun(ctx, Request{ProgramID: "p1"})
	require.NoError(t, err)
	cancel()
	for range events {
	}

	run, err := f.director.Status(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, run.State)
}

func TestStatusAndScript(t *testing.T) {
	f := newFixture(newCatalog())
	f.stages["Writer"].run = func(ctx context.Context, rc *pipeline.RunContext) error {
		return rc.State.Set(ctx, session.KeyWriterScript, "Host: 早上好")
	}
	f.stages["NewsletterWriter"].run = func(ctx context.Context, rc *pipeline.RunContext) error {
		return rc.State.Set(ctx, session.KeyNewsletterContents, "# 今日新闻")
	}

	_, err := f.director.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = f.director.Run(context.Background(), Request{ProgramID: "p1", DryRun: true})
	require.NoError(t, err)

	script, newsletter, err := f.director.Script(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Host: 早上好", script)
	assert.Equal(t, "# 今日新闻", newsletter)
}

func TestHub_SubscribeAfterClose(t *testing.T) {
	h := NewHub()
	h.Open("r1")
	h.Publish(models.Event{RunID: "r1", Author: "Writer", Content: "a"})
	history, live, cancel := h.Subscribe("r1")
	h.Publish(models.Event{RunID: "r1", Author: "Writer", Content: "b"})
	h.Close("r1")
	cancel()

	require.Len(t, history, 1)
	var got []string
	for e := range live {
		got = append(got, e.Content)
	}
	assert.Equal(t, []string{"b"}, got)

	history, live, _ = h.Subscribe("r1")
	assert.Len(t, history, 2)
	_, open := <-live
	assert.False(t, open)

	_, ok := h.Events("unknown")
	assert.False(t, ok)
}

func TestHub_UnknownRun(t *testing.T) {
	h := NewHub()
	history, live, cancel := h.Subscribe("unknown")
	defer cancel()
	assert.Empty(t, history)
	_, open := <-live
	assert.False(t, open)

	_, ok := h.Events("unknown")
	assert.False(t, ok)
}

func TestHub_FollowAfterClose(t *testing.T) {
	h := NewHub()
	h.Open("r1")
	h.Publish(models.Event{RunID: "r1", Author: "Writer", Content: "a"})
	h.Close("r1")

	_, open := <-h.Follow("r1")
	assert.False(t, open)
}

func TestHub_EvictsClosedRuns(t *testing.T) {
	now := time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)
	h := NewHub().WithRetention(time.Hour, 2).WithClock(func() time.Time { return now })

	h.Open("active")
	for _, id := range []string{"r1", "r2", "r3"} {
		h.Open(id)
		h.Publish(models.Event{RunID: id, Author: "Writer", Content: "a"})
		h.Close(id)
		now = now.Add(time.Minute)
	}

	// 超过数量上限时先清理最早结束的
	_, ok := h.Events("r1")
	assert.False(t, ok)
	for _, id := range []string{"r2", "r3"} {
		_, ok := h.Events(id)
		assert.True(t, ok, id)
	}

	now = now.Add(time.Hour)
	h.Open("r4")
	for _, id := range []string{"r2", "r3"} {
		_, ok := h.Events(id)
		assert.False(t, ok, id)
	}
	for _, id := range []string{"active", "r4"} {
		_, ok := h.Events(id)
		assert.True(t, ok, id)
	}
}
