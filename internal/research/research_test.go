package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"radio-station/internal/ai"
	"radio-station/internal/ai/mocks"
	"radio-station/internal/apperr"
	"radio-station/internal/artifact"
	"radio-station/internal/catalog"
	"radio-station/internal/crawler"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/session"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Tech Daily</title>
  <link>https://example.com</link>
  <description>daily tech news</description>
  <lastBuildDate>Tue, 01 Apr 2025 05:00:00 GMT</lastBuildDate>
  <item>
    <title>Old story</title>
    <link>https://example.com/old</link>
    <description>old</description>
    <pubDate>Sun, 30 Mar 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>New story</title>
    <link>https://example.com/new</link>
    <description>new</description>
    <pubDate>Tue, 01 Apr 2025 04:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

const researchJSON = `{"summary":"s","description":"d","entries":[{"title":"New story","summary":"e"}]}`

var testNow = time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) emit(e models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) contents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Content)
	}
	return out
}

func newRunContext(t *testing.T, log *eventLog) *pipeline.RunContext {
	t.Helper()
	rc := pipeline.NewRunContext("run1", session.New("run1", session.NewMemoryPersister()), artifact.ForRun(artifact.NewMemoryStore(), "run1"), log.emit)
	rc.Clock = func() time.Time { return testNow }
	rc.ProgramID = "p1"
	rc.ListenerID = "l1"
	return rc
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func noSleepSummarizer(llm ai.Completer) summarizer {
	s := newSummarizer(llm, "zh-CN")
	s.policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestRSSResearcher_FeedNotUpdated(t *testing.T) {
	ts := feedServer(t)
	llm := &mocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) {
		return researchJSON, nil
	}}
	r := NewRSSResearcher(llm, "zh-CN", crawler.NewFetcher(5*time.Second, 0))
	events := &eventLog{}
	rc := newRunContext(t, events)

	mark := time.Date(2025, 4, 1, 5, 0, 0, 0, time.UTC)
	seg := models.ProgramSegment{ID: "s1", Kind: models.SegmentRSS, Title: "Tech", RSS: &models.RSSSource{FeedURL: ts.URL}, LastReadTimestamp: &mark}

	res, err := r.Research(context.Background(), rc, seg)
	require.NoError(t, err)
	assert.True(t, res.NoUpdate)
	assert.Empty(t, llm.CompleteCalls())
	assert.Contains(t, events.contents(), "skipped Tech. feed is not updated.")
}

func TestRSSResearcher_OnlyEntriesAfterWatermark(t *testing.T) {
	ts := feedServer(t)
	llm := &mocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) {
		return researchJSON, nil
	}}
	r := NewRSSResearcher(llm, "zh-CN", crawler.NewFetcher(5*time.Second, 0))
	r.summarizer = noSleepSummarizer(llm)
	rc := newRunContext(t, &eventLog{})

	mark := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	seg := models.ProgramSegment{ID: "s1", Kind: models.SegmentRSS, Title: "Tech", RSS: &models.RSSSource{FeedURL: ts.URL}, LastReadTimestamp: &mark}

	res, err := r.Research(context.Background(), rc, seg)
	require.NoError(t, err)
	assert.False(t, res.NoUpdate)
	assert.Equal(t, "s", res.Summary)
	require.Len(t, llm.CompleteCalls(), 1)
	user := llm.CompleteCalls()[0].Req.User
	assert.Contains(t, user, "New story")
	assert.NotContains(t, user, "Old story")
}

func TestRSSResearcher_NoEntriesAfterWatermark(t *testing.T) {
	feed := strings.Replace(feedXML, "<lastBuildDate>Tue, 01 Apr 2025 05:00:00 GMT</lastBuildDate>", "<lastBuildDate>Tue, 01 Apr 2025 05:30:00 GMT</lastBuildDate>", 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer ts.Close()

	llm := &mocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) {
		return researchJSON, nil
	}}
	r := NewRSSResearcher(llm, "zh-CN", crawler.NewFetcher(5*time.Second, 0))
	rc := newRunContext(t, &eventLog{})

	mark := time.Date(2025, 4, 1, 5, 0, 0, 0, time.UTC)
	seg := models.ProgramSegment{ID: "s1", Kind: models.SegmentRSS, RSS: &models.RSSSource{FeedURL: ts.URL}, LastReadTimestamp: &mark}

	res, err := r.Research(context.Background(), rc, seg)
	require.NoError(t, err)
	assert.True(t, res.NoUpdate)
	assert.Empty(t, llm.CompleteCalls())
}

func TestGmailResearcher_MissingScope(t *testing.T) {
	tokens := catalog.NewMemory()
	tokens.PutTokens("l1", catalog.OAuthTokens{AccessToken: "a", Scopes: []string{"openid"}})
	called := false
	factory := func(context.Context, *catalog.OAuthTokens) (MailSource, error) {
		called = true
		return nil, errors.New("should not be called")
	}
	llm := &mocks.CompleterMock{}
	g := NewGmailResearcher(llm, "zh-CN", tokens, factory)
	rc := newRunContext(t, &eventLog{})

	seg := models.ProgramSegment{ID: "g1", Kind: models.SegmentGmail, Gmail: &models.GmailSource{Filter: "label:news"}}
	_, err := g.Research(context.Background(), rc, seg)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
	assert.False(t, called)

	// 没有令牌同样是前置条件错误
	rc.ListenerID = "nobody"
	_, err = g.Research(context.Background(), rc, seg)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

type fakeMail struct {
	query string
	mails []Mail
}

func (f *fakeMail) Search(_ context.Context, query string, _ int64) ([]Mail, error) {
	f.query = query
	return f.mails, nil
}

func TestGmailResearcher_Search(t *testing.T) {
	tokens := catalog.NewMemory()
	tokens.PutTokens("l1", catalog.OAuthTokens{AccessToken: "a", Scopes: []string{gmail.GmailReadonlyScope}})
	src := &fakeMail{}
	factory := func(context.Context, *catalog.OAuthTokens) (MailSource, error) { return src, nil }
	llm := &mocks.CompleterMock{CompleteFunc: func(context.Context, ai.Request) (string, error) {
		return researchJSON, nil
	}}
	g := NewGmailResearcher(llm, "zh-CN", tokens, factory)
	rc := newRunContext(t, &eventLog{})
	seg := models.ProgramSegment{ID: "g1", Kind: models.SegmentGmail, Gmail: &models.GmailSource{Filter: "label:news", StartOffsetDays: -1, EndOffsetDays: 1}}

	res, err := g.Research(context.Background(), rc, seg)
	require.NoError(t, err)
	assert.True(t, res.NoUpdate)
	assert.Equal(t, "label:news after: 2025/03/31 before: 2025/04/02", src.query)
	assert.Empty(t, llm.CompleteCalls())

	src.mails = []Mail{{ID: "m1", Subject: "hello"}}
	res, err = g.Research(context.Background(), rc, seg)
	require.NoError(t, err)
	assert.False(t, res.NoUpdate)
	require.Len(t, llm.CompleteCalls(), 1)
	assert.Contains(t, llm.CompleteCalls()[0].Req.User, "hello")
}

type fakeResearcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeResearcher) Research(_ context.Context, _ *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return models.ResearchResult{}, f.err
	}
	return models.ResearchResult{Summary: "summary of " + seg.Title, Description: "d"}, nil
}

func stageFixture(t *testing.T) (*catalog.Memory, []models.ProgramSegment) {
	t.Helper()
	future := testNow.Add(time.Hour)
	segs := []models.ProgramSegment{
		{ID: "a", ProgramID: "p1", Kind: models.SegmentRSS, Title: "A", Order: 1, RSS: &models.RSSSource{FeedURL: "x"}},
		{ID: "b", ProgramID: "p1", Kind: models.SegmentRSS, Title: "B", Order: 2, RSS: &models.RSSSource{FeedURL: "y"}, LastReadTimestamp: &future},
	}
	programs := catalog.NewMemory()
	programs.PutProgram(models.ListenerProgram{ID: "p1"}, segs...)
	return programs, segs
}

func TestStage_Run(t *testing.T) {
	programs, segs := stageFixture(t)
	fake := &fakeResearcher{}
	stage := NewStage(map[models.SegmentKind]Researcher{models.SegmentRSS: fake}, programs)
	events := &eventLog{}
	rc := newRunContext(t, events)
	rc.Segments = segs

	require.NoError(t, stage.Run(context.Background(), rc))
	assert.Equal(t, 2, fake.calls)

	ids, ok, err := session.Value[[]string](rc.State, session.KeyResearchTaskIDs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ids)

	results, _, err := session.Value[[]models.ResearchResult](rc.State, session.KeyResearchResults)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "summary of A", results[0].Summary)
	assert.Equal(t, "A", results[0].SegmentTitle)

	stored, err := programs.GetSegments(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, testNow, stored[0].Watermark())
	// 水位线不会后退
	assert.Equal(t, testNow.Add(time.Hour), stored[1].Watermark())

	require.NoError(t, stage.Run(context.Background(), rc))
	assert.Equal(t, 2, fake.calls)
	assert.Contains(t, events.contents(), pipeline.AlreadyFinished)
}

func TestStage_DryRunKeepsWatermarks(t *testing.T) {
	programs, segs := stageFixture(t)
	stage := NewStage(map[models.SegmentKind]Researcher{models.SegmentRSS: &fakeResearcher{}}, programs)
	rc := newRunContext(t, &eventLog{})
	rc.Segments = segs
	rc.DryRun = true

	require.NoError(t, stage.Run(context.Background(), rc))
	stored, err := programs.GetSegments(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, stored[0].Watermark().IsZero())
}

func TestStage_Errors(t *testing.T) {
	rc := newRunContext(t, &eventLog{})
	stage := NewStage(map[models.SegmentKind]Researcher{}, nil)
	err := stage.Run(context.Background(), rc)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	rc.Segments = []models.ProgramSegment{{ID: "w", Kind: models.SegmentWeb}}
	err = stage.Run(context.Background(), rc)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	failing := &fakeResearcher{err: apperr.New(apperr.KindTransient, "feed down")}
	stage = NewStage(map[models.SegmentKind]Researcher{models.SegmentWeb: failing}, nil)
	err = stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
	assert.False(t, rc.State.Has(session.KeyResearchResults))
}

func TestWeatherService_Forecast(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geocode":
			assert.Equal(t, "Tokyo Station", r.URL.Query().Get("address"))
			assert.Equal(t, "key1", r.URL.Query().Get("key"))
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":35.68,"lng":139.76}}}]}`))
		case "/forecast":
			assert.Equal(t, "2025-04-01", r.URL.Query().Get("start_date"))
			_, _ = w.Write([]byte(`{"daily":{"time":["2025-04-01"],"weather_code":[61],"temperature_2m_max":[18.2],"temperature_2m_min":[9.5],"precipitation_probability_max":[70]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	svc := NewWeatherService("key1", ts.URL+"/forecast").WithGeocodeURL(ts.URL + "/geocode")
	got, err := svc.Forecast(context.Background(), "Tokyo Station", testNow)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01: slight rain, max 18.2°C, min 9.5°C, precipitation 70%", got)
}

func TestWeatherDescription(t *testing.T) {
	assert.Equal(t, "clear sky", WeatherDescription(0))
	assert.Equal(t, "unknown (42)", WeatherDescription(42))
}
