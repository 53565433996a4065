package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/config"
	"radio-station/internal/artifact"
	"radio-station/internal/catalog"
	"radio-station/internal/director"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
	"radio-station/internal/session"
	"radio-station/internal/storage"
)

type scriptStage struct {
	block chan struct{}
}

func (s *scriptStage) Name() string { return "Writer" }

func (s *scriptStage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if s.block != nil {
		<-s.block
	}
	rc.Emit("Writer", "台本完成")
	return rc.State.Set(ctx, session.KeyWriterScript, "主持人: 大家早上好")
}

type testEnv struct {
	server  *Server
	objects *storage.MemoryStore
	writer  *scriptStage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	programs := catalog.NewMemory()
	programs.PutProgram(models.ListenerProgram{ID: "p1", ListenerID: "u1", BaseRadioCastIDs: []string{"c1"}},
		models.ProgramSegment{ID: "s1", ProgramID: "p1", Kind: models.SegmentRSS})
	programs.PutCasts(models.RadioCast{ID: "c1", Name: "主持人"})

	objects := storage.NewMemoryStore()
	writer := &scriptStage{}
	d := director.New(programs, session.NewObjectPersister(objects), artifact.NewObjectStore(objects), director.Stages{Writer: writer}, nil)

	cfg := &config.Config{Server: config.ServerConfig{Port: "0", Env: "test", CORSOrigins: []string{"*"}}}
	return &testEnv{server: NewServer(cfg, d, objects), objects: objects, writer: writer}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) startRun(t *testing.T, body string) models.Run {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/runs", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		Run models.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Run.ID)
	return resp.Run
}

func (e *testEnv) waitState(t *testing.T, runID string, want models.RunState) {
	t.Helper()
	require.Eventually(t, func() bool {
		w := e.do(t, http.MethodGet, "/api/v1/runs/"+runID, "")
		if w.Code != http.StatusOK {
			return false
		}
		var run models.Run
		return json.Unmarshal(w.Body.Bytes(), &run) == nil && run.State == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStartRun_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	run := env.startRun(t, `{"program_id":"p1","dry_run":true}`)
	assert.True(t, run.DryRun)
	env.waitState(t, run.ID, models.RunDone)

	w := env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	var events struct {
		Events []models.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.NotEmpty(t, events.Events)
	assert.Equal(t, "Director", events.Events[0].Author)

	w = env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/script", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "大家早上好")
}

func TestStartRun_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/runs", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/runs", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "program id is required")
}

func TestStartRun_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.writer.block = make(chan struct{})
	run := env.startRun(t, `{"program_id":"p1"}`)

	w := env.do(t, http.MethodPost, "/api/v1/runs", `{"program_id":"p1","resume_history_id":"`+run.ID+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(env.writer.block)
	env.waitState(t, run.ID, models.RunDone)
}

func TestUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/runs/nope", "/api/v1/runs/nope/events", "/api/v1/runs/nope/script", "/api/v1/runs/nope/audio"} {
		w := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestGetAudio(t *testing.T) {
	env := newTestEnv(t)
	key := artifact.ObjectKey("r1", artifact.AudioName)
	require.NoError(t, env.objects.Put(context.Background(), key, []byte("mp3"), "audio/mpeg"))

	w := env.do(t, http.MethodGet, "/api/v1/runs/r1/audio", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memory://"+key)
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t)
	run := env.startRun(t, `{"program_id":"p1","dry_run":true}`)
	env.waitState(t, run.ID, models.RunDone)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/runs/" + run.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []models.Event
	for {
		var e models.Event
		if err := conn.ReadJSON(&e); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		got = append(got, e)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "Director", got[0].Author)
	assert.Equal(t, "试运行完成，已生成台本和简报", got[len(got)-1].Content)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://radio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
