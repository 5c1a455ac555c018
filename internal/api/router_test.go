package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	"github.com/dneimke/simple-coding-sub000/internal/config"
	"github.com/dneimke/simple-coding-sub000/internal/game"
	"github.com/dneimke/simple-coding-sub000/internal/layout"
	"github.com/dneimke/simple-coding-sub000/internal/repository"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const attributeXML = `<?xml version="1.0" encoding="UTF-8"?>
<game date="2024-03-02" teams="Hawks vs Owls">
    <events>
        <event event="Goal" timeMs="65000" />
        <event event="Shot" timeMs="12000" />
    </events>
</game>
`

// RouterTestSuite API测试套件
type RouterTestSuite struct {
	suite.Suite
	db      *gorm.DB
	clock   *clockwork.FakeClock
	store   *state.Store
	tracker *game.Tracker
	engine  *gin.Engine
}

// envelope 通用响应结构
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Hint string `json:"hint"`
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.db = repository.SetupTestDB()
	kv := repository.NewKVStore(s.db, repository.KVOptions{Namespace: "matchlog.", QuotaBytes: 64 * 1024})
	s.clock = clockwork.NewFakeClockAt(time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC))
	s.store = state.New()
	arch := archive.New(kv, archive.Options{MaxGames: 3, Clock: s.clock})
	s.tracker = game.NewTracker(s.store, arch, game.NewMemoryStatePersister(), game.TrackerOptions{Clock: s.clock})

	router := NewRouter(Deps{
		DB:      s.db,
		Tracker: s.tracker,
		Archive: arch,
		Layouts: layout.NewStore(kv),
		Store:   s.store,
		Clock:   s.clock,
	}, config.Default(), zap.NewNop())
	s.engine = router.GetEngine()
}

func (s *RouterTestSuite) TearDownTest() {
	_ = s.tracker.Clear(context.Background())
	repository.CleanupTestDB(s.db)
}

func (s *RouterTestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *RouterTestSuite) TestHealth() {
	w, _ := s.do("GET", "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "healthy")
}

func (s *RouterTestSuite) TestGameLifecycle() {
	w, env := s.do("POST", "/api/v1/game/new", nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	s.True(env.Success)

	w, env = s.do("POST", "/api/v1/game/new", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Require().NotNil(env.Error)
	s.Equal(2001, env.Error.Code)

	s.clock.Advance(3 * time.Second)
	w, env = s.do("POST", "/api/v1/game/events", map[string]interface{}{"name": "Goal"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var added AddEventResponse
	s.Require().NoError(json.Unmarshal(env.Data, &added))
	s.True(added.Accepted)
	s.Equal(int64(3000), added.Event.OffsetMs)

	w, _ = s.do("POST", "/api/v1/game/events", map[string]interface{}{"name": "Shot", "offsetMs": 1000})
	s.Equal(http.StatusCreated, w.Code)

	w, env = s.do("GET", "/api/v1/game/timeline", nil)
	s.Equal(http.StatusOK, w.Code)
	var timeline TimelineResponse
	s.Require().NoError(json.Unmarshal(env.Data, &timeline))
	s.Require().Len(timeline.Events, 2)
	s.Equal("Goal", timeline.Events[0].Name)

	w, env = s.do("GET", "/api/v1/game/stats", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(string(env.Data), `"Goal"`)

	w, _ = s.do("GET", "/api/v1/game/xml", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "<code>Goal</code>")

	w, _ = s.do("POST", "/api/v1/game/pause", nil)
	s.Equal(http.StatusOK, w.Code)

	// 暂停时拒绝记录
	w, env = s.do("POST", "/api/v1/game/events", map[string]interface{}{"name": "Foul"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(2002, env.Error.Code)

	w, env = s.do("POST", "/api/v1/game/complete", map[string]interface{}{"label": "Hawks vs Owls"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var saved archive.SavedGame
	s.Require().NoError(json.Unmarshal(env.Data, &saved))
	s.Len(saved.Events, 2)
	s.Equal(int64(3000), saved.ElapsedMs)

	w, env = s.do("GET", "/api/v1/archive", nil)
	s.Equal(http.StatusOK, w.Code)
	var list ArchiveListResponse
	s.Require().NoError(json.Unmarshal(env.Data, &list))
	s.Len(list.Games, 1)
	s.Equal(3, list.MaxGames)
}

func (s *RouterTestSuite) TestCompleteWithoutGame() {
	w, env := s.do("POST", "/api/v1/game/complete", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(2000, env.Error.Code)
}

func (s *RouterTestSuite) TestArchiveImportExport() {
	req := httptest.NewRequest("POST", "/api/v1/archive/import", strings.NewReader(attributeXML))
	req.Header.Set("Content-Type", "application/xml")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	s.Require().Equal(http.StatusCreated, w.Code)

	w, env := s.do("GET", "/api/v1/archive/0", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var game archive.SavedGame
	s.Require().NoError(json.Unmarshal(env.Data, &game))
	s.Equal("Hawks vs Owls", game.LabelOr(""))
	s.Len(game.Events, 2)

	w, _ = s.do("GET", "/api/v1/archive/0/xml", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(`attachment; filename="2024-03-02-hawks-vs-owls.xml"`, w.Header().Get("Content-Disposition"))
	s.Contains(w.Body.String(), `<event event="Goal" timeMs="65000" />`)

	w, env = s.do("PATCH", "/api/v1/archive/0", map[string]interface{}{"label": "Final"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &game))
	s.Equal("Final", game.LabelOr(""))
	s.Len(game.Events, 2)

	w, _ = s.do("DELETE", "/api/v1/archive/0", nil)
	s.Equal(http.StatusNoContent, w.Code)

	w, env = s.do("GET", "/api/v1/archive/0", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(1002, env.Error.Code)
}

func (s *RouterTestSuite) TestImportMultipart() {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "game.xml")
	s.Require().NoError(err)
	_, err = part.Write([]byte(attributeXML))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/archive/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	s.Equal(http.StatusCreated, w.Code)
}

func (s *RouterTestSuite) TestImportMalformedXML() {
	w, env := s.do("POST", "/api/v1/archive/import", "<game><events>")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(8000, env.Error.Code)

	w, env = s.do("POST", "/api/v1/archive/import", "<game></game>")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(8001, env.Error.Code)
}

func (s *RouterTestSuite) TestImportBatch() {
	body := map[string]interface{}{
		"games": []map[string]interface{}{
			{"events": []map[string]interface{}{{"name": "Goal", "offsetMs": 1000}}, "label": "A"},
			{"events": []map[string]interface{}{}},
			{"events": []map[string]interface{}{{"event": "Shot", "timeMs": 2000}}, "date": "2024-01-01"},
		},
		"replace": true,
	}
	w, env := s.do("POST", "/api/v1/archive/import/batch", body)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp ImportBatchResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.Equal(2, resp.Imported)

	w, env = s.do("POST", "/api/v1/archive/import/batch", map[string]interface{}{"games": "nope"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(8003, env.Error.Code)
}

func (s *RouterTestSuite) TestInvalidIndex() {
	w, env := s.do("GET", "/api/v1/archive/abc", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(1001, env.Error.Code)
}

func (s *RouterTestSuite) TestUsage() {
	w, env := s.do("GET", "/api/v1/archive/usage", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var usage archive.UsageReport
	s.Require().NoError(json.Unmarshal(env.Data, &usage))
	s.Equal(int64(64*1024), usage.QuotaBytes)
	s.False(usage.Warning)
}

func (s *RouterTestSuite) TestLayout() {
	w, env := s.do("GET", "/api/v1/layout", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var cfg layout.Config
	s.Require().NoError(json.Unmarshal(env.Data, &cfg))
	s.Equal(layout.Default(), cfg)

	yamlBody := "rowDefs:\n  - gridCols: grid-cols-1\n    buttons:\n      - event: Goal\n        text: Goal\n        color: green\n"
	req := httptest.NewRequest("PUT", "/api/v1/layout", strings.NewReader(yamlBody))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)

	w, env = s.do("GET", "/api/v1/layout", nil)
	s.Require().NoError(json.Unmarshal(env.Data, &cfg))
	s.Equal([]string{"Goal"}, cfg.Events())

	w, env = s.do("PUT", "/api/v1/layout", map[string]interface{}{"rowDefs": nil})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(6002, env.Error.Code)

	w, _ = s.do("DELETE", "/api/v1/layout", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterTestSuite) TestState() {
	w, env := s.do("GET", "/api/v1/state?path=ui.activeTab", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(string(env.Data), `"logger"`)

	w, _ = s.do("PUT", "/api/v1/state", map[string]interface{}{"path": "ui.activeTab", "value": "archive"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("archive", s.store.Get("ui.activeTab"))

	w, env = s.do("PUT", "/api/v1/state", map[string]interface{}{"path": "game.isRunning", "value": true})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(1001, env.Error.Code)
	s.False(s.store.GetBool(state.PathGameRunning))
}

func (s *RouterTestSuite) TestNotFound() {
	w, _ := s.do("GET", "/api/v1/nothing", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestOpenAPI() {
	w, _ := s.do("GET", "/openapi", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "yaml")

	body := w.Body.String()
	s.Contains(body, "openapi: 3.0.3")
	for _, path := range []string{"/api/v1/game:", "/api/v1/archive:", "/api/v1/layout:", "/api/v1/state:"} {
		s.Contains(body, path)
	}

	w, _ = s.do("GET", "/docs/redoc", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `spec-url="/openapi"`)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
