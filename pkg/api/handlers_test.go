package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/agent/formatter"
	"github.com/oktareact/core/pkg/agent/planner"
	"github.com/oktareact/core/pkg/agent/react"
	"github.com/oktareact/core/pkg/agent/relation"
	"github.com/oktareact/core/pkg/agent/synthesis"
	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/process"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopGateway struct{}

func (noopGateway) Generate(_ context.Context, _ *llm.GenerateInput) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- &llm.TextChunk{Content: `{"strategy":"s","steps":[]}`}
	close(ch)
	return ch, nil
}
func (noopGateway) Close() error { return nil }

type noopSandbox struct{}

func (noopSandbox) Run(context.Context, int, string, sandbox.RunInputs, time.Duration, int64, chan<- sandbox.ProgressUpdate) (*sandbox.Result, error) {
	return &sandbox.Result{ResultJSON: []byte(`{}`)}, nil
}

func testServer() *Server {
	deps := process.Dependencies{
		Gateway:    noopGateway{},
		Catalog:    catalog.Builtin(),
		SchemaView: sqlschema.Builtin(),
		Sandbox:    noopSandbox{},
	}
	cfg := process.Config{
		MaxWall:          5 * time.Second,
		CancelGrace:      time.Second,
		EventBusCapacity: 64,
		PreviewCap:       3,
		SQLRowCap:        1000,
		MaxOutputBytes:   64 * 1024,
		StepTimeout:      time.Second,
		Planner:          planner.Config{MaxRetries: 1, CallTimeout: time.Second},
		React:            react.Config{MaxTurns: 1, MaxWall: time.Second, TurnTimeout: time.Second, MaxConsecutiveFailures: 1},
		Relation:         relation.Config{CallTimeout: time.Second},
		Synthesis:        synthesis.Config{CallTimeout: time.Second, ExecuteTimeout: time.Second, MaxOutputBytes: 64 * 1024},
		Formatter:        formatter.Config{MaxRowsInline: 50, CallTimeout: time.Second},
	}
	return NewServer(process.New(deps, cfg))
}

func newRouter(s *Server) *gin.Engine {
	r := gin.New()
	s.Routes(r)
	return r
}

func TestCreateProcessReturnsAcceptedWithProcessID(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	body, _ := json.Marshal(createProcessRequest{Query: "how many users are there?"})
	req := httptest.NewRequest(http.MethodPost, "/processes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["process_id"])
}

func TestCreateProcessRejectsMissingQuery(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/processes", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProcessReturnsNotFoundForUnknownID(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/processes/does-not-exist", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelProcessReturnsNotFoundForUnknownID(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/processes/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReturnsOK(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProcessThenGetProcessReturnsSnapshot(t *testing.T) {
	s := testServer()
	r := newRouter(s)

	body, _ := json.Marshal(createProcessRequest{Query: "list users"})
	req := httptest.NewRequest(http.MethodPost, "/processes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	getReq := httptest.NewRequest(http.MethodGet, "/processes/"+created["process_id"], nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)

	assert.Equal(t, http.StatusOK, getRec.Code)
	var snap process.Snapshot
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &snap))
	assert.Equal(t, created["process_id"], snap.ProcessID)
}
