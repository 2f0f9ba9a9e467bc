// Package api implements the HTTP surface: start a process, stream its
// events, cancel it, and check its status. Grounded on
// pkg/api/handlers.go's Server/CreateAlert/GetSession/CancelSession/Health
// shape, generalized from one alert-processing session to one
// investigation process.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oktareact/core/pkg/agent/synthesis"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/process"
)

// Server exposes the Process Supervisor over HTTP.
type Server struct {
	supervisor *process.Supervisor
}

// NewServer returns a Server backed by supervisor.
func NewServer(supervisor *process.Supervisor) *Server {
	return &Server{supervisor: supervisor}
}

// Routes registers every handler on router, under the given group prefix
// (e.g. "" or "/api").
func (s *Server) Routes(router gin.IRouter) {
	router.POST("/processes", s.CreateProcess)
	router.GET("/processes/:id", s.GetProcess)
	router.GET("/processes/:id/stream", s.StreamProcess)
	router.POST("/processes/:id/cancel", s.CancelProcess)
	router.GET("/health", s.Health)
}

// createProcessRequest is the POST /processes request body.
type createProcessRequest struct {
	Query string `json:"query" binding:"required"`
	// Mode selects whether Final Script Synthesis only emits a script
	// ("emit_only", the default) or also runs it in the Sandbox
	// ("execute").
	Mode string `json:"mode"`
}

// CreateProcess handles POST /processes.
func (s *Server) CreateProcess(c *gin.Context) {
	var req createProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := synthesis.ModeEmitOnly
	if req.Mode == string(synthesis.ModeExecute) {
		mode = synthesis.ModeExecute
	}

	processID, err := s.supervisor.Start(c.Request.Context(), req.Query, mode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("started process", "process_id", processID)
	c.JSON(http.StatusAccepted, gin.H{"process_id": processID})
}

// GetProcess handles GET /processes/:id.
func (s *Server) GetProcess(c *gin.Context) {
	processID := c.Param("id")

	snap, ok := s.supervisor.Status(processID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// StreamProcess handles GET /processes/:id/stream, upgrading to a
// WebSocket when the client asks for one and falling back to
// Server-Sent Events otherwise. ?since_seq=N resumes a stream after a
// reconnect.
func (s *Server) StreamProcess(c *gin.Context) {
	processID := c.Param("id")

	bus, store, ok := s.supervisor.Stream(processID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}

	sinceSeq := 0
	if raw := c.Query("since_seq"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			sinceSeq = n
		}
	}

	if c.GetHeader("Upgrade") == "websocket" {
		if err := events.ServeWebSocket(c.Writer, c.Request, bus, sinceSeq); err != nil {
			slog.Warn("websocket stream ended with error", "process_id", processID, "error", err)
		}
		return
	}

	events.ServeSSE(c.Writer, c.Request, bus, store, sinceSeq)
}

// CancelProcess handles POST /processes/:id/cancel.
func (s *Server) CancelProcess(c *gin.Context) {
	processID := c.Param("id")

	if !s.supervisor.Cancel(processID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}

	slog.Info("cancelled process", "process_id", processID)
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
