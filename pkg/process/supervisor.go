// Package process implements the Process Supervisor: the one entry point
// that owns a query end to end — start, stream, cancel, status — and the
// single background goroutine that drives Planner → ReAct → (optional)
// Relation Analysis → Final Script Synthesis → Results Formatter for it.
//
// Grounded on pkg/queue/worker.go + pkg/queue/pool.go: the worker's
// claim-then-execute-then-finalize shape is kept, but there is no DB-backed
// queue to poll — Start launches the one goroutine for its process
// directly, since a process belongs to exactly the caller who started it,
// not a pool of workers claiming from a shared backlog. The pool's
// sessionID → cancel-function registry (RegisterSession/UnregisterSession/
// CancelSession) is kept verbatim as the shape for process cancellation.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oktareact/core/ent"
	"github.com/oktareact/core/ent/process"
	"github.com/oktareact/core/pkg/agent"
	"github.com/oktareact/core/pkg/agent/formatter"
	"github.com/oktareact/core/pkg/agent/planner"
	"github.com/oktareact/core/pkg/agent/react"
	"github.com/oktareact/core/pkg/agent/relation"
	"github.com/oktareact/core/pkg/agent/synthesis"
	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
	"github.com/oktareact/core/pkg/tools"
)

// Status values a Process can reach. Mirrors ent/schema/process.go's
// status enum.
const (
	StatusPlanning  = "planning"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Config bounds every process this Supervisor runs.
type Config struct {
	MaxWall          time.Duration
	CancelGrace      time.Duration
	EventBusCapacity int
	PreviewCap       int
	SQLRowCap        int
	MaxOutputBytes   int64
	StepTimeout      time.Duration

	Planner   planner.Config
	React     react.Config
	Relation  relation.Config
	Synthesis synthesis.Config
	Formatter formatter.Config
}

// Dependencies are the process-agnostic collaborators every run shares.
type Dependencies struct {
	Gateway     llm.Gateway
	EntClient   *ent.Client
	Catalog     *catalog.Catalog
	SchemaView  *sqlschema.View
	SQLExecutor tools.SQLExecutor
	Sandbox     interface {
		tools.SandboxExecutor
		synthesis.SandboxExecutor
	}
}

// Snapshot is the point-in-time status() view of one process.
type Snapshot struct {
	ProcessID    string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorKind    string
	ErrorMessage string
	InputTokens  int
	OutputTokens int
}

type processState struct {
	id     string
	bus    *events.Bus
	store  *events.Store
	ledger *llm.TokenLedger

	cancel context.CancelFunc

	mu           sync.RWMutex
	status       string
	startedAt    time.Time
	completedAt  *time.Time
	errorKind    string
	errorMessage string
}

func (p *processState) snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	in, out := p.ledger.Total()
	return &Snapshot{
		ProcessID: p.id, Status: p.status, StartedAt: p.startedAt, CompletedAt: p.completedAt,
		ErrorKind: p.errorKind, ErrorMessage: p.errorMessage, InputTokens: in, OutputTokens: out,
	}
}

func (p *processState) setStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *processState) setTerminal(status, errorKind, errorMessage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	p.errorKind = errorKind
	p.errorMessage = errorMessage
	now := time.Now()
	p.completedAt = &now
}

// Supervisor owns every in-flight process on this instance.
type Supervisor struct {
	deps Dependencies
	cfg  Config

	mu        sync.RWMutex
	processes map[string]*processState
}

// New returns a Supervisor ready to start processes.
func New(deps Dependencies, cfg Config) *Supervisor {
	return &Supervisor{deps: deps, cfg: cfg, processes: make(map[string]*processState)}
}

// Start launches a new process for userQuery and returns its ID
// immediately; the process runs on a background goroutine.
func (s *Supervisor) Start(ctx context.Context, userQuery string, mode synthesis.Mode) (string, error) {
	processID := uuid.NewString()
	deadline := time.Now().Add(s.cfg.MaxWall)

	if s.deps.EntClient != nil {
		createCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := s.deps.EntClient.Process.Create().
			SetID(processID).
			SetUserQuery(userQuery).
			SetDeadline(deadline).
			Save(createCtx); err != nil {
			return "", fmt.Errorf("create process record: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	state := &processState{
		id:        processID,
		bus:       events.NewBus(processID, s.cfg.EventBusCapacity),
		store:     events.NewStore(s.deps.EntClient),
		ledger:    llm.NewTokenLedger(),
		cancel:    cancel,
		status:    StatusPlanning,
		startedAt: time.Now(),
	}

	s.mu.Lock()
	s.processes[processID] = state
	s.mu.Unlock()

	go s.run(runCtx, deadline, state, userQuery, mode)

	return processID, nil
}

// Stream returns the Bus and Store backing processID's event stream, for
// an HTTP handler to hand to events.ServeSSE/ServeWebSocket.
func (s *Supervisor) Stream(processID string) (*events.Bus, *events.Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.processes[processID]
	if !ok {
		return nil, nil, false
	}
	return state.bus, state.store, true
}

// Cancel requests termination of processID. Idempotent: calling it twice
// only triggers one plan_cancelled event, since the second call's cancel()
// is a no-op on an already-cancelled context.
func (s *Supervisor) Cancel(processID string) bool {
	s.mu.RLock()
	state, ok := s.processes[processID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	state.cancel()
	return true
}

// Status returns a point-in-time snapshot of processID.
func (s *Supervisor) Status(processID string) (*Snapshot, bool) {
	s.mu.RLock()
	state, ok := s.processes[processID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return state.snapshot(), true
}

// run is the single goroutine driving one process from planning through
// its terminal event. Any uncaught panic or error surfaces as a terminal
// plan_error rather than crashing the Supervisor, mirroring the teacher's
// worker.go nil-guard around ExecutionResult.
func (s *Supervisor) run(ctx context.Context, deadline time.Time, state *processState, userQuery string, mode synthesis.Mode) {
	defer func() {
		if r := recover(); r != nil {
			s.finishFailed(ctx, state, "internal_error", fmt.Sprintf("panic: %v", r))
		}
	}()

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	library := codelibrary.New(state.id, s.deps.EntClient, s.cfg.PreviewCap, s.cfg.MaxOutputBytes)

	readEndpoints := s.deps.Catalog.Filter([]catalog.OperationKind{catalog.KindRead})
	plan, err := planner.Run(runCtx, s.deps.Gateway, state.ledger, state.bus, state.id, userQuery,
		readEndpoints, s.deps.SchemaView.All(), nil, s.cfg.Planner)
	if err != nil {
		s.finishCancelledOrFailed(ctx, runCtx, state, "planner_error", err.Error())
		return
	}

	state.setStatus(StatusExecuting)

	toolDeps := &tools.Dependencies{
		Catalog:        s.deps.Catalog,
		SchemaView:     s.deps.SchemaView,
		SQLExecutor:    s.deps.SQLExecutor,
		Sandbox:        s.deps.Sandbox,
		Library:        library,
		PreviewCap:     s.cfg.PreviewCap,
		SQLRowCap:      s.cfg.SQLRowCap,
		MaxOutputBytes: s.cfg.MaxOutputBytes,
		StepTimeout:    s.cfg.StepTimeout,
	}

	progressCh := make(chan sandbox.ProgressUpdate, 16)
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		forwardProgress(state, progressCh)
	}()

	systemPrompt := buildSystemPrompt(plan)
	result, err := react.Run(runCtx, s.deps.Gateway, tools.Surface(), toolDeps, state.ledger, state.bus,
		state.id, systemPrompt, userQuery, s.cfg.React, progressCh)
	close(progressCh)
	progressWG.Wait()

	if err != nil {
		s.finishCancelledOrFailed(ctx, runCtx, state, "react_error", err.Error())
		return
	}

	switch result.Status {
	case react.StatusCancelled:
		s.finishCancelled(ctx, state)
		return
	case react.StatusFailed, react.StatusBudgetExhausted:
		s.finishFailed(ctx, state, "react_"+result.Status, resultErrMessage(result))
		return
	}

	var graph *relation.Graph
	if steps := library.All(); len(steps) >= 2 {
		g, rerr := relation.Analyze(runCtx, s.deps.Gateway, state.ledger, state.id, steps, s.cfg.Relation)
		if rerr != nil {
			state.bus.Publish(events.NewEvent(state.id, 0, events.KindPhaseUpdate, struct {
				Phase   string `json:"phase"`
				Warning string `json:"warning"`
			}{Phase: "finalizing", Warning: "relation_analysis_failed"}))
		} else {
			graph = g
		}
	}

	synthResult, err := synthesis.Run(runCtx, s.deps.Gateway, state.ledger, s.deps.Sandbox, state.id, userQuery,
		library.All(), graph, mode, s.cfg.Synthesis, nil)
	if err != nil {
		s.finishCancelledOrFailed(ctx, runCtx, state, "synthesis_error", err.Error())
		return
	}

	s.finishCompleted(ctx, runCtx, state, userQuery, synthResult, library)
}

func resultErrMessage(r *react.Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return string(r.Status)
}

// buildSystemPrompt turns the Planner Agent's advisory Plan into the ReAct
// Agent's system prompt. The Plan is a hint, not a script: the prompt
// instructs the model to use the Tool Surface to validate each step rather
// than trusting the plan blindly.
func buildSystemPrompt(plan *agent.Plan) string {
	var sb strings.Builder
	sb.WriteString("You are an investigation agent for an Okta tenant. You have a fixed set of tools: ")
	sb.WriteString("load_read_endpoints, filter_endpoints, load_sql_schema, execute_test_query, ")
	sb.WriteString("store_validated_step, list_stored_steps, and synthesize_final_script. ")
	sb.WriteString("Call exactly one tool per turn. Validate every query with execute_test_query before ")
	sb.WriteString("storing it with store_validated_step. When you have enough validated steps to answer ")
	sb.WriteString("the question, call synthesize_final_script with a description of what the final script ")
	sb.WriteString("should do.\n")

	if plan != nil && len(plan.Steps) > 0 {
		sb.WriteString("\nAn advisory plan was proposed; treat it as a starting hint, not a fixed script:\n")
		if plan.Strategy != "" {
			fmt.Fprintf(&sb, "Strategy: %s\n", plan.Strategy)
		}
		for _, step := range plan.Steps {
			fmt.Fprintf(&sb, "- [%s] %s.%s: %s\n", step.ToolKind, step.Entity, step.Operation, step.QueryContext)
		}
	}

	return sb.String()
}

func forwardProgress(state *processState, ch <-chan sandbox.ProgressUpdate) {
	for p := range ch {
		percent := p.Percent
		state.bus.Publish(events.NewStepStatusUpdate(state.id, 0, events.StepStatusPayload{
			StepIndex:                 p.StepID,
			Status:                    "running",
			SubprocessProgressPercent: &percent,
			SubprocessProgressDetails: p.Message,
		}, true))
	}
}

// finishCompleted runs the Results Formatter Agent over an executed
// synthesis result (when one ran) before publishing the terminal
// final_result event, so the client gets a ready-to-render tabular and
// narrative payload rather than a raw script and JSON blob.
func (s *Supervisor) finishCompleted(ctx, runCtx context.Context, state *processState, userQuery string, synthResult *synthesis.Result, library *codelibrary.Library) {
	state.setTerminal(StatusCompleted, "", "")

	var table *formatter.TabularPayload
	var narrative *formatter.NarrativePayload
	if synthResult.Executed && synthResult.ExecutionResult != nil {
		var rows []map[string]any
		if err := json.Unmarshal(synthResult.ExecutionResult.ResultJSON, &rows); err == nil && len(rows) > 0 {
			table = formatter.FormatTabular(rows, s.cfg.Formatter)
			if n, ferr := formatter.FormatNarrative(runCtx, s.deps.Gateway, state.ledger, state.id, userQuery, rows, s.cfg.Formatter); ferr == nil {
				narrative = n
			}
		}
	}

	var kinds []string
	for _, e := range library.All() {
		kinds = append(kinds, e.Kind)
	}
	dataSources := formatter.DataSources(kinds)
	displayType := formatter.DisplayType(table, narrative)

	state.bus.Publish(events.NewEvent(state.id, 0, events.KindFinalResult, struct {
		Script      string                      `json:"script"`
		Executed    bool                        `json:"executed"`
		Table       *formatter.TabularPayload   `json:"table,omitempty"`
		Narrative   *formatter.NarrativePayload `json:"narrative,omitempty"`
		DataSources []string                    `json:"data_sources"`
		DisplayType string                      `json:"display_type"`
	}{Script: synthResult.Script, Executed: synthResult.Executed, Table: table, Narrative: narrative,
		DataSources: dataSources, DisplayType: displayType}))

	s.persistTerminal(ctx, state, synthResult, table, narrative, dataSources, displayType)
}

func (s *Supervisor) finishFailed(ctx context.Context, state *processState, errorKind, message string) {
	state.setTerminal(StatusFailed, errorKind, message)
	state.bus.Publish(events.NewEvent(state.id, 0, events.KindPlanError, struct {
		ErrorKind string `json:"error_kind"`
		Message   string `json:"message"`
	}{ErrorKind: errorKind, Message: message}))
	s.persistTerminal(ctx, state, nil, nil, nil, nil, "")
}

func (s *Supervisor) finishCancelled(ctx context.Context, state *processState) {
	state.setTerminal(StatusCancelled, "", "")
	state.bus.Publish(events.NewEvent(state.id, 0, events.KindPlanCancelled, struct {
		Message string `json:"message"`
	}{Message: "process cancelled"}))
	s.persistTerminal(ctx, state, nil, nil, nil, nil, "")
}

// finishCancelledOrFailed distinguishes a genuine failure from a
// cancellation that happened to surface through an error return (e.g. a
// context-cancelled LLM call) — cancelled processes must reach
// StatusCancelled, never StatusFailed.
func (s *Supervisor) finishCancelledOrFailed(ctx, runCtx context.Context, state *processState, errorKind, message string) {
	if runCtx.Err() == context.Canceled {
		s.finishCancelled(ctx, state)
		return
	}
	s.finishFailed(ctx, state, errorKind, message)
}

func (s *Supervisor) persistTerminal(ctx context.Context, state *processState, synthResult *synthesis.Result, table *formatter.TabularPayload, narrative *formatter.NarrativePayload, dataSources []string, displayType string) {
	if s.deps.EntClient == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := s.deps.EntClient.Process.UpdateOneID(state.id).
		SetStatus(process.Status(state.status)).
		SetCompletedAt(time.Now())
	if state.errorKind != "" {
		update = update.SetErrorKind(state.errorKind)
	}
	if state.errorMessage != "" {
		update = update.SetErrorMessage(state.errorMessage)
	}
	if synthResult != nil {
		update = update.SetFinalScript(synthResult.Script)
	}
	if table != nil || narrative != nil {
		if response, err := formattedResponseMap(table, narrative, dataSources, displayType); err != nil {
			slog.Warn("failed to marshal formatted response", "process_id", state.id, "error", err)
		} else {
			update = update.SetFormattedResponse(response)
		}
	}
	if err := update.Exec(persistCtx); err != nil {
		slog.Warn("failed to persist process terminal status", "process_id", state.id, "error", err)
	}
}

// formattedResponseMap round-trips the formatter payloads through JSON so
// they land in the formatted_response JSON column in the same shape the
// final_result event already published to the client.
func formattedResponseMap(table *formatter.TabularPayload, narrative *formatter.NarrativePayload, dataSources []string, displayType string) (map[string]interface{}, error) {
	raw, err := json.Marshal(struct {
		Table       *formatter.TabularPayload   `json:"table,omitempty"`
		Narrative   *formatter.NarrativePayload `json:"narrative,omitempty"`
		DataSources []string                    `json:"data_sources"`
		DisplayType string                      `json:"display_type"`
	}{Table: table, Narrative: narrative, DataSources: dataSources, DisplayType: displayType})
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
