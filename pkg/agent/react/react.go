// Package react implements the ReAct Agent: a bounded iterative loop that
// calls the reasoning-profile Chat Model Gateway with the running
// transcript and the Tool Surface's definitions, executes at most one tool
// call per turn, and stops when the model calls the terminal
// synthesize_final_script tool or a turn/wall-clock budget is exhausted.
//
// Grounded on pkg/agent/controller/react.go's iteration loop and
// forced-conclusion path, adapted from the teacher's text-based ReAct
// parsing (tools described in the system prompt, actions parsed out of
// free text) to the Chat Model Gateway's native tool-calling chunks, since
// every provider this gateway wraps (Anthropic, OpenAI, Vertex) supports
// structured tool use directly.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oktareact/core/pkg/agent"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/tools"
)

// Status values a Run can terminate with.
const (
	StatusSynthesize      = "synthesize"      // model called synthesize_final_script
	StatusBudgetExhausted = "budget_exhausted" // MAX_TURNS or MAX_WALL reached
	StatusFailed          = "failed"          // consecutive-failure threshold reached
	StatusCancelled       = "cancelled"
)

// Config bounds one ReAct Agent run.
type Config struct {
	MaxTurns                int
	MaxWall                 time.Duration
	TurnTimeout             time.Duration
	MaxConsecutiveFailures  int
}

// EventPublisher is the subset of *events.Bus the ReAct Agent needs —
// narrowed to an interface so tests don't need a live Bus.
type EventPublisher interface {
	Publish(ev events.Event) events.Event
}

// Result is the outcome of a Run.
type Result struct {
	Status           string
	FinalDescription string // set when Status == StatusSynthesize
	Messages         []llm.ConversationMessage
	Err              error
}

// Run executes the ReAct iteration loop for one process.
func Run(
	ctx context.Context,
	gw llm.Gateway,
	surface map[string]*tools.Tool,
	toolDeps *tools.Dependencies,
	ledger *llm.TokenLedger,
	publisher EventPublisher,
	processID string,
	systemPrompt string,
	userQuery string,
	cfg Config,
	progressCh chan<- sandbox.ProgressUpdate,
) (*Result, error) {
	toolDefs := tools.Definitions(surface)
	messages := []llm.ConversationMessage{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userQuery},
	}

	state := agent.NewIterationState(cfg.MaxTurns, cfg.MaxConsecutiveFailures)
	deadline := time.Now().Add(cfg.MaxWall)

	for turn := 0; turn < cfg.MaxTurns; turn++ {
		state.CurrentIteration = turn + 1

		if ctx.Err() != nil {
			return &Result{Status: StatusCancelled, Messages: messages, Err: ctx.Err()}, nil
		}
		if time.Now().After(deadline) {
			return &Result{Status: StatusBudgetExhausted, Messages: messages}, nil
		}
		if state.ShouldAbort() {
			return &Result{Status: StatusFailed, Messages: messages, Err: fmt.Errorf("%d consecutive turn failures: %s", state.ConsecutiveFailures, state.LastErrorMessage)}, nil
		}

		turnCtx, cancel := context.WithTimeout(ctx, cfg.TurnTimeout)
		tr, err := runTurn(turnCtx, gw, &llm.GenerateInput{
			ProcessID: processID,
			Profile:   "reasoning",
			Messages:  messages,
			Tools:     toolDefs,
		})
		cancel()

		if err != nil {
			state.RecordFailure(err.Error())
			messages = append(messages, llm.ConversationMessage{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("[system] LLM call failed: %v. Please try again.", err),
			})
			continue
		}

		ledger.RecordLLMCall("reasoning", tr.InputTokens, tr.OutputTokens)
		state.RecordSuccess()

		assistantMsg := llm.ConversationMessage{Role: llm.RoleAssistant, Content: tr.Text, ToolCalls: tr.ToolCalls}
		messages = append(messages, assistantMsg)

		switch {
		case len(tr.ToolCalls) == 0:
			messages = append(messages, llm.ConversationMessage{
				Role:    llm.RoleUser,
				Content: "[system] Every turn must call exactly one tool. Call a Tool Surface tool now.",
			})

		case len(tr.ToolCalls) > 1:
			messages = append(messages, llm.ConversationMessage{
				Role:    llm.RoleUser,
				Content: "[system] Only one tool call per turn is allowed; the first call was kept and the rest were discarded.",
			})
			result, done := dispatch(ctx, surface, toolDeps, progressCh, publisher, processID, turn, tr.ToolCalls[0])
			if done {
				return result, nil
			}
			messages = append(messages, result.Messages...)

		default:
			result, done := dispatch(ctx, surface, toolDeps, progressCh, publisher, processID, turn, tr.ToolCalls[0])
			if done {
				return result, nil
			}
			messages = append(messages, result.Messages...)
		}
	}

	return &Result{Status: StatusBudgetExhausted, Messages: messages}, nil
}

func dispatch(
	ctx context.Context,
	surface map[string]*tools.Tool,
	toolDeps *tools.Dependencies,
	progressCh chan<- sandbox.ProgressUpdate,
	publisher EventPublisher,
	processID string,
	turnIndex int,
	call llm.ToolCall,
) (*Result, bool) {
	if call.Name == tools.NameSynthesizeFinalScript {
		var args struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal([]byte(call.Arguments), &args)
		if publisher != nil {
			publisher.Publish(events.NewStepStatusUpdate(processID, 0, events.StepStatusPayload{
				StepIndex: turnIndex,
				Status:    "completed",
				ResultSummary: "synthesize_final_script called",
			}, false))
		}
		return &Result{Status: StatusSynthesize, FinalDescription: args.Description}, true
	}

	tool, ok := surface[call.Name]
	if !ok {
		observation := fmt.Sprintf(`{"success":false,"error_kind":"unknown_tool","message":"unknown tool %q; available tools: %s"}`, call.Name, availableNames(surface))
		return &Result{Messages: []llm.ConversationMessage{{
			Role:       llm.RoleTool,
			Content:    observation,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		}}}, false
	}

	start := time.Now()
	raw, toolErr := tool.Execute(ctx, toolDeps, call.Arguments, progressCh)
	elapsed := time.Since(start)

	status := "completed"
	var resultSummary, errMessage string
	if toolErr != nil {
		status = "error"
		errMessage = toolErr.Error()
	} else {
		resultSummary = truncateSummary(string(raw), 200)
	}

	if publisher != nil {
		publisher.Publish(events.NewStepStatusUpdate(processID, 0, events.StepStatusPayload{
			StepIndex:     turnIndex,
			Status:        status,
			ResultSummary: resultSummary,
			DurationMS:    elapsed.Milliseconds(),
			ErrorMessage:  errMessage,
		}, false))
	}

	var observation string
	if toolErr != nil {
		observation = fmt.Sprintf(`{"success":false,"error_kind":%q,"message":%q}`, toolErr.Kind, toolErr.Message)
	} else {
		observation = string(raw)
	}

	return &Result{Messages: []llm.ConversationMessage{{
		Role:       llm.RoleTool,
		Content:    observation,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}}}, false
}

func availableNames(surface map[string]*tools.Tool) string {
	names := make([]string, 0, len(surface))
	for name := range surface {
		names = append(names, name)
	}
	return fmt.Sprintf("%v", names)
}

func truncateSummary(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// turnResult is one LLM turn's accumulated output.
type turnResult struct {
	Text         string
	ToolCalls    []llm.ToolCall
	InputTokens  int
	OutputTokens int
}

func runTurn(ctx context.Context, gw llm.Gateway, input *llm.GenerateInput) (*turnResult, error) {
	ch, err := gw.Generate(ctx, input)
	if err != nil {
		return nil, err
	}

	var tr turnResult
	for chunk := range ch {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			tr.Text += c.Content
		case *llm.ToolCallChunk:
			tr.ToolCalls = append(tr.ToolCalls, llm.ToolCall{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
		case *llm.UsageChunk:
			tr.InputTokens = c.InputTokens
			tr.OutputTokens = c.OutputTokens
		case *llm.ErrorChunk:
			return nil, fmt.Errorf("%s", c.Message)
		}
	}
	return &tr, nil
}
