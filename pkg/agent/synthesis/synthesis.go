// Package synthesis implements Final Script Synthesis: the coding-profile
// LLM call that consumes every validated Step in the Code Library (its
// code, column schema, small sample payload, description and reasoning),
// the user's original query, and an optional Relation Analysis Graph, and
// produces one standalone script artifact.
//
// Two modes are supported: emit_only returns the script text for the
// caller to hand back as the final_result payload, and execute additionally
// runs it through the Sandbox Executor under a final-step deadline,
// streaming the same ProgressUpdate channel the ReAct Agent's tool calls
// use.
//
// Grounded on pkg/agent/controller/synthesis.go's single-call-no-tools
// shape; the execute mode reuses pkg/sandbox.Executor exactly as
// pkg/tools/exec.go's executeSandboxPath does.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oktareact/core/pkg/agent/relation"
	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sandbox"
)

// Mode selects whether the synthesized script is only emitted or also run.
type Mode string

const (
	ModeEmitOnly Mode = "emit_only"
	ModeExecute  Mode = "execute"
)

// SandboxExecutor is the narrow surface Synthesize needs to run the
// finished script in execute mode.
type SandboxExecutor interface {
	Run(ctx context.Context, stepID int, code string, inputs sandbox.RunInputs, timeout time.Duration, maxOutputBytes int64, progressCh chan<- sandbox.ProgressUpdate) (*sandbox.Result, error)
}

// Config bounds one Final Script Synthesis call (and its optional
// execution).
type Config struct {
	CallTimeout    time.Duration
	ExecuteTimeout time.Duration
	MaxOutputBytes int64
}

// Result is the outcome of a synthesis Run.
type Result struct {
	Script          string
	Mode            Mode
	Executed        bool
	ExecutionResult *sandbox.Result
	ExecError       *sandbox.ExecError
}

// Run synthesizes a final script from steps and, in ModeExecute, runs it.
func Run(
	ctx context.Context,
	gw llm.Gateway,
	ledger *llm.TokenLedger,
	sandboxExec SandboxExecutor,
	processID string,
	userQuery string,
	steps []*codelibrary.Entry,
	graph *relation.Graph,
	mode Mode,
	cfg Config,
	progressCh chan<- sandbox.ProgressUpdate,
) (*Result, error) {
	script, err := synthesizeScript(ctx, gw, ledger, processID, userQuery, steps, graph, cfg)
	if err != nil {
		return nil, err
	}

	result := &Result{Script: script, Mode: mode}
	if mode != ModeExecute {
		return result, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, cfg.ExecuteTimeout)
	defer cancel()

	priorSteps, err := priorStepsFor(steps)
	if err != nil {
		return nil, fmt.Errorf("building prior-step inputs: %w", err)
	}

	execResult, runErr := sandboxExec.Run(execCtx, len(steps)+1, script, sandbox.RunInputs{PriorSteps: priorSteps},
		cfg.ExecuteTimeout, cfg.MaxOutputBytes, progressCh)
	if runErr != nil {
		if execErr, ok := runErr.(*sandbox.ExecError); ok {
			result.ExecError = execErr
			return result, nil
		}
		return nil, runErr
	}

	result.Executed = true
	result.ExecutionResult = execResult
	return result, nil
}

func priorStepsFor(steps []*codelibrary.Entry) (map[int]json.RawMessage, error) {
	priorSteps := make(map[int]json.RawMessage, len(steps))
	for _, s := range steps {
		data, err := json.Marshal(s.SampleRows)
		if err != nil {
			return nil, err
		}
		priorSteps[s.Sequence] = data
	}
	return priorSteps, nil
}

func synthesizeScript(
	ctx context.Context,
	gw llm.Gateway,
	ledger *llm.TokenLedger,
	processID string,
	userQuery string,
	steps []*codelibrary.Entry,
	graph *relation.Graph,
	cfg Config,
) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	ch, err := gw.Generate(callCtx, &llm.GenerateInput{
		ProcessID: processID,
		Profile:   "coding",
		Messages:  buildMessages(userQuery, steps, graph),
	})
	if err != nil {
		return "", fmt.Errorf("final script synthesis call failed: %w", err)
	}

	var text string
	var inputTokens, outputTokens int
	for chunk := range ch {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			text += c.Content
		case *llm.UsageChunk:
			inputTokens, outputTokens = c.InputTokens, c.OutputTokens
		case *llm.ErrorChunk:
			return "", fmt.Errorf("%s", c.Message)
		}
	}
	ledger.RecordLLMCall("coding", inputTokens, outputTokens)

	return stripCodeFence(text), nil
}

func buildMessages(userQuery string, steps []*codelibrary.Entry, graph *relation.Graph) []llm.ConversationMessage {
	var sb strings.Builder
	sb.WriteString("You write a single standalone Python script that answers the user's question by combining ")
	sb.WriteString("the validated steps below. Assign the final answer to a variable named result. Respond with ")
	sb.WriteString("ONLY the script, no commentary and no markdown fences.\n\n## Validated steps\n")
	for _, s := range steps {
		fmt.Fprintf(&sb, "### Step %d (%s): %s\n", s.Sequence, s.Kind, s.Description)
		if s.Reasoning != "" {
			fmt.Fprintf(&sb, "Reasoning: %s\n", s.Reasoning)
		}
		fmt.Fprintf(&sb, "Columns: ")
		for _, c := range s.ColumnSchema {
			fmt.Fprintf(&sb, "%s(%s) ", c.Name, c.Type)
		}
		sb.WriteString("\nCode:\n```\n")
		sb.WriteString(s.Code)
		sb.WriteString("\n```\n")
	}

	if graph != nil && len(graph.JoinKeys) > 0 {
		sb.WriteString("\n## Proposed join keys\n")
		for _, jk := range graph.JoinKeys {
			fmt.Fprintf(&sb, "- step %d.%s = step %d.%s (confidence %.2f)\n", jk.LeftStep, jk.LeftColumn, jk.RightStep, jk.RightColumn, jk.Confidence)
		}
		if graph.Notes != "" {
			fmt.Fprintf(&sb, "Notes: %s\n", graph.Notes)
		}
	}

	return []llm.ConversationMessage{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleUser, Content: userQuery},
	}
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```python")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
