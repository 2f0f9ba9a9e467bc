// Package tools implements the Tool Surface: the closed set of operations
// the ReAct Agent may invoke, described to the model as JSON-Schema-typed
// tool definitions and dispatched through a single lookup table.
//
// Grounded on pkg/agent/tool_executor.go's ToolExecutor interface — the
// teacher describes tools, executes one, and returns a ToolResult; this
// package keeps that shape but replaces the MCP transport with a fixed,
// in-process set of seven operations wrapping pkg/catalog, pkg/sqlschema,
// pkg/sqlvalidator, pkg/sandbox, and pkg/codelibrary.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
)

// Tool Surface names, fixed per the closed set — the ReAct Agent validates
// a model tool call's name against exactly this set.
const (
	NameLoadReadEndpoints     = "load_read_endpoints"
	NameFilterEndpoints       = "filter_endpoints"
	NameLoadSQLSchema         = "load_sql_schema"
	NameExecuteTestQuery      = "execute_test_query"
	NameStoreValidatedStep    = "store_validated_step"
	NameListStoredSteps       = "list_stored_steps"
	NameSynthesizeFinalScript = "synthesize_final_script"
)

// ErrorKind is the stable taxonomy value surfaced back to the model when a
// tool call fails, so the ReAct loop can decide whether to retry rather
// than abort.
type ErrorKind string

const (
	ErrorSQLRejected      ErrorKind = "sql_rejected"
	ErrorValidationFailed ErrorKind = "validation_failed"
	ErrorUnknownTable     ErrorKind = "unknown_table"
	ErrorOversizedResult  ErrorKind = "oversized_result"
	ErrorNotFound         ErrorKind = "not_found"
	ErrorSandbox          ErrorKind = "sandbox_error"
)

// Error is the structured failure type every tool handler returns instead
// of a bare error, carrying the taxonomy value the ReAct Agent feeds back
// to the model as an observation.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func reject(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SQLExecutor is the subset of *sqlschema.Executor the Tool Surface calls,
// narrowed to an interface so tests can substitute a fake instead of
// standing up a Postgres container.
type SQLExecutor interface {
	Execute(ctx context.Context, normalizedSQL string, timeout time.Duration) (*sqlschema.ExecResult, error)
}

// SandboxExecutor is the subset of *sandbox.Executor the Tool Surface
// calls, narrowed for the same reason.
type SandboxExecutor interface {
	Run(ctx context.Context, stepID int, code string, inputs sandbox.RunInputs, timeout time.Duration, maxOutputBytes int64, progressCh chan<- sandbox.ProgressUpdate) (*sandbox.Result, error)
}

// Dependencies bundles everything a Tool Surface invocation needs, built
// once per process by the Process Supervisor and threaded through every
// tool call for that process's lifetime.
type Dependencies struct {
	Catalog        *catalog.Catalog
	SchemaView     *sqlschema.View
	SQLExecutor    SQLExecutor
	Sandbox        SandboxExecutor
	Library        *codelibrary.Library
	PreviewCap     int           // default row cap for execute_test_query (spec: preview_cap, default 3)
	SQLRowCap      int           // absolute ceiling enforced by the SQL Safety Validator (sql_row_cap)
	MaxOutputBytes int64         // max_stored_bytes_per_step, enforced on sandbox stdout
	StepTimeout    time.Duration // default 300s per spec §4.4
}

// Tool is one Tool Surface entry: its model-facing definition plus the
// handler dispatched when the model calls it.
type Tool struct {
	Definition llm.ToolDefinition
	Execute    func(ctx context.Context, deps *Dependencies, argsJSON string, progressCh chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error)
}

// Surface builds the closed, fixed Tool Surface table. Every ReAct Agent
// tool call is validated against exactly these seven names — nothing else
// is ever dispatched.
func Surface() map[string]*Tool {
	table := map[string]*Tool{
		NameLoadReadEndpoints: {
			Definition: llm.ToolDefinition{
				Name:             NameLoadReadEndpoints,
				Description:      "List every READ-only Okta API operation available to this investigation.",
				ParametersSchema: `{"type":"object","properties":{}}`,
			},
			Execute: handleLoadReadEndpoints,
		},
		NameFilterEndpoints: {
			Definition: llm.ToolDefinition{
				Name:             NameFilterEndpoints,
				Description:      "Narrow the endpoint list to a specific set of operation IDs.",
				ParametersSchema: `{"type":"object","properties":{"operation_ids":{"type":"array","items":{"type":"string"}}},"required":["operation_ids"]}`,
			},
			Execute: handleFilterEndpoints,
		},
		NameLoadSQLSchema: {
			Definition: llm.ToolDefinition{
				Name:             NameLoadSQLSchema,
				Description:      "Load the read-only SQL Schema View, optionally filtered to one table.",
				ParametersSchema: `{"type":"object","properties":{"table":{"type":"string"}}}`,
			},
			Execute: handleLoadSQLSchema,
		},
		NameExecuteTestQuery: {
			Definition: llm.ToolDefinition{
				Name:        NameExecuteTestQuery,
				Description: "Run a candidate code artifact (an API-client snippet or a SQL SELECT) against a small preview row cap, to validate a step before storing it.",
				ParametersSchema: `{"type":"object","properties":{` +
					`"code":{"type":"string"},` +
					`"kind":{"type":"string","enum":["API","SQL","API_SQL"]},` +
					`"limit":{"type":"integer"}` +
					`},"required":["code","kind"]}`,
			},
			Execute: handleExecuteTestQuery,
		},
		NameStoreValidatedStep: {
			Definition: llm.ToolDefinition{
				Name:        NameStoreValidatedStep,
				Description: "Persist a validated test query's code, results, and reasoning into the Code Library for use by Final Script Synthesis.",
				ParametersSchema: `{"type":"object","properties":{` +
					`"description":{"type":"string"},` +
					`"code":{"type":"string"},` +
					`"kind":{"type":"string","enum":["API","SQL","API_SQL"]},` +
					`"results":{"type":"object"},` +
					`"reasoning":{"type":"string"}` +
					`},"required":["description","code","kind","results","reasoning"]}`,
			},
			Execute: handleStoreValidatedStep,
		},
		NameListStoredSteps: {
			Definition: llm.ToolDefinition{
				Name:             NameListStoredSteps,
				Description:      "List every Step stored so far in the Code Library.",
				ParametersSchema: `{"type":"object","properties":{}}`,
			},
			Execute: handleListStoredSteps,
		},
		NameSynthesizeFinalScript: {
			Definition: llm.ToolDefinition{
				Name:             NameSynthesizeFinalScript,
				Description:      "Freeze exploration and hand off to Final Script Synthesis. Terminal — ends the ReAct loop.",
				ParametersSchema: `{"type":"object","properties":{"description":{"type":"string"}},"required":["description"]}`,
			},
			Execute: handleSynthesizeFinalScript,
		},
	}
	return table
}

// Definitions extracts the model-facing tool definitions from a Surface
// table, in a stable order, for the prompt builder.
func Definitions(surface map[string]*Tool) []llm.ToolDefinition {
	order := []string{
		NameLoadReadEndpoints, NameFilterEndpoints, NameLoadSQLSchema,
		NameExecuteTestQuery, NameStoreValidatedStep, NameListStoredSteps,
		NameSynthesizeFinalScript,
	}
	defs := make([]llm.ToolDefinition, 0, len(order))
	for _, name := range order {
		if t, ok := surface[name]; ok {
			defs = append(defs, t.Definition)
		}
	}
	return defs
}

// decodeArgs is the shared argument-decoding step every handler starts
// with; a malformed argument payload is a validation_failed tool error,
// not a panic or an aborted loop.
func decodeArgs(argsJSON string, into any) *Error {
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argsJSON), into); err != nil {
		return reject(ErrorValidationFailed, "arguments are not valid JSON: %v", err)
	}
	return nil
}

func marshalResult(v any) (json.RawMessage, *Error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, reject(ErrorValidationFailed, "failed to encode tool result: %v", err)
	}
	return b, nil
}
