package tools

import (
	"context"
	"encoding/json"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
	"github.com/oktareact/core/pkg/sqlvalidator"
)

// endpointSummary is the Planner/ReAct-facing view of one catalog
// operation — enough to decide whether it applies, not the full schema.
type endpointSummary struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Entity     string `json:"entity"`
	Summary    string `json:"summary"`
	Parameters string `json:"parameters"`
}

func toSummaries(ops []catalog.Operation) []endpointSummary {
	out := make([]endpointSummary, len(ops))
	for i, op := range ops {
		out[i] = endpointSummary{
			ID: op.ID, Method: op.Method, Path: op.Path,
			Entity: op.Entity, Summary: op.Summary, Parameters: op.Parameters,
		}
	}
	return out
}

func handleLoadReadEndpoints(_ context.Context, deps *Dependencies, _ string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	ops := deps.Catalog.Filter([]catalog.OperationKind{catalog.KindRead})
	return marshalResult(struct {
		Endpoints []endpointSummary `json:"endpoints"`
	}{Endpoints: toSummaries(ops)})
}

type filterEndpointsArgs struct {
	OperationIDs []string `json:"operation_ids"`
}

func handleFilterEndpoints(_ context.Context, deps *Dependencies, argsJSON string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	var args filterEndpointsArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if len(args.OperationIDs) == 0 {
		return nil, reject(ErrorValidationFailed, "operation_ids must be non-empty")
	}
	ops := deps.Catalog.Select(args.OperationIDs)
	return marshalResult(struct {
		Endpoints []endpointSummary `json:"endpoints"`
	}{Endpoints: toSummaries(ops)})
}

type loadSQLSchemaArgs struct {
	Table string `json:"table"`
}

func handleLoadSQLSchema(_ context.Context, deps *Dependencies, argsJSON string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	var args loadSQLSchemaArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Table == "" {
		return marshalResult(struct {
			Tables []sqlView `json:"tables"`
		}{Tables: toSQLView(deps.SchemaView.All())})
	}
	table, ok := deps.SchemaView.Get(args.Table)
	if !ok {
		return nil, reject(ErrorUnknownTable, "table %q is not part of the SQL Schema View", args.Table)
	}
	return marshalResult(struct {
		Tables []sqlView `json:"tables"`
	}{Tables: toSQLView([]sqlschema.Table{table})})
}

// sqlView mirrors sqlschema.Table/Column's JSON shape for the model.
type sqlView struct {
	Name    string          `json:"name"`
	Summary string          `json:"summary"`
	Columns []sqlViewColumn `json:"columns"`
}

type sqlViewColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary,omitempty"`
}

func toSQLView(tables []sqlschema.Table) []sqlView {
	out := make([]sqlView, len(tables))
	for i, t := range tables {
		columns := make([]sqlViewColumn, len(t.Columns))
		for j, c := range t.Columns {
			columns[j] = sqlViewColumn{Name: c.Name, Type: c.Type, Summary: c.Summary}
		}
		out[i] = sqlView{Name: t.Name, Summary: t.Summary, Columns: columns}
	}
	return out
}

type executeTestQueryArgs struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}

type executeTestQueryResult struct {
	Success               bool                     `json:"success"`
	SamplePreview         []map[string]any         `json:"sample_preview"`
	ColumnSchema          []codelibrary.ColumnSpec `json:"column_schema"`
	FullResultsForStorage []map[string]any         `json:"full_results_for_storage"`
	ExecutionMS           int64                    `json:"execution_ms"`
	RecordCount           int                      `json:"record_count"`
}

func handleExecuteTestQuery(ctx context.Context, deps *Dependencies, argsJSON string, progressCh chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	var args executeTestQueryArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Code == "" {
		return nil, reject(ErrorValidationFailed, "code must not be empty")
	}

	limit := args.Limit
	if limit <= 0 || limit > deps.PreviewCap {
		limit = deps.PreviewCap
	}

	switch args.Kind {
	case "SQL":
		return executeSQLPath(ctx, deps, args.Code, limit)
	case "API", "API_SQL":
		return executeSandboxPath(ctx, deps, args.Code, limit, progressCh)
	default:
		return nil, reject(ErrorValidationFailed, "kind must be one of API, SQL, API_SQL, got %q", args.Kind)
	}
}

func executeSQLPath(ctx context.Context, deps *Dependencies, sql string, limit int) (json.RawMessage, *Error) {
	rowCap := limit
	if deps.SQLRowCap > 0 && rowCap > deps.SQLRowCap {
		rowCap = deps.SQLRowCap
	}

	validated, verr := sqlvalidator.Validate(sql, rowCap)
	if verr != nil {
		return nil, reject(ErrorSQLRejected, "%v", verr)
	}

	execResult, err := deps.SQLExecutor.Execute(ctx, validated.NormalizedSQL, deps.StepTimeout)
	if err != nil {
		return nil, reject(ErrorSandbox, "SQL execution failed: %v", err)
	}

	columnSchema := make([]codelibrary.ColumnSpec, len(execResult.Columns))
	for i, c := range execResult.Columns {
		columnSchema[i] = codelibrary.ColumnSpec{Name: c.Name, Type: c.Type}
	}

	rows := make([]map[string]any, len(execResult.Rows))
	for i, r := range execResult.Rows {
		rows[i] = map[string]any(r)
	}

	return marshalResult(buildEnvelope(rows, columnSchema, execResult.RowCount, execResult.ExecutionMS))
}

func executeSandboxPath(ctx context.Context, deps *Dependencies, code string, limit int, progressCh chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	priorSteps := make(map[int]json.RawMessage)
	for _, e := range deps.Library.All() {
		raw, err := json.Marshal(e.SampleRows)
		if err != nil {
			continue
		}
		priorSteps[e.Sequence] = raw
	}

	stepID := deps.Library.Len() + 1
	result, err := deps.Sandbox.Run(ctx, stepID, code, sandbox.RunInputs{
		Limit:      limit,
		PriorSteps: priorSteps,
	}, deps.StepTimeout, deps.MaxOutputBytes, progressCh)
	if err != nil {
		if se, ok := err.(*sandbox.ExecError); ok {
			return nil, reject(ErrorKind(se.Kind), "%s", se.Reason)
		}
		return nil, reject(ErrorSandbox, "%v", err)
	}

	rows, recordCount, perr := inferRows(result.ResultJSON)
	if perr != nil {
		return nil, perr
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return marshalResult(buildEnvelope(rows, inferColumns(rows), recordCount, result.ExecutionMS))
}

func buildEnvelope(rows []map[string]any, columns []codelibrary.ColumnSpec, recordCount int, executionMS int64) executeTestQueryResult {
	var preview []map[string]any
	if len(rows) > 0 {
		preview = rows[:1]
	}
	return executeTestQueryResult{
		Success:               true,
		SamplePreview:         preview,
		ColumnSchema:          columns,
		FullResultsForStorage: rows,
		ExecutionMS:           executionMS,
		RecordCount:           recordCount,
	}
}

// inferRows normalizes a Sandbox artifact's `result` variable (which may be
// a list of row objects, a single object, or a bare scalar) into the
// dataframe-like row shape the rest of the Tool Surface speaks.
func inferRows(raw json.RawMessage) ([]map[string]any, int, *Error) {
	var asList []map[string]any
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList, len(asList), nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return []map[string]any{asObject}, 1, nil
	}

	var asScalar any
	if err := json.Unmarshal(raw, &asScalar); err != nil {
		return nil, 0, reject(ErrorValidationFailed, "result variable was not valid JSON: %v", err)
	}
	return []map[string]any{{"value": asScalar}}, 1, nil
}

func inferColumns(rows []map[string]any) []codelibrary.ColumnSpec {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]codelibrary.ColumnSpec, 0, len(rows[0]))
	for name := range rows[0] {
		columns = append(columns, codelibrary.ColumnSpec{Name: name, Type: "unknown"})
	}
	return columns
}

type storeValidatedStepArgs struct {
	Description string `json:"description"`
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Results     struct {
		FullResultsForStorage []map[string]any         `json:"full_results_for_storage"`
		ColumnSchema          []codelibrary.ColumnSpec `json:"column_schema"`
		RecordCount           int                      `json:"record_count"`
		ExecutionMS           int64                    `json:"execution_ms"`
	} `json:"results"`
	Reasoning string `json:"reasoning"`
}

func handleStoreValidatedStep(ctx context.Context, deps *Dependencies, argsJSON string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	var args storeValidatedStepArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Description == "" || args.Code == "" || args.Reasoning == "" {
		return nil, reject(ErrorValidationFailed, "description, code, and reasoning are all required")
	}

	entry, err := deps.Library.Store(ctx, args.Kind, args.Code,
		args.Results.FullResultsForStorage, args.Results.ColumnSchema,
		args.Results.RecordCount, args.Results.ExecutionMS,
		args.Description, args.Reasoning)
	if err != nil {
		return nil, reject(ErrorOversizedResult, "%v", err)
	}

	return marshalResult(struct {
		Success    bool `json:"success"`
		StepID     int  `json:"step_id"`
		TotalSteps int  `json:"total_steps"`
	}{Success: true, StepID: entry.Sequence, TotalSteps: deps.Library.Len()})
}

type storedStepSummary struct {
	StepID       int                      `json:"step_id"`
	Description  string                   `json:"description"`
	ColumnSchema []codelibrary.ColumnSpec `json:"column_schema"`
	RecordCount  int                      `json:"record_count"`
}

func handleListStoredSteps(_ context.Context, deps *Dependencies, _ string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	entries := deps.Library.All()
	out := make([]storedStepSummary, len(entries))
	for i, e := range entries {
		out[i] = storedStepSummary{
			StepID: e.Sequence, Description: e.Description,
			ColumnSchema: e.ColumnSchema, RecordCount: e.RecordCountObserved,
		}
	}
	return marshalResult(struct {
		Steps []storedStepSummary `json:"steps"`
	}{Steps: out})
}

type synthesizeFinalScriptArgs struct {
	Description string `json:"description"`
}

// handleSynthesizeFinalScript only validates and echoes back — the ReAct
// Agent intercepts this tool name before dispatch and ends the loop; by
// the time this handler would run (e.g. from a direct Tool Surface test)
// there is no further work for it to do beyond confirming the call shape.
func handleSynthesizeFinalScript(_ context.Context, _ *Dependencies, argsJSON string, _ chan<- sandbox.ProgressUpdate) (json.RawMessage, *Error) {
	var args synthesizeFinalScriptArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Description == "" {
		return nil, reject(ErrorValidationFailed, "description is required")
	}
	return marshalResult(struct {
		Success            bool   `json:"success"`
		FinalScriptPayload string `json:"final_script_payload"`
	}{Success: true, FinalScriptPayload: args.Description})
}
