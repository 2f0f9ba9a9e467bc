package sqlschema

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"
)

// Row is one row of a query result, keyed by column name.
type Row map[string]any

// ExecResult is the outcome of a successful safe-executed query.
type ExecResult struct {
	Columns     []Column
	Rows        []Row
	RowCount    int
	ExecutionMS int64
	Warnings    []string
}

// Failure kinds mirror the Sandbox Executor's structured failure taxonomy
// so the ReAct loop can treat SQL and API_SQL steps uniformly.
const (
	FailureTimeout         = "timeout"
	FailureRuntimeError    = "runtime_error"
	FailureValidationError = "validation_failed"
)

// ExecError carries a stable failure kind alongside the human-readable
// reason.
type ExecError struct {
	Kind   string
	Reason string
}

func (e *ExecError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Reason) }

// Executor runs pre-validated SELECT statements against the Okta-tenant
// mirror with a wall-clock deadline, returning rows and inferred column
// types the way the Sandbox Executor returns a step's sample_rows.
type Executor struct {
	db *stdsql.DB
}

// NewExecutor wraps a *sql.DB for safe, read-only execution.
func NewExecutor(db *stdsql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs normalizedSQL (already passed through sqlvalidator.Validate)
// with the given timeout and returns every row the statement yields, eagerly
// materialized; the row count is bounded only by the LIMIT the validator
// put into normalizedSQL.
func (e *Executor) Execute(ctx context.Context, normalizedSQL string, timeout time.Duration) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	// Guarantee read-only execution even if validation was bypassed
	// upstream by running inside a read-only transaction.
	tx, err := e.db.BeginTx(ctx, &stdsql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, normalizedSQL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ExecError{Kind: FailureTimeout, Reason: "query exceeded step_execution_timeout_s"}
		}
		return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
	}

	columns := make([]Column, len(colNames))
	for i, name := range colNames {
		columns[i] = Column{Name: name, Type: colTypes[i].DatabaseTypeName()}
	}

	var result []Row
	for rows.Next() {
		if ctx.Err() != nil {
			return nil, &ExecError{Kind: FailureTimeout, Reason: "query exceeded step_execution_timeout_s"}
		}
		scanTargets := make([]any, len(colNames))
		scanValues := make([]any, len(colNames))
		for i := range scanTargets {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
		}
		row := make(Row, len(colNames))
		for i, name := range colNames {
			row[name] = normalizeValue(scanValues[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Kind: FailureRuntimeError, Reason: err.Error()}
	}

	return &ExecResult{
		Columns:     columns,
		Rows:        result,
		RowCount:    len(result),
		ExecutionMS: time.Since(start).Milliseconds(),
	}, nil
}

// normalizeValue converts driver-specific byte slices into strings so
// sample_rows round-trips cleanly through JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
