package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
)

type fakeSQLExecutor struct {
	result *sqlschema.ExecResult
	err    error
}

func (f *fakeSQLExecutor) Execute(context.Context, string, time.Duration) (*sqlschema.ExecResult, error) {
	return f.result, f.err
}

type fakeSandboxExecutor struct {
	result *sandbox.Result
	err    error
}

func (f *fakeSandboxExecutor) Run(context.Context, int, string, sandbox.RunInputs, time.Duration, int64, chan<- sandbox.ProgressUpdate) (*sandbox.Result, error) {
	return f.result, f.err
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Operation{
		{ID: "users.list", Method: "GET", Kind: catalog.KindRead, Summary: "List users"},
		{ID: "users.deactivate", Method: "POST", Kind: catalog.KindWrite, Summary: "Deactivate a user"},
	})
}

func testDeps() *Dependencies {
	return &Dependencies{
		Catalog:        testCatalog(),
		SchemaView:     sqlschema.Builtin(),
		Library:        codelibrary.New("proc-1", nil, 3, 64*1024),
		PreviewCap:     3,
		SQLRowCap:      1000,
		MaxOutputBytes: 64 * 1024,
		StepTimeout:    5 * time.Second,
	}
}

func TestSurfaceContainsAllSevenTools(t *testing.T) {
	surface := Surface()
	assert.Len(t, surface, 7)
	for _, name := range []string{
		NameLoadReadEndpoints, NameFilterEndpoints, NameLoadSQLSchema,
		NameExecuteTestQuery, NameStoreValidatedStep, NameListStoredSteps,
		NameSynthesizeFinalScript,
	} {
		assert.Contains(t, surface, name)
	}
}

func TestDefinitionsPreservesStableOrder(t *testing.T) {
	defs := Definitions(Surface())
	require.Len(t, defs, 7)
	assert.Equal(t, NameLoadReadEndpoints, defs[0].Name)
	assert.Equal(t, NameSynthesizeFinalScript, defs[6].Name)
}

func TestLoadReadEndpointsOnlyReturnsReadKind(t *testing.T) {
	surface := Surface()
	raw, err := surface[NameLoadReadEndpoints].Execute(context.Background(), testDeps(), "", nil)
	require.Nil(t, err)

	var decoded struct {
		Endpoints []endpointSummary `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Endpoints, 1)
	assert.Equal(t, "users.list", decoded.Endpoints[0].ID)
}

func TestFilterEndpointsRejectsEmptyIDs(t *testing.T) {
	surface := Surface()
	_, err := surface[NameFilterEndpoints].Execute(context.Background(), testDeps(), `{"operation_ids":[]}`, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorValidationFailed, err.Kind)
}

func TestLoadSQLSchemaRejectsUnknownTable(t *testing.T) {
	surface := Surface()
	_, err := surface[NameLoadSQLSchema].Execute(context.Background(), testDeps(), `{"table":"not_a_table"}`, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorUnknownTable, err.Kind)
}

func TestLoadSQLSchemaReturnsAllTablesWhenUnfiltered(t *testing.T) {
	surface := Surface()
	raw, err := surface[NameLoadSQLSchema].Execute(context.Background(), testDeps(), "{}", nil)
	require.Nil(t, err)
	var decoded struct {
		Tables []sqlView `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Tables, len(sqlschema.Builtin().All()))
}

func TestExecuteTestQuerySQLPathRejectsInvalidSQL(t *testing.T) {
	deps := testDeps()
	deps.SQLExecutor = &fakeSQLExecutor{}
	surface := Surface()

	_, err := surface[NameExecuteTestQuery].Execute(context.Background(), deps,
		`{"code":"DELETE FROM okta_users","kind":"SQL"}`, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorSQLRejected, err.Kind)
}

func TestExecuteTestQuerySQLPathSplitsPreviewFromFullResults(t *testing.T) {
	deps := testDeps()
	deps.SQLExecutor = &fakeSQLExecutor{result: &sqlschema.ExecResult{
		Columns:     []sqlschema.Column{{Name: "user_id", Type: "text"}},
		Rows:        []sqlschema.Row{{"user_id": "1"}, {"user_id": "2"}},
		RowCount:    2,
		ExecutionMS: 12,
	}}
	surface := Surface()

	raw, err := surface[NameExecuteTestQuery].Execute(context.Background(), deps,
		`{"code":"SELECT user_id FROM okta_users","kind":"SQL","limit":2}`, nil)
	require.Nil(t, err)

	var decoded executeTestQueryResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Success)
	assert.Len(t, decoded.SamplePreview, 1)
	assert.Len(t, decoded.FullResultsForStorage, 2)
	assert.Equal(t, 2, decoded.RecordCount)
}

func TestExecuteTestQuerySandboxPathSurfacesStructuredFailure(t *testing.T) {
	deps := testDeps()
	deps.Sandbox = &fakeSandboxExecutor{err: &sandbox.ExecError{Kind: sandbox.FailureRateLimited, Reason: "too many requests", WaitSeconds: 5}}
	surface := Surface()

	_, err := surface[NameExecuteTestQuery].Execute(context.Background(), deps,
		`{"code":"result = client.call('users.list', {})","kind":"API"}`, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorKind(sandbox.FailureRateLimited), err.Kind)
}

func TestExecuteTestQueryRejectsUnknownKind(t *testing.T) {
	surface := Surface()
	_, err := surface[NameExecuteTestQuery].Execute(context.Background(), testDeps(),
		`{"code":"x","kind":"BOGUS"}`, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorValidationFailed, err.Kind)
}

func TestStoreValidatedStepThenListStoredSteps(t *testing.T) {
	deps := testDeps()
	surface := Surface()

	storeArgs := `{"description":"users by dept","code":"SELECT 1","kind":"SQL","reasoning":"baseline",` +
		`"results":{"full_results_for_storage":[{"a":1}],"column_schema":[{"name":"a","type":"int"}],"record_count":1,"execution_ms":5}}`
	raw, err := surface[NameStoreValidatedStep].Execute(context.Background(), deps, storeArgs, nil)
	require.Nil(t, err)

	var stored struct {
		Success    bool `json:"success"`
		StepID     int  `json:"step_id"`
		TotalSteps int  `json:"total_steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, 1, stored.StepID)
	assert.Equal(t, 1, stored.TotalSteps)

	raw, err = surface[NameListStoredSteps].Execute(context.Background(), deps, "", nil)
	require.Nil(t, err)
	var listed struct {
		Steps []storedStepSummary `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed.Steps, 1)
	assert.Equal(t, "users by dept", listed.Steps[0].Description)
}

func TestSynthesizeFinalScriptRequiresDescription(t *testing.T) {
	surface := Surface()
	_, err := surface[NameSynthesizeFinalScript].Execute(context.Background(), testDeps(), "{}", nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrorValidationFailed, err.Kind)
}
