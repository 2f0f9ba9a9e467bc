package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/ratelimit"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in test environment")
	}
}

func newTestExecutor(t *testing.T) (*Executor, *Proxy) {
	t.Helper()

	cat := catalog.Builtin()
	gov := ratelimit.NewGovernor(100, 5)
	okta := func(ctx context.Context, op catalog.Operation, params map[string]any) (json.RawMessage, error) {
		return json.Marshal(map[string]any{"operation": op.ID, "echo": params})
	}

	proxy, err := NewProxy(cat, gov, okta, nil, 1000, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { proxy.Close() })

	scratch := t.TempDir()
	sbExec, err := NewExecutor(DefaultConfig(scratch), proxy)
	require.NoError(t, err)

	return sbExec, proxy
}

func TestSandboxRunProducesResult(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	res, err := sbExec.Run(context.Background(), 1,
		"result = {\"value\": limit * 2}",
		RunInputs{Limit: 21},
		5*time.Second, 1<<20, nil)
	require.NoError(t, err)

	var parsed map[string]int
	require.NoError(t, json.Unmarshal(res.ResultJSON, &parsed))
	assert.Equal(t, 42, parsed["value"])
}

func TestSandboxRunCallsOktaThroughProxy(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	code := `
r = client.call("users.list", q="alice")
result = r
`
	res, err := sbExec.Run(context.Background(), 1, code, RunInputs{Limit: 10}, 5*time.Second, 1<<20, nil)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(res.ResultJSON, &parsed))
	assert.Equal(t, "users.list", parsed["operation"])
}

func TestSandboxRunEmitsProgress(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	progressCh := make(chan ProgressUpdate, 8)
	code := `
progress(50, "halfway")
result = {"done": True}
`
	_, err := sbExec.Run(context.Background(), 1, code, RunInputs{}, 5*time.Second, 1<<20, progressCh)
	require.NoError(t, err)

	select {
	case p := <-progressCh:
		assert.Equal(t, 50, p.Percent)
		assert.Equal(t, "halfway", p.Message)
	default:
		t.Fatal("expected a progress update")
	}
}

func TestSandboxRunTimesOut(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	code := `
import time
time.sleep(5)
result = {}
`
	_, err := sbExec.Run(context.Background(), 1, code, RunInputs{}, 200*time.Millisecond, 1<<20, nil)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, FailureTimeout, execErr.Kind)
}

func TestSandboxRunRejectsRuntimeError(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	_, err := sbExec.Run(context.Background(), 1, "raise ValueError(\"boom\")", RunInputs{}, 5*time.Second, 1<<20, nil)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, FailureRuntimeError, execErr.Kind)
}

func TestSandboxRunDetectsOversizedOutput(t *testing.T) {
	requirePython(t)
	sbExec, _ := newTestExecutor(t)

	code := `
print("x" * 5000)
result = {}
`
	_, err := sbExec.Run(context.Background(), 1, code, RunInputs{}, 5*time.Second, 100, nil)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, FailureOversizedOutput, execErr.Kind)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
