package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/agent/formatter"
	"github.com/oktareact/core/pkg/agent/planner"
	"github.com/oktareact/core/pkg/agent/react"
	"github.com/oktareact/core/pkg/agent/relation"
	"github.com/oktareact/core/pkg/agent/synthesis"
	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sandbox"
	"github.com/oktareact/core/pkg/sqlschema"
	"github.com/oktareact/core/pkg/tools"
)

// scriptedGateway returns one canned turn per call, in order, looping the
// last scripted turn if more calls arrive than were scripted.
type scriptedGateway struct {
	turns [][]llm.Chunk
	delay time.Duration
	calls int
}

func (g *scriptedGateway) Generate(ctx context.Context, _ *llm.GenerateInput) (<-chan llm.Chunk, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	idx := g.calls
	if idx >= len(g.turns) {
		idx = len(g.turns) - 1
	}
	g.calls++

	ch := make(chan llm.Chunk, len(g.turns[idx]))
	for _, c := range g.turns[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) Close() error { return nil }

type fakeSandbox struct {
	resultJSON []byte
}

func (f fakeSandbox) Run(context.Context, int, string, sandbox.RunInputs, time.Duration, int64, chan<- sandbox.ProgressUpdate) (*sandbox.Result, error) {
	j := f.resultJSON
	if j == nil {
		j = []byte(`{}`)
	}
	return &sandbox.Result{ResultJSON: j}, nil
}

func testDeps(gw llm.Gateway) Dependencies {
	return Dependencies{
		Gateway:    gw,
		EntClient:  nil,
		Catalog:    catalog.Builtin(),
		SchemaView: sqlschema.Builtin(),
		Sandbox:    fakeSandbox{},
	}
}

func testConfig() Config {
	return Config{
		MaxWall:          5 * time.Second,
		CancelGrace:      time.Second,
		EventBusCapacity: 64,
		PreviewCap:       3,
		SQLRowCap:        1000,
		MaxOutputBytes:   64 * 1024,
		StepTimeout:      2 * time.Second,
		Planner:          planner.Config{MaxRetries: 1, CallTimeout: 2 * time.Second},
		React:            react.Config{MaxTurns: 3, MaxWall: 2 * time.Second, TurnTimeout: 2 * time.Second, MaxConsecutiveFailures: 3},
		Relation:         relation.Config{CallTimeout: 2 * time.Second},
		Synthesis:        synthesis.Config{CallTimeout: 2 * time.Second, ExecuteTimeout: 2 * time.Second, MaxOutputBytes: 64 * 1024},
		Formatter:        formatter.Config{MaxRowsInline: 50, CallTimeout: 2 * time.Second},
	}
}

func awaitTerminal(t *testing.T, s *Supervisor, processID string) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := s.Status(processID)
		require.True(t, ok)
		if snap.Status == StatusCompleted || snap.Status == StatusFailed || snap.Status == StatusCancelled {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("process did not reach a terminal status in time")
	return nil
}

func TestStartRunsToCompletion(t *testing.T) {
	gw := &scriptedGateway{turns: [][]llm.Chunk{
		{&llm.TextChunk{Content: `{"strategy":"s","steps":[]}`}, &llm.UsageChunk{InputTokens: 10, OutputTokens: 5}},
		{&llm.ToolCallChunk{CallID: "1", Name: tools.NameSynthesizeFinalScript, Arguments: `{"description":"done"}`}},
		{&llm.TextChunk{Content: "result = 1"}, &llm.UsageChunk{InputTokens: 10, OutputTokens: 5}},
	}}

	s := New(testDeps(gw), testConfig())
	processID, err := s.Start(context.Background(), "how many users are there?", synthesis.ModeEmitOnly)
	require.NoError(t, err)

	snap := awaitTerminal(t, s, processID)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestStartExecuteModeFormatsResults(t *testing.T) {
	gw := &scriptedGateway{turns: [][]llm.Chunk{
		{&llm.TextChunk{Content: `{"strategy":"s","steps":[]}`}, &llm.UsageChunk{InputTokens: 10, OutputTokens: 5}},
		{&llm.ToolCallChunk{CallID: "1", Name: tools.NameSynthesizeFinalScript, Arguments: `{"description":"done"}`}},
		{&llm.TextChunk{Content: "result = users"}, &llm.UsageChunk{InputTokens: 10, OutputTokens: 5}},
		{&llm.TextChunk{Content: "## Summary\nTwo users found."}, &llm.UsageChunk{InputTokens: 10, OutputTokens: 5}},
	}}

	deps := testDeps(gw)
	deps.Sandbox = fakeSandbox{resultJSON: []byte(`[{"user_id":"1"},{"user_id":"2"}]`)}

	s := New(deps, testConfig())
	processID, err := s.Start(context.Background(), "how many users are there?", synthesis.ModeExecute)
	require.NoError(t, err)

	snap := awaitTerminal(t, s, processID)
	assert.Equal(t, StatusCompleted, snap.Status)

	bus, _, ok := s.Stream(processID)
	require.True(t, ok)
	var sawFinalResult bool
	for _, ev := range bus.Snapshot(0) {
		if ev.Kind == events.KindFinalResult {
			sawFinalResult = true
			assert.Contains(t, string(ev.Payload), "user_id")
			assert.Contains(t, string(ev.Payload), `"display_type":"table"`)
		}
	}
	assert.True(t, sawFinalResult)
}

func TestCancelTerminatesProcess(t *testing.T) {
	gw := &scriptedGateway{
		delay: 150 * time.Millisecond,
		turns: [][]llm.Chunk{
			{&llm.TextChunk{Content: `{"strategy":"s","steps":[]}`}},
		},
	}

	s := New(testDeps(gw), testConfig())
	processID, err := s.Start(context.Background(), "how many users are there?", synthesis.ModeEmitOnly)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.True(t, s.Cancel(processID))

	snap := awaitTerminal(t, s, processID)
	assert.Equal(t, StatusCancelled, snap.Status)
}

func TestCancelIsIdempotent(t *testing.T) {
	gw := &scriptedGateway{turns: [][]llm.Chunk{
		{&llm.TextChunk{Content: `{"strategy":"s","steps":[]}`}},
	}}
	s := New(testDeps(gw), testConfig())
	processID, err := s.Start(context.Background(), "query", synthesis.ModeEmitOnly)
	require.NoError(t, err)

	assert.True(t, s.Cancel(processID))
	assert.True(t, s.Cancel(processID))
}

func TestStatusUnknownProcessReturnsFalse(t *testing.T) {
	s := New(testDeps(&scriptedGateway{}), testConfig())
	_, ok := s.Status("does-not-exist")
	assert.False(t, ok)
}

func TestStreamUnknownProcessReturnsFalse(t *testing.T) {
	s := New(testDeps(&scriptedGateway{}), testConfig())
	_, _, ok := s.Stream("does-not-exist")
	assert.False(t, ok)
}

func TestCancelUnknownProcessReturnsFalse(t *testing.T) {
	s := New(testDeps(&scriptedGateway{}), testConfig())
	assert.False(t, s.Cancel("does-not-exist"))
}
