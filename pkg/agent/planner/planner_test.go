package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sqlschema"
)

type scriptedGateway struct {
	texts []string
	calls int
}

func (g *scriptedGateway) Generate(_ context.Context, _ *llm.GenerateInput) (<-chan llm.Chunk, error) {
	idx := g.calls
	if idx >= len(g.texts) {
		idx = len(g.texts) - 1
	}
	g.calls++

	ch := make(chan llm.Chunk, 2)
	ch <- &llm.TextChunk{Content: g.texts[idx]}
	ch <- &llm.UsageChunk{InputTokens: 50, OutputTokens: 20}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) Close() error { return nil }

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) events.Event {
	p.events = append(p.events, ev)
	return ev
}

func testConfig() Config {
	return Config{MaxRetries: 3, CallTimeout: 5 * time.Second}
}

func TestRunParsesWellFormedPlan(t *testing.T) {
	gw := &scriptedGateway{texts: []string{
		`{"strategy":"check recent failed logins","steps":[{"tool_kind":"SQL","entity":"okta_users","operation":"select","query_context":"find suspended users","critical":true}]}`,
	}}
	publisher := &recordingPublisher{}

	plan, err := Run(context.Background(), gw, llm.NewTokenLedger(), publisher, "proc-1", "who is suspended?",
		catalog.Builtin().Filter([]catalog.OperationKind{catalog.KindRead}), sqlschema.Builtin().All(), nil, testConfig())

	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "okta_users", plan.Steps[0].Entity)
	assert.True(t, plan.Steps[0].Critical)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.KindPlanStatus, publisher.events[0].Kind)
}

func TestRunToleratesCodeFencedJSON(t *testing.T) {
	gw := &scriptedGateway{texts: []string{
		"```json\n{\"strategy\":\"s\",\"steps\":[]}\n```",
	}}

	plan, err := Run(context.Background(), gw, llm.NewTokenLedger(), nil, "proc-1", "query", nil, nil, nil, testConfig())
	require.NoError(t, err)
	assert.Equal(t, "s", plan.Strategy)
	assert.Empty(t, plan.Steps)
}

func TestRunRetriesOnMalformedJSONThenSucceeds(t *testing.T) {
	gw := &scriptedGateway{texts: []string{
		"not json at all",
		`{"strategy":"retry worked","steps":[]}`,
	}}

	plan, err := Run(context.Background(), gw, llm.NewTokenLedger(), nil, "proc-1", "query", nil, nil, nil, testConfig())
	require.NoError(t, err)
	assert.Equal(t, "retry worked", plan.Strategy)
	assert.Equal(t, 2, gw.calls)
}

func TestRunFailsOpenAfterExhaustingRetries(t *testing.T) {
	gw := &scriptedGateway{texts: []string{"still not json", "still not json", "still not json"}}
	publisher := &recordingPublisher{}
	cfg := testConfig()
	cfg.MaxRetries = 3

	plan, err := Run(context.Background(), gw, llm.NewTokenLedger(), publisher, "proc-1", "query", nil, nil, nil, cfg)

	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, 3, gw.calls)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.KindPlanError, publisher.events[0].Kind)
}

func TestRunRejectsInvalidToolKind(t *testing.T) {
	gw := &scriptedGateway{texts: []string{
		`{"strategy":"s","steps":[{"tool_kind":"HTTP","entity":"x","operation":"y"}]}`,
		`{"strategy":"s","steps":[]}`,
	}}

	plan, err := Run(context.Background(), gw, llm.NewTokenLedger(), nil, "proc-1", "query", nil, nil, nil, testConfig())
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, 2, gw.calls)
}
