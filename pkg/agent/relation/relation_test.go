package relation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/llm"
)

type scriptedGateway struct {
	text string
	err  error
}

func (g *scriptedGateway) Generate(_ context.Context, _ *llm.GenerateInput) (<-chan llm.Chunk, error) {
	if g.err != nil {
		return nil, g.err
	}
	ch := make(chan llm.Chunk, 2)
	ch <- &llm.TextChunk{Content: g.text}
	ch <- &llm.UsageChunk{InputTokens: 30, OutputTokens: 10}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) Close() error { return nil }

func twoSteps() []*codelibrary.Entry {
	return []*codelibrary.Entry{
		{Sequence: 1, Description: "users", ColumnSchema: []codelibrary.ColumnSpec{{Name: "user_id", Type: "text"}}},
		{Sequence: 2, Description: "memberships", ColumnSchema: []codelibrary.ColumnSpec{{Name: "user_id", Type: "text"}, {Name: "group_id", Type: "text"}}},
	}
}

func TestAnalyzeReturnsNilWithFewerThanTwoSteps(t *testing.T) {
	gw := &scriptedGateway{}
	graph, err := Analyze(context.Background(), gw, llm.NewTokenLedger(), "proc-1", twoSteps()[:1], Config{CallTimeout: time.Second})
	require.NoError(t, err)
	assert.Nil(t, graph)
}

func TestAnalyzeParsesJoinKeys(t *testing.T) {
	gw := &scriptedGateway{text: `{"join_keys":[{"left_step":1,"left_column":"user_id","right_step":2,"right_column":"user_id","confidence":0.9}],"notes":"obvious join"}`}
	graph, err := Analyze(context.Background(), gw, llm.NewTokenLedger(), "proc-1", twoSteps(), Config{CallTimeout: time.Second})
	require.NoError(t, err)
	require.Len(t, graph.JoinKeys, 1)
	assert.Equal(t, "user_id", graph.JoinKeys[0].LeftColumn)
	assert.Equal(t, 0.9, graph.JoinKeys[0].Confidence)
}

func TestAnalyzeReturnsErrorOnMalformedResponse(t *testing.T) {
	gw := &scriptedGateway{text: "not json"}
	_, err := Analyze(context.Background(), gw, llm.NewTokenLedger(), "proc-1", twoSteps(), Config{CallTimeout: time.Second})
	assert.Error(t, err)
}

func TestAnalyzeReturnsErrorOnGatewayFailure(t *testing.T) {
	gw := &scriptedGateway{err: assert.AnError}
	_, err := Analyze(context.Background(), gw, llm.NewTokenLedger(), "proc-1", twoSteps(), Config{CallTimeout: time.Second})
	assert.Error(t, err)
}
