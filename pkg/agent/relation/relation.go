// Package relation implements the optional Relation Analysis Agent: a
// pre-pass before Final Script Synthesis that inspects the column schemas
// of Steps already in the Code Library and proposes join keys across them,
// producing a small relationship graph the synthesis prompt can lean on
// instead of re-deriving joins from raw samples.
//
// This pass is advisory. A caller that cannot get a usable Graph — too few
// Steps to relate, a malformed model response, or an LLM failure — should
// proceed to synthesis without one; see pkg/process's phase_update warning
// path for how that degradation is surfaced.
//
// Grounded on pkg/agent/controller/synthesis.go's single-call-no-tools
// shape, reused here for a second, narrower analytical call.
package relation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oktareact/core/pkg/codelibrary"
	"github.com/oktareact/core/pkg/llm"
)

// Config bounds one Relation Analysis call.
type Config struct {
	CallTimeout time.Duration
}

// JoinKey proposes that one stored Step's column can be joined against
// another's.
type JoinKey struct {
	LeftStep     int     `json:"left_step"`
	LeftColumn   string  `json:"left_column"`
	RightStep    int     `json:"right_step"`
	RightColumn  string  `json:"right_column"`
	Confidence   float64 `json:"confidence"`
}

// Graph is the Relation Analysis Agent's output.
type Graph struct {
	JoinKeys []JoinKey `json:"join_keys"`
	Notes    string    `json:"notes"`
}

// Analyze proposes a Graph across steps. With fewer than two steps there is
// nothing to relate, so it returns (nil, nil) without calling the model.
func Analyze(ctx context.Context, gw llm.Gateway, ledger *llm.TokenLedger, processID string, steps []*codelibrary.Entry, cfg Config) (*Graph, error) {
	if len(steps) < 2 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	messages := buildMessages(steps)
	ch, err := gw.Generate(callCtx, &llm.GenerateInput{
		ProcessID: processID,
		Profile:   "reasoning",
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("relation analysis call failed: %w", err)
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
			return nil, fmt.Errorf("%s", c.Message)
		}
	}
	ledger.RecordLLMCall("reasoning", inputTokens, outputTokens)

	graph, err := parseGraph(text)
	if err != nil {
		return nil, fmt.Errorf("relation analysis produced unparseable output: %w", err)
	}
	return graph, nil
}

func buildMessages(steps []*codelibrary.Entry) []llm.ConversationMessage {
	var sb strings.Builder
	sb.WriteString("You analyze the column schemas of previously validated query steps and propose join keys ")
	sb.WriteString("that would let a final script combine them. Respond with ONLY a JSON object of the form:\n")
	sb.WriteString(`{"join_keys":[{"left_step":1,"left_column":"...","right_step":2,"right_column":"...","confidence":0.0}],"notes":"..."}`)
	sb.WriteString("\nAn empty join_keys array is acceptable if no relationship is evident.\n\n## Steps\n")
	for _, s := range steps {
		fmt.Fprintf(&sb, "### Step %d: %s\n", s.Sequence, s.Description)
		for _, col := range s.ColumnSchema {
			fmt.Fprintf(&sb, "- %s (%s)\n", col.Name, col.Type)
		}
	}

	return []llm.ConversationMessage{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleUser, Content: "Propose join keys across the steps above."},
	}
}

func parseGraph(text string) (*Graph, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var graph Graph
	if err := json.Unmarshal([]byte(trimmed), &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}
