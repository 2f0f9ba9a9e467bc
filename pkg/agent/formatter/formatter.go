// Package formatter implements the Results Formatter Agent: the final
// transform from a raw result set into a display payload the API layer
// hands back to the caller, either a tabular grid or a markdown narrative.
//
// Tabular formatting is deterministic and needs no model call — it is a
// pure data reshape, grounded on the teacher's pattern of keeping anything
// that does not need a model's judgment out of the LLM call path (see
// pkg/agent/controller/synthesis.go's buildMessages, which only ever feeds
// the model what it must reason about). Markdown narrative formatting, by
// contrast, is adapted from controller/synthesis.go's single-call shape,
// since turning a result set into prose genuinely needs the model.
package formatter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oktareact/core/pkg/llm"
)

// Config bounds formatting behavior.
type Config struct {
	MaxRowsInline int // rows kept inline before stratified sampling kicks in
	CallTimeout   time.Duration
}

// TabularPayload is the table display shape: headers, rows in the same
// column order as headers, and the true row count (which may exceed
// len(Rows) when Sampled is true).
type TabularPayload struct {
	Headers []string         `json:"headers"`
	Rows    [][]any          `json:"rows"`
	Total   int              `json:"total"`
	Sampled bool             `json:"sampled"`
	Summary map[string]int   `json:"column_non_null_counts,omitempty"`
}

// FormatTabular reshapes rows into a TabularPayload, applying stratified
// sampling (evenly spaced indices across the full set, always including
// the first and last row) when the set exceeds cfg.MaxRowsInline.
func FormatTabular(rows []map[string]any, cfg Config) *TabularPayload {
	headers := collectHeaders(rows)
	total := len(rows)

	maxRows := cfg.MaxRowsInline
	if maxRows <= 0 {
		maxRows = total
	}

	selected := rows
	sampled := false
	if total > maxRows {
		selected = stratifiedSample(rows, maxRows)
		sampled = true
	}

	out := make([][]any, len(selected))
	for i, row := range selected {
		cells := make([]any, len(headers))
		for j, h := range headers {
			cells[j] = row[h]
		}
		out[i] = cells
	}

	return &TabularPayload{
		Headers: headers,
		Rows:    out,
		Total:   total,
		Sampled: sampled,
		Summary: nonNullCounts(rows, headers),
	}
}

// collectHeaders gathers the union of keys across rows in stable
// alphabetical order, since arbitrary map iteration order is not a
// presentable column order.
func collectHeaders(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

// stratifiedSample picks n evenly spaced rows from rows, always including
// the first and last, so a truncated view still reflects the full range
// rather than only its head.
func stratifiedSample(rows []map[string]any, n int) []map[string]any {
	if n <= 0 || len(rows) == 0 {
		return nil
	}
	if n >= len(rows) {
		return rows
	}
	if n == 1 {
		return rows[:1]
	}

	out := make([]map[string]any, 0, n)
	step := float64(len(rows)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		out = append(out, rows[idx])
	}
	return out
}

func nonNullCounts(rows []map[string]any, headers []string) map[string]int {
	counts := make(map[string]int, len(headers))
	for _, row := range rows {
		for _, h := range headers {
			if v, ok := row[h]; ok && v != nil {
				counts[h]++
			}
		}
	}
	return counts
}

// NarrativePayload is the markdown display shape.
type NarrativePayload struct {
	Markdown string `json:"markdown"`
	Sampled  bool   `json:"sampled"`
}

// FormatNarrative asks the reasoning-profile Chat Model Gateway to turn a
// (possibly stratified-sampled) result set into a short markdown narrative
// answering userQuery.
func FormatNarrative(ctx context.Context, gw llm.Gateway, ledger *llm.TokenLedger, processID, userQuery string, rows []map[string]any, cfg Config) (*NarrativePayload, error) {
	table := FormatTabular(rows, cfg)

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	ch, err := gw.Generate(callCtx, &llm.GenerateInput{
		ProcessID: processID,
		Profile:   "reasoning",
		Messages: []llm.ConversationMessage{
			{Role: llm.RoleSystem, Content: "Summarize the following result set as a short markdown narrative answering the user's question. Respond with ONLY markdown, no preamble."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\n%s", userQuery, renderTable(table))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("narrative formatting call failed: %w", err)
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

	return &NarrativePayload{Markdown: strings.TrimSpace(text), Sampled: table.Sampled}, nil
}

// DataSources classifies which underlying systems a set of stored step
// kinds drew from, for the final_result payload's data_sources field.
// Order is stable: database before api.
func DataSources(kinds []string) []string {
	var db, api bool
	for _, k := range kinds {
		switch k {
		case "SQL":
			db = true
		case "API":
			api = true
		case "API_SQL":
			db = true
			api = true
		}
	}
	var out []string
	if db {
		out = append(out, "database")
	}
	if api {
		out = append(out, "api")
	}
	return out
}

// DisplayType picks the display hint carried alongside a final_result
// payload: "table" when a tabular grid was produced, "narrative" when only
// prose was, "none" when the process produced neither.
func DisplayType(table *TabularPayload, narrative *NarrativePayload) string {
	switch {
	case table != nil:
		return "table"
	case narrative != nil:
		return "narrative"
	default:
		return "none"
	}
}

func renderTable(t *TabularPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "| %s |\n", strings.Join(t.Headers, " | "))
	fmt.Fprintf(&sb, "|%s|\n", strings.Repeat("---|", len(t.Headers)))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = fmt.Sprintf("%v", c)
		}
		fmt.Fprintf(&sb, "| %s |\n", strings.Join(cells, " | "))
	}
	if t.Sampled {
		fmt.Fprintf(&sb, "\n(%d of %d total rows shown, stratified sample)\n", len(t.Rows), t.Total)
	}
	return sb.String()
}
