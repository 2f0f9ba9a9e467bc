package llm

import "sync"

// ProfileTotals accumulates token usage for one profile (reasoning or
// coding) across every call made within a process.
type ProfileTotals struct {
	InputTokens  int
	OutputTokens int
	CallCount    int
}

// TokenLedger is the per-process token accounting aggregate the Process
// Supervisor owns alongside the Event Bus and Code Library (spec §2). It
// lives in memory only: it is not persisted as its own row, and no code in
// this module writes LLMInteraction rows, so the totals are not available
// once the Supervisor's in-memory state for the process is gone.
type TokenLedger struct {
	mu       sync.Mutex
	profiles map[string]*ProfileTotals
	tools    map[string]*ProfileTotals
}

// NewTokenLedger returns an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		profiles: make(map[string]*ProfileTotals),
		tools:    make(map[string]*ProfileTotals),
	}
}

// RecordLLMCall adds one Chat Model Gateway call's usage to the given
// profile's running total.
func (l *TokenLedger) RecordLLMCall(profile string, input, output int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.profiles[profile]
	if t == nil {
		t = &ProfileTotals{}
		l.profiles[profile] = t
	}
	t.InputTokens += input
	t.OutputTokens += output
	t.CallCount++
}

// RecordToolCall adds one Tool Surface call's attributed token cost (when a
// tool itself triggers an LLM call) to the named tool's running total.
// Relation Analysis is not a tool and records through RecordLLMCall.
func (l *TokenLedger) RecordToolCall(tool string, input, output int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.tools[tool]
	if t == nil {
		t = &ProfileTotals{}
		l.tools[tool] = t
	}
	t.InputTokens += input
	t.OutputTokens += output
	t.CallCount++
}

// Snapshot returns a point-in-time copy of the per-profile and per-tool
// totals, safe to serialize into a status response.
func (l *TokenLedger) Snapshot() (profiles, tools map[string]ProfileTotals) {
	l.mu.Lock()
	defer l.mu.Unlock()
	profiles = make(map[string]ProfileTotals, len(l.profiles))
	for k, v := range l.profiles {
		profiles[k] = *v
	}
	tools = make(map[string]ProfileTotals, len(l.tools))
	for k, v := range l.tools {
		tools[k] = *v
	}
	return profiles, tools
}

// Total returns the sum of input and output tokens across every profile
// and tool recorded so far.
func (l *TokenLedger) Total() (input, output int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.profiles {
		input += t.InputTokens
		output += t.OutputTokens
	}
	for _, t := range l.tools {
		input += t.InputTokens
		output += t.OutputTokens
	}
	return input, output
}
