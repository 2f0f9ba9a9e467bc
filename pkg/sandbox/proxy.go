package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/ratelimit"
	"github.com/oktareact/core/pkg/sqlschema"
	"github.com/oktareact/core/pkg/sqlvalidator"
)

// OktaCaller performs one mediated Okta REST call. Injected by the Process
// Supervisor so this package never holds Okta credentials directly.
type OktaCaller func(ctx context.Context, op catalog.Operation, params map[string]any) (json.RawMessage, error)

type rateLimitHit struct {
	WaitSeconds int
}

type execState struct {
	progressCh chan<- ProgressUpdate
	rateLimit  *rateLimitHit
	log        []ProgressUpdate
	mu         sync.Mutex
}

// Proxy is a loopback HTTP server the sandboxed child process talks to for
// every `client.call(...)`, `db.query(...)`, and `progress(...)` the shim
// exposes. Mediating through a single long-lived server (rather than giving
// the child a real network route) is what lets the Process Supervisor share
// one API Rate Governor and one SQL Schema View across every step of a
// process, exactly as spec §4.5's "sandbox may parallelize its own HTTP
// calls under an Okta-rate-limit-aware API Rate Governor" requires.
type Proxy struct {
	srv       *http.Server
	listener  net.Listener
	catalog   *catalog.Catalog
	governor  *ratelimit.Governor
	okta      OktaCaller
	sqlExec   *sqlschema.Executor
	rowCap    int
	sqlTimeout time.Duration

	mu    sync.Mutex
	execs map[string]*execState
}

// NewProxy starts a loopback server on an ephemeral port. Call Close when
// the server that owns it shuts down.
func NewProxy(cat *catalog.Catalog, gov *ratelimit.Governor, okta OktaCaller, sqlExec *sqlschema.Executor, rowCap int, sqlTimeout time.Duration) (*Proxy, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("start sandbox proxy: %w", err)
	}

	p := &Proxy{
		listener:   ln,
		catalog:    cat,
		governor:   gov,
		okta:       okta,
		sqlExec:    sqlExec,
		rowCap:     rowCap,
		sqlTimeout: sqlTimeout,
		execs:      make(map[string]*execState),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/call", p.handleCall)
	mux.HandleFunc("/sql", p.handleSQL)
	mux.HandleFunc("/progress", p.handleProgress)
	p.srv = &http.Server{Handler: mux}

	go p.srv.Serve(ln) //nolint:errcheck

	return p, nil
}

// Addr returns the loopback address the shim should target.
func (p *Proxy) Addr() string { return p.listener.Addr().String() }

// Close shuts the proxy down.
func (p *Proxy) Close() error {
	return p.srv.Close()
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// register issues a fresh per-execution token. progressCh may be nil if the
// caller doesn't want live updates; the full log is always retrievable via
// progressLog after the execution completes, regardless of progressCh.
func (p *Proxy) register(stepID int, progressCh chan<- ProgressUpdate) (token string, cleanup func()) {
	token = newToken()
	state := &execState{progressCh: progressCh}

	p.mu.Lock()
	p.execs[token] = state
	p.mu.Unlock()

	return token, func() {
		p.mu.Lock()
		delete(p.execs, token)
		p.mu.Unlock()
	}
}

// progressLog returns every progress update recorded for token so far.
func (p *Proxy) progressLog(token string) []ProgressUpdate {
	st := p.stateFor(token)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]ProgressUpdate, len(st.log))
	copy(out, st.log)
	return out
}

func (p *Proxy) stateFor(token string) *execState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.execs[token]
}

func (p *Proxy) lastRateLimit(token string) *rateLimitHit {
	st := p.stateFor(token)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rateLimit
}

type callRequest struct {
	Token      string         `json:"token"`
	OperationID string        `json:"operation_id"`
	Params     map[string]any `json:"params"`
}

func (p *Proxy) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	op, ok := p.catalog.Get(req.OperationID)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown operation %q", req.OperationID), http.StatusBadRequest)
		return
	}

	release, err := p.governor.Acquire(r.Context())
	if err != nil {
		if errors.Is(err, ratelimit.ErrMaxConcurrentCalls) {
			p.recordRateLimit(req.Token, 1)
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer release()

	result, err := p.okta(r.Context(), op, req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}

type sqlRequest struct {
	Token string `json:"token"`
	SQL   string `json:"sql"`
}

func (p *Proxy) handleSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	validated, err := sqlvalidator.Validate(req.SQL, p.rowCap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := p.sqlExec.Execute(r.Context(), validated.NormalizedSQL, p.sqlTimeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

type progressRequest struct {
	Token   string `json:"token"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

func (p *Proxy) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st := p.stateFor(req.Token)
	if st != nil {
		update := ProgressUpdate{Percent: req.Percent, Message: req.Message}
		st.mu.Lock()
		st.log = append(st.log, update)
		st.mu.Unlock()
		if st.progressCh != nil {
			select {
			case st.progressCh <- update:
			default:
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Proxy) recordRateLimit(token string, waitSeconds int) {
	st := p.stateFor(token)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.rateLimit = &rateLimitHit{WaitSeconds: waitSeconds}
	st.mu.Unlock()
}
