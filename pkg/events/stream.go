package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds how long a single send to a slow client may block,
// mirroring the teacher's ConnectionManager.sendRaw.
const writeTimeout = 10 * time.Second

// ServeSSE streams bus's events as text/event-stream, starting with
// sinceSeq's catch-up snapshot (buffered events plus durable history),
// until a terminal event is sent or the client disconnects.
func ServeSSE(w http.ResponseWriter, r *http.Request, bus *Bus, store *Store, sinceSeq int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	live, buffered, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	catchup := buffered
	if store != nil {
		durable, err := store.Catchup(ctx, bus.processID, sinceSeq)
		if err != nil {
			slog.Warn("sse catchup query failed", "process_id", bus.processID, "error", err)
		} else if len(durable) > 0 {
			catchup = mergeCatchup(durable, buffered)
		}
	}

	for _, ev := range catchup {
		if ev.Seq <= sinceSeq {
			continue
		}
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Kind.terminal() {
				return
			}
		}
	}
}

// mergeCatchup prefers durable rows but fills in anything only present in
// the still-buffered snapshot (most recent collapsed progress update).
func mergeCatchup(durable, buffered []Event) []Event {
	seen := make(map[int]bool, len(durable))
	out := make([]Event, 0, len(durable)+len(buffered))
	out = append(out, durable...)
	for _, ev := range durable {
		seen[ev.Seq] = true
	}
	for _, ev := range buffered {
		if !seen[ev.Seq] {
			out = append(out, ev)
		}
	}
	return out
}

func writeSSE(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
	return err
}

// ServeWebSocket upgrades r and streams bus's events as WebSocket text
// frames, for clients that requested Connection: Upgrade instead of SSE.
// Grounded on pkg/events/manager.go's HandleConnection/sendRaw: accept,
// run the read loop to detect client-initiated close, write with a
// per-message timeout derived from the connection's own context.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, bus *Bus, sinceSeq int) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket accept: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	live, buffered, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	// Detect client-initiated close without blocking the write side.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for _, ev := range buffered {
		if ev.Seq <= sinceSeq {
			continue
		}
		if err := writeWS(ctx, conn, ev); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if err := writeWS(ctx, conn, ev); err != nil {
				return err
			}
			if ev.Kind.terminal() {
				return nil
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
