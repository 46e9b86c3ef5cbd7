// Package sse implements the SSE Stream Adapter (spec.md §4.I): it bridges
// one task's event-bus subscription to a server-sent-events transport,
// serializing `data: <json>\n\n` frames and a 15s heartbeat comment during
// inactivity.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
)

// HeartbeatInterval is how long the stream waits for a real event before
// emitting a comment frame to keep the connection alive (spec.md §4.I).
const HeartbeatInterval = 15 * time.Second

// Stream subscribes to taskID's events on bus and writes SSE frames to w
// until the task reaches a terminal state, ctx is cancelled (client
// disconnect), or a write fails. The bus subscription is always released
// before returning, within one event boundary of disconnect.
func Stream(ctx context.Context, bus *eventbus.Bus, taskID uuid.UUID, w io.Writer) error {
	events, unsubscribe := bus.Subscribe(taskID)
	defer unsubscribe()

	flusher, _ := w.(interface{ Flush() })

	timer := time.NewTimer(HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			if ev.IsTerminal() {
				return nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(HeartbeatInterval)
		case <-timer.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			timer.Reset(HeartbeatInterval)
		}
	}
}

func writeEvent(w io.Writer, ev domain.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
