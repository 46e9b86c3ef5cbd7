package sse

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
)

func TestStreamWritesFramesUntilTerminal(t *testing.T) {
	bus := eventbus.New()
	taskID := uuid.New()
	var buf bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- Stream(context.Background(), bus, taskID, &buf) }()

	bus.Publish(domain.StatusEvent(taskID, 10, "ocr_recognition", domain.StatusRunning))
	bus.Publish(domain.CompleteEvent(taskID, "ok"))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stream returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("stream did not close after terminal event")
	}

	out := buf.String()
	if !strings.Contains(out, `"type":"status"`) {
		t.Fatalf("expected status frame, got %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected frame terminated by blank line, got %q", out)
	}
}

func TestStreamUnsubscribesOnContextCancel(t *testing.T) {
	bus := eventbus.New()
	taskID := uuid.New()
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Stream(ctx, bus, taskID, &buf) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context-cancelled error")
		}
	case <-time.After(time.Second):
		t.Fatalf("stream did not return after context cancellation")
	}
}
