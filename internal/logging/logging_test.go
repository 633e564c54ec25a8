package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	FromContext(ctx, base).Info("hello")
	FromContext(context.Background(), base).Info("plain")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-42" {
		t.Fatalf("expected request_id field, got %v", got)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatalf("no request id expected without one in the context")
	}
}

func TestFromContextDefaultsToGlobal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	defer Set(nil)

	FromContext(ContextWithRequestID(context.Background(), "req-7"), nil).Info("hello")
	if entries := logs.All(); len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-7" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("a bare context carries no id")
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	defer Set(nil)
	if err := Init("chatty", false); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := Init("warn", false); err != nil {
		t.Fatalf("Init warn: %v", err)
	}
	if L().Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
}
