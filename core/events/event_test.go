package events

import (
	"testing"

	"auctionhouse/core/types"
)

type testEvent struct {
	kind string
	id   string
}

func (e testEvent) EventType() string { return e.kind }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: e.kind, Attributes: map[string]string{"id": e.id}}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(testEvent{kind: "a", id: "1"})
	buf.Emit(testEvent{kind: "b", id: "2"})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 pending events, got %d", buf.Len())
	}

	rec := NewRecorder(0)
	flushed := buf.Flush(rec)
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed events, got %d", len(flushed))
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer should be empty after flush")
	}
	got := rec.Events()
	if got[0].Type != "a" || got[1].Type != "b" {
		t.Fatalf("unexpected order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(testEvent{kind: "a"})
	buf.Reset()

	rec := NewRecorder(0)
	buf.Flush(rec)
	if len(rec.Events()) != 0 {
		t.Fatalf("reset events must not reach the emitter")
	}
}

func TestRecorderLimit(t *testing.T) {
	rec := NewRecorder(2)
	rec.Emit(testEvent{kind: "a"})
	rec.Emit(testEvent{kind: "b"})
	rec.Emit(testEvent{kind: "c"})

	got := rec.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(got))
	}
	if got[0].Type != "b" || got[1].Type != "c" {
		t.Fatalf("expected oldest event to be evicted")
	}
	got[0].Attributes["id"] = "mutated"
	if rec.Events()[0].Attributes["id"] == "mutated" {
		t.Fatalf("recorder must return copies")
	}
}
