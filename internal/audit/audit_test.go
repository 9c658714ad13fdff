package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type memSink struct {
	events []Event
	err    error
}

func (s *memSink) Append(_ context.Context, ev *Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *ev)
	return nil
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(Actor{UserID: 7, TgID: 555}, ActionStatusChanged, "task", 42, map[string]any{"new_status": "ready"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if !ev.ActorUserID.Valid || ev.ActorUserID.Int64 != 7 {
		t.Fatalf("actor user id %+v, want 7", ev.ActorUserID)
	}
	if !ev.EntityID.Valid || ev.EntityID.Int64 != 42 {
		t.Fatalf("entity id %+v, want 42", ev.EntityID)
	}
	var payload map[string]string
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["new_status"] != "ready" {
		t.Fatalf("payload %v", payload)
	}
}

func TestNewEventUnknownActor(t *testing.T) {
	ev, err := NewEvent(Actor{}, ActionTrialStarted, "trial", 0, nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.ActorUserID.Valid || ev.ActorTgID.Valid || ev.EntityID.Valid {
		t.Fatalf("zero ids must map to NULL, got %+v", ev)
	}
	if ev.Payload != nil {
		t.Fatalf("nil payload must stay nil")
	}
}

func TestNewEventRejectsEmptyAction(t *testing.T) {
	if _, err := NewEvent(Actor{}, "", "task", 1, nil); err == nil {
		t.Fatalf("empty action must be rejected")
	}
}

func TestRecord(t *testing.T) {
	sink := &memSink{}
	if err := Record(context.Background(), sink, Actor{UserID: 1}, ActionTaskCreated, "task", 9, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Action != ActionTaskCreated {
		t.Fatalf("events %+v", sink.events)
	}
}

func TestRecordSinkFailureIsFatal(t *testing.T) {
	boom := errors.New("audit table full")
	err := Record(context.Background(), &memSink{err: boom}, Actor{}, ActionTaskCreated, "task", 9, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped sink error, got %v", err)
	}
}

func TestRecordNilSink(t *testing.T) {
	if err := Record(context.Background(), nil, Actor{}, ActionTaskCreated, "task", 9, nil); err == nil {
		t.Fatalf("nil sink must be an error")
	}
}
