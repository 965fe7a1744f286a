package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"go.uber.org/zap"
)

type fakeMessage struct {
	event   *queue.TaskEvent
	acked   bool
	nacked  bool
	requeue bool
}

func (m *fakeMessage) Ack() error { m.acked = true; return nil }

func (m *fakeMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *fakeMessage) GetEvent() *queue.TaskEvent { return m.event }

type recordedEvent struct {
	ownerID   uuid.UUID
	eventType string
}

type fakeRecorder struct {
	events []recordedEvent
	err    error
}

func (r *fakeRecorder) RecordEvent(_ context.Context, ownerID uuid.UUID, eventType string, _ time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, recordedEvent{ownerID: ownerID, eventType: eventType})
	return nil
}

func TestActivityConsumer_AcksRecordedEvent(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	consumer := NewActivityConsumer(nil, recorder, 10, zap.NewNop())

	ownerID := uuid.New()
	msg := &fakeMessage{event: queue.NewTaskEvent(queue.EventTaskCreated, ownerID, uuid.New())}
	consumer.handle(context.Background(), msg)

	if !msg.acked || msg.nacked {
		t.Errorf("acked = %t nacked = %t, want ack only", msg.acked, msg.nacked)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(recorder.events))
	}
	if got := recorder.events[0]; got.ownerID != ownerID || got.eventType != string(queue.EventTaskCreated) {
		t.Errorf("recorded event = %+v", got)
	}
}

func TestActivityConsumer_RequeuesOnRecorderFailure(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{err: errors.New("store unavailable")}
	consumer := NewActivityConsumer(nil, recorder, 10, zap.NewNop())

	msg := &fakeMessage{event: queue.NewTaskEvent(queue.EventTaskUpdated, uuid.New(), uuid.New())}
	consumer.handle(context.Background(), msg)

	if msg.acked {
		t.Error("message acked despite recorder failure")
	}
	if !msg.nacked || !msg.requeue {
		t.Errorf("nacked = %t requeue = %t, want requeued nack", msg.nacked, msg.requeue)
	}
}

func TestActivityConsumer_DropsMalformedMessage(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	consumer := NewActivityConsumer(nil, recorder, 10, zap.NewNop())

	msg := &fakeMessage{}
	consumer.handle(context.Background(), msg)

	if msg.acked {
		t.Error("malformed message acked")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("nacked = %t requeue = %t, want dropped nack", msg.nacked, msg.requeue)
	}
	if len(recorder.events) != 0 {
		t.Errorf("recorded %d events, want 0", len(recorder.events))
	}
}
