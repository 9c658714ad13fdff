package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []Intent
	failFor  int // fail the first N attempts per call sequence
	attempts int
	block    chan struct{} // when set, Send waits on it
}

func (s *fakeSender) Send(_ context.Context, recipientID int64, text string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFor {
		return errors.New("telegram unavailable")
	}
	s.sent = append(s.sent, Intent{RecipientID: recipientID, Text: text})
	return nil
}

func (s *fakeSender) delivered() []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Intent, len(s.sent))
	copy(out, s.sent)
	return out
}

func TestQueueDelivers(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, nil, Options{QueueSize: 8, Workers: 1, Backoff: time.Millisecond})

	if err := q.Enqueue(Intent{RecipientID: 42, Text: "trial ends soon"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	got := sender.delivered()
	if len(got) != 1 || got[0].RecipientID != 42 {
		t.Fatalf("want one delivery to 42, got %+v", got)
	}
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{failFor: 2}
	q := NewQueue(sender, nil, Options{QueueSize: 8, Workers: 1, MaxRetries: 2, Backoff: time.Millisecond})

	if err := q.Enqueue(Intent{RecipientID: 42, Text: "pay up"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	if got := sender.delivered(); len(got) != 1 {
		t.Fatalf("want delivery after retries, got %+v", got)
	}
	if sender.attempts != 3 {
		t.Fatalf("want 3 attempts, got %d", sender.attempts)
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	sender := &fakeSender{failFor: 100}
	q := NewQueue(sender, nil, Options{QueueSize: 8, Workers: 1, MaxRetries: 1, Backoff: time.Millisecond})

	if err := q.Enqueue(Intent{RecipientID: 42, Text: "pay up"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	if got := sender.delivered(); len(got) != 0 {
		t.Fatalf("want no delivery, got %+v", got)
	}
	if sender.attempts != 2 {
		t.Fatalf("want 2 attempts, got %d", sender.attempts)
	}
}

func TestQueueFullReportsWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	sender := &fakeSender{block: block}
	q := NewQueue(sender, nil, Options{QueueSize: 1, Workers: 1, Backoff: time.Millisecond})

	// First intent occupies the worker, second fills the buffer. With the
	// worker parked there may be a window where the first is still buffered,
	// so push until the buffer is provably full.
	var fullErr error
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(Intent{RecipientID: int64(i), Text: "x"}); err != nil {
			fullErr = err
			break
		}
	}
	if !errors.Is(fullErr, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", fullErr)
	}
	close(block)
	q.Close()
}

func TestQueueClosedRejectsEnqueue(t *testing.T) {
	q := NewQueue(&fakeSender{}, nil, Options{QueueSize: 8, Workers: 1, Backoff: time.Millisecond})
	q.Close()
	if err := q.Enqueue(Intent{RecipientID: 1, Text: "x"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
}

func TestCloseDrainsPending(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, nil, Options{QueueSize: 16, Workers: 2, Backoff: time.Millisecond})

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(Intent{RecipientID: int64(i), Text: "drain me"}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	q.Close()

	if got := sender.delivered(); len(got) != 10 {
		t.Fatalf("Close must drain the queue, delivered %d of 10", len(got))
	}
}
