package asr

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func partialUpdate(text string) TranscriptUpdate {
	return TranscriptUpdate{Partial: text, IsFinal: false, Elapsed: "00:01"}
}

func finalUpdate(text string) TranscriptUpdate {
	return TranscriptUpdate{Text: text, IsFinal: true, Elapsed: "00:01"}
}

func TestUpdateQueue_FIFO(t *testing.T) {
	q := NewUpdateQueue(8, zerolog.Nop())

	for i := 0; i < 5; i++ {
		q.Push(finalUpdate(fmt.Sprintf("utterance %d", i)))
	}

	drained := q.Drain()
	if len(drained) != 5 {
		t.Fatalf("Expected 5 updates, got %d", len(drained))
	}
	for i, u := range drained {
		tu := u.(TranscriptUpdate)
		if tu.Text != fmt.Sprintf("utterance %d", i) {
			t.Errorf("Update %d out of order: %q", i, tu.Text)
		}
	}

	if len(q.Drain()) != 0 {
		t.Error("Expected empty queue after drain")
	}
}

func TestUpdateQueue_DropsTransientOnOverflow(t *testing.T) {
	q := NewUpdateQueue(2, zerolog.Nop())

	q.Push(partialUpdate("a"))
	q.Push(partialUpdate("b"))

	if accepted := q.Push(partialUpdate("c")); accepted {
		t.Error("Expected transient update to be dropped when queue is full")
	}

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(drained))
	}
}

func TestUpdateQueue_FinalDisplacesTransient(t *testing.T) {
	q := NewUpdateQueue(2, zerolog.Nop())

	q.Push(partialUpdate("a"))
	q.Push(finalUpdate("keep me"))

	if accepted := q.Push(finalUpdate("important")); !accepted {
		t.Fatal("Expected final update to be accepted on overflow")
	}

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(drained))
	}
	for _, u := range drained {
		if u.Transient() {
			t.Error("Expected transient update to be displaced by final")
		}
	}
}

func TestUpdateQueue_MetricsNeverDroppedWhilePartialsPending(t *testing.T) {
	q := NewUpdateQueue(1, zerolog.Nop())

	q.Push(partialUpdate("a"))

	m := NewMetricsUpdate()
	if accepted := q.Push(m); !accepted {
		t.Fatal("Expected metrics update to displace transient")
	}

	drained := q.Drain()
	if len(drained) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(drained))
	}
	if _, ok := drained[0].(MetricsUpdate); !ok {
		t.Errorf("Expected metrics update, got %T", drained[0])
	}
}

func TestUpdateQueue_DrainNonBlocking(t *testing.T) {
	q := NewUpdateQueue(4, zerolog.Nop())
	if got := q.Drain(); got != nil {
		t.Errorf("Expected nil drain on empty queue, got %v", got)
	}
}
