package run

import (
	"testing"
	"time"
)

func TestHub(t *testing.T) {
	t.Run("DeliversOnlyToRunSubscribers", func(t *testing.T) {
		h := NewHub(4)
		a, cancelA := h.Subscribe("run-a")
		defer cancelA()
		b, cancelB := h.Subscribe("run-b")
		defer cancelB()

		h.Publish(Event{Type: EventPhase, RunID: "run-a", Phase: PhaseMarket})

		select {
		case e := <-a:
			if e.Phase != PhaseMarket {
				t.Errorf("Expected market event, got %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("Expected event for run-a")
		}
		select {
		case e := <-b:
			t.Errorf("Expected nothing for run-b, got %+v", e)
		default:
		}
	})

	t.Run("DropsWhenSubscriberIsFull", func(t *testing.T) {
		h := NewHub(2)
		ch, cancel := h.Subscribe("run-a")
		defer cancel()

		for i := 0; i < 5; i++ {
			h.Publish(Event{Type: EventLog, RunID: "run-a"})
		}
		if len(ch) != 2 {
			t.Errorf("Expected buffer of 2 events, got %d", len(ch))
		}
	})

	t.Run("TerminalEventDisplacesOldest", func(t *testing.T) {
		h := NewHub(1)
		ch, cancel := h.Subscribe("run-a")
		defer cancel()

		h.Publish(Event{Type: EventLog, RunID: "run-a"})
		h.Publish(Event{Type: EventLog, RunID: "run-a"})
		h.Publish(Event{Type: EventComplete, RunID: "run-a"})

		if e := <-ch; e.Type != EventComplete {
			t.Errorf("Expected the complete event to be kept, got %s", e.Type)
		}
	})

	t.Run("CancelClosesAndUnsubscribes", func(t *testing.T) {
		h := NewHub(1)
		ch, cancel := h.Subscribe("run-a")
		cancel()
		cancel()

		if _, ok := <-ch; ok {
			t.Error("Expected closed channel")
		}
		if h.Subscribers("run-a") != 0 {
			t.Error("Expected no subscribers left")
		}
		h.Publish(Event{Type: EventLog, RunID: "run-a"})
	})
}

func TestEventTerminal(t *testing.T) {
	if (Event{Type: EventPhase}).Terminal() {
		t.Error("Expected phase event to be non-terminal")
	}
	if !(Event{Type: EventComplete}).Terminal() || !(Event{Type: EventFailed}).Terminal() {
		t.Error("Expected complete and failed events to be terminal")
	}
}
