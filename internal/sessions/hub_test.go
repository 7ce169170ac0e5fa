// ABOUTME: Tests for the SSE session hub.
// ABOUTME: Covers idempotent registration, FIFO delivery, and close-once semantics.

package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

func TestRegister_Idempotent(t *testing.T) {
	hub := NewHub(4, slog.Default())

	first := hub.Register("client-1")
	second := hub.Register("client-1")

	if first != second {
		t.Error("re-registering the same id should return the same session")
	}
	if hub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", hub.Len())
	}
}

func TestPush_FIFOOrder(t *testing.T) {
	hub := NewHub(8, slog.Default())
	sess := hub.Register("client-1")

	for i := 0; i < 3; i++ {
		msg := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		if !hub.Push("client-1", msg) {
			t.Fatalf("Push %d failed", i)
		}
	}
	hub.Unregister("client-1")

	var got []string
	for msg := range sess.Messages() {
		got = append(got, string(msg))
	}

	want := []string{`{"seq":0}`, `{"seq":1}`, `{"seq":2}`}
	if len(got) != len(want) {
		t.Fatalf("received %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPush_UnknownClient(t *testing.T) {
	hub := NewHub(4, slog.Default())

	if hub.Push("ghost", json.RawMessage(`{}`)) {
		t.Error("Push to unknown client should report false")
	}
}

func TestPush_AfterUnregister(t *testing.T) {
	hub := NewHub(4, slog.Default())
	hub.Register("client-1")
	hub.Unregister("client-1")

	// Must not panic and must not deliver
	if hub.Push("client-1", json.RawMessage(`{}`)) {
		t.Error("Push after Unregister should be a no-op")
	}
}

func TestPush_FullQueueDrops(t *testing.T) {
	hub := NewHub(1, slog.Default())
	hub.Register("client-1")

	if !hub.Push("client-1", json.RawMessage(`{"n":1}`)) {
		t.Fatal("first push should succeed")
	}
	if hub.Push("client-1", json.RawMessage(`{"n":2}`)) {
		t.Error("push into a full queue should drop")
	}
}

func TestUnregister_Repeatable(t *testing.T) {
	hub := NewHub(4, slog.Default())
	hub.Register("client-1")

	hub.Unregister("client-1")
	hub.Unregister("client-1") // second call must not panic
	hub.Unregister("never-existed")

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestUnregister_ClosesQueue(t *testing.T) {
	hub := NewHub(4, slog.Default())
	sess := hub.Register("client-1")
	hub.Unregister("client-1")

	if _, open := <-sess.Messages(); open {
		t.Error("queue should be closed after Unregister")
	}
}

func TestConcurrentPushAndUnregister(t *testing.T) {
	hub := NewHub(16, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("client-%d", i)
		hub.Register(id)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Push(id, json.RawMessage(`{}`))
			}
		}()
		go func() {
			defer wg.Done()
			hub.Unregister(id)
		}()
	}
	wg.Wait()

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after unregistering all", hub.Len())
	}
}
