package restreamer

import (
	"sync"
	"testing"
)

func TestStatusStore_initial(t *testing.T) {
	s := NewStatusStore()
	snap, ok := s.Current()
	if ok {
		t.Error("expected no published snapshot")
	}
	if snap.State != "idle" {
		t.Errorf("state = %q, want idle", snap.State)
	}
	if s.Streaming() {
		t.Error("new store should not report streaming")
	}
}

func TestStatusStore_copies_windows(t *testing.T) {
	s := NewStatusStore()
	windows := []string{"a", "b"}
	s.Publish(Snapshot{State: "streaming", ActiveWindows: windows})

	windows[0] = "mutated"
	snap, _ := s.Current()
	if snap.ActiveWindows[0] != "a" {
		t.Errorf("publish kept a reference to the caller's slice")
	}

	snap.ActiveWindows[1] = "mutated"
	again, _ := s.Current()
	if again.ActiveWindows[1] != "b" {
		t.Errorf("current exposed the stored slice")
	}
}

func TestStatusStore_concurrent(t *testing.T) {
	s := NewStatusStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Publish(Snapshot{State: "streaming", PID: i, ActiveWindows: []string{"w"}})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.Current()
			_ = s.Streaming()
		}()
	}
	wg.Wait()

	if !s.Streaming() {
		t.Error("expected streaming after publishes")
	}
}
