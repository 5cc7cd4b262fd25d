package segment

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator("data")

	if id := gen.Next("agent"); id != "data-agent-1" {
		t.Errorf("expected 'data-agent-1', got %s", id)
	}
	if id := gen.Next("agent"); id != "data-agent-2" {
		t.Errorf("expected 'data-agent-2', got %s", id)
	}
	if id := gen.Next("host"); id != "data-host-1" {
		t.Errorf("expected 'data-host-1', got %s", id)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := NewGenerator("data")
	numGoroutines := 50
	perGoroutine := 20

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*perGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("agent")
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("expected %d unique ids, got %d", numGoroutines*perGoroutine, len(seen))
	}
}
