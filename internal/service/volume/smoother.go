// Package volume smooths sampled audio levels for speaker visualization.
package volume

import (
	"context"
	"math"
	"sync"
	"time"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultSmoothing = 0.3
	DefaultInterval  = 100 * time.Millisecond
)

// Step applies one exponential moving average step.
func Step(prev, sample, k float64) float64 {
	return prev + k*(sample-prev)
}

// Smoother periodically samples a level and keeps its moving average.
type Smoother struct {
	sample   func() float64
	k        float64
	interval time.Duration

	mu    sync.RWMutex
	level float64
}

// NewSmoother creates a smoother. k is clamped to (0, 1].
func NewSmoother(sample func() float64, k float64, interval time.Duration) *Smoother {
	if k <= 0 || k > 1 || math.IsNaN(k) {
		k = DefaultSmoothing
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Smoother{sample: sample, k: k, interval: interval}
}

// Level returns the current smoothed value.
func (s *Smoother) Level() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// Tick takes one sample and updates the average.
func (s *Smoother) Tick() float64 {
	v := s.sample()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = Step(s.level, v, s.k)
	return s.level
}

// Run ticks every interval until ctx is cancelled. The ticker is always
// stopped on return.
func (s *Smoother) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Group runs one smoother per key, each as its own cancellable task.
type Group struct {
	k        float64
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*groupEntry
	wg      sync.WaitGroup
}

type groupEntry struct {
	smoother *Smoother
	cancel   context.CancelFunc
}

// NewGroup creates an empty group.
func NewGroup(k float64, interval time.Duration) *Group {
	return &Group{k: k, interval: interval, entries: map[string]*groupEntry{}}
}

// Start begins smoothing for key. A task already running for key keeps its
// level and Start reports false.
func (g *Group) Start(ctx context.Context, key string, sample func() float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[key]; ok {
		return false
	}
	taskCtx, cancel := context.WithCancel(ctx)
	s := NewSmoother(sample, g.k, g.interval)
	g.entries[key] = &groupEntry{smoother: s, cancel: cancel}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		s.Run(taskCtx)
	}()
	return true
}

// Stop cancels the task for key.
func (g *Group) Stop(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[key]; ok {
		e.cancel()
		delete(g.entries, key)
	}
}

// Levels returns the current smoothed level per key.
func (g *Group) Levels() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.entries))
	for k, e := range g.entries {
		out[k] = e.smoother.Level()
	}
	return out
}

// Close cancels every task and waits for them to exit.
func (g *Group) Close() {
	g.mu.Lock()
	for k, e := range g.entries {
		e.cancel()
		delete(g.entries, k)
	}
	g.mu.Unlock()
	g.wg.Wait()
}
