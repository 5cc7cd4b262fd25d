package segment

import (
	"fmt"
	"sync"
)

// Generator assigns ids to segments whose transport carries none, such as
// plain-text data packets. Ids are unique per source for the process lifetime.
type Generator struct {
	mu       sync.Mutex
	prefix   string
	counters map[string]uint64
}

// NewGenerator returns a generator whose ids start with prefix.
func NewGenerator(prefix string) *Generator {
	return &Generator{
		prefix:   prefix,
		counters: make(map[string]uint64),
	}
}

// Next returns the next id for the given source identity.
func (g *Generator) Next(source string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[source]++
	return fmt.Sprintf("%s-%s-%d", g.prefix, source, g.counters[source])
}
