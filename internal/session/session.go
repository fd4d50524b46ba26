// Package session tracks completed analyses in memory and hands out opaque
// ids for later retrieval. The registry is the working set behind the MCP
// tools and the HTTP API; durable storage is internal/history's job.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/hibana/internal/analysis"
)

// Entry is one retained analysis.
type Entry struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	CreatedAt time.Time        `json:"created_at"`
	Result    *analysis.Result `json:"result"`
}

// Registry is a bounded, concurrency-safe analysis store. When the bound is
// exceeded the oldest entry is evicted.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	order    []string // insertion order, oldest first
	capacity int

	now func() time.Time
}

const DefaultCapacity = 100

// NewRegistry builds a registry retaining at most capacity entries.
// capacity <= 0 falls back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Put retains a result and returns its entry. The id is fresh and opaque.
func (r *Registry) Put(source string, res *analysis.Result) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		Source:    source,
		CreatedAt: r.now().UTC(),
		Result:    res,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
	r.order = append(r.order, e.ID)
	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
	}
	return e
}

// Get returns the entry for id, if retained.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (r *Registry) Recent(n int) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.order) {
		n = len(r.order)
	}
	out := make([]*Entry, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.entries[r.order[i]])
	}
	return out
}

// Delete removes one entry, reporting whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear drops every entry and returns how many were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = make(map[string]*Entry)
	r.order = nil
	return n
}

// Len returns the number of retained entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
