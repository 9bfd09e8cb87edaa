// Package arch models the microarchitectural structures observed during
// symbolic execution: caches, branch predictors and memory.
//
// Every model is a value owned by a single execution path. Clone returns an
// independent copy so that speculative and architectural executions can
// diverge from a common prefix.
//
// Memory is modeled as whole-value cells keyed by address, not as bytes.
// Each of the cache, the pattern history table and the branch target buffer
// can be switched off through Params.
package arch

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Policy is a replacement policy of a bounded associative structure.
type Policy int

const (
	// LRU evicts the least recently used entry. Hits refresh recency.
	LRU Policy = iota
	// FIFO evicts the oldest inserted entry. Hits do not change the order.
	FIFO
)

func (p Policy) String() string {
	switch p {
	case LRU:
		return "lru"
	case FIFO:
		return "fifo"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy returns the policy with a name. An empty name is LRU.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "lru", "":
		return LRU, nil
	case "fifo":
		return FIFO, nil
	}
	return LRU, errors.Errorf("unknown replacement policy %q", name)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// ways is a fully associative set of at most capacity entries.
// entries is ordered from the next victim to the most recently placed entry.
type ways[K comparable, V any] struct {
	entries  []entry[K, V]
	capacity int
	policy   Policy
}

func newWays[K comparable, V any](capacity int, policy Policy) ways[K, V] {
	return ways[K, V]{
		entries:  make([]entry[K, V], 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

func (w *ways[K, V]) find(key K) int {
	for i, e := range w.entries {
		if e.key == key {
			return i
		}
	}
	return -1
}

func (w *ways[K, V]) lookup(key K) (V, bool) {
	if i := w.find(key); i >= 0 {
		return w.entries[i].value, true
	}
	var zero V
	return zero, false
}

// access places key with value and reports whether it was present.
// A miss in a full set evicts the victim, which is returned.
func (w *ways[K, V]) access(key K, value V) (hit bool, victim K, evicted bool) {
	if i := w.find(key); i >= 0 {
		w.entries[i].value = value
		if w.policy == LRU {
			e := w.entries[i]
			copy(w.entries[i:], w.entries[i+1:])
			w.entries[len(w.entries)-1] = e
		}
		return true, victim, false
	}
	if len(w.entries) == w.capacity {
		victim, evicted = w.entries[0].key, true
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:len(w.entries)-1]
	}
	w.entries = append(w.entries, entry[K, V]{key: key, value: value})
	return false, victim, evicted
}

func (w *ways[K, V]) remove(key K) bool {
	i := w.find(key)
	if i < 0 {
		return false
	}
	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	return true
}

func (w *ways[K, V]) clear() {
	w.entries = w.entries[:0]
}

func (w ways[K, V]) clone() ways[K, V] {
	entries := make([]entry[K, V], len(w.entries), w.capacity)
	copy(entries, w.entries)
	w.entries = entries
	return w
}
