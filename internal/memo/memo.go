// Package memo provides per-invocation memoization of federation wire
// fetches. It is deliberately NOT a cache across invocations (spec.md's
// Non-goals exclude that): callers construct a fresh Memo per resolver
// or subtree run and let it be discarded when that run ends, so it only
// suppresses duplicate HTTP round-trips for a node reached via more than
// one path within a single walk.
package memo

import (
	"sync"

	"github.com/TwiN/gocache/v2"
)

// Memo memoizes the result of a fallible lookup (a fetch, decode, and
// verify, typically), keyed by an opaque string the caller constructs
// (e.g. "config:" + entity id, "fetch:" + issuer + "|" + subject).
type Memo[T any] struct {
	cache *gocache.Cache
	mu    sync.Mutex
	inFlight map[string]*sync.WaitGroup
}

// New constructs an empty, unbounded, in-memory Memo.
func New[T any]() *Memo[T] {
	return &Memo[T]{
		cache:    gocache.NewCache().WithMaxSize(gocache.NoMaxSize),
		inFlight: make(map[string]*sync.WaitGroup),
	}
}

// result is the cached shape: the memoized value and the error, if any,
// that the underlying lookup returned.
type result[T any] struct {
	value T
	err   error
}

// Do returns the memoized result for key, computing it via fn only the
// first time key is seen. Concurrent callers for the same key block on
// the first caller's in-flight computation rather than duplicating it.
func (m *Memo[T]) Do(key string, fn func() (T, error)) (T, error) {
	m.mu.Lock()
	if cached, ok := m.cache.Get(key); ok {
		m.mu.Unlock()
		r := cached.(result[T])
		return r.value, r.err
	}
	if wg, ok := m.inFlight[key]; ok {
		m.mu.Unlock()
		wg.Wait()
		m.mu.Lock()
		cached, _ := m.cache.Get(key)
		m.mu.Unlock()
		r := cached.(result[T])
		return r.value, r.err
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	m.inFlight[key] = wg
	m.mu.Unlock()

	value, err := fn()

	m.mu.Lock()
	m.cache.Set(key, result[T]{value: value, err: err})
	delete(m.inFlight, key)
	m.mu.Unlock()
	wg.Done()

	return value, err
}
