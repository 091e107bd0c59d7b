package executor

import "sync"

// retryKey identifies the retry counter for a call. Counters are independent
// per (method, endpoint) so one failing endpoint does not throttle others.
type retryKey struct {
	method   string
	endpoint string
}

type retryTable struct {
	mu sync.Mutex
	m  map[retryKey]int
}

func newRetryTable() *retryTable {
	return &retryTable{m: make(map[retryKey]int)}
}

// inc increments the counter for key and returns the new value.
func (t *retryTable) inc(key retryKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key]++
	return t.m[key]
}

// clear removes the counter for key. Called on success and on any terminal
// outcome so a subsequent call starts fresh.
func (t *retryTable) clear(key retryKey) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}

func (t *retryTable) get(key retryKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[key]
}
