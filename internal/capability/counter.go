package capability

import "sync/atomic"

// RequestCounter bounds HTTP call volume for one session. A session is a
// single execution, or a whole batch when the engine fans out one search
// across sources.
type RequestCounter struct {
	used atomic.Int64
}

// NewRequestCounter creates a counter at zero.
func NewRequestCounter() *RequestCounter {
	return &RequestCounter{}
}

// Take consumes one request slot and reports whether the budget still
// covers it.
func (c *RequestCounter) Take(limit int64) bool {
	return c.used.Add(1) <= limit
}

// Used returns how many requests were attempted.
func (c *RequestCounter) Used() int64 {
	return c.used.Load()
}

// Reset clears the counter for a new session.
func (c *RequestCounter) Reset() {
	c.used.Store(0)
}
