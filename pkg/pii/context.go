package pii

import (
	"sync"
	"time"
)

// Record is one redaction event, persisted later by the audit sink.
type Record struct {
	Kind           string
	Token          string
	OriginalLength int
	Start          int
	End            int
}

// Context carries the redaction state of a single request: the token to
// original-value map and the detection records. The request owns it; the
// audit sink reads it asynchronously, so access is synchronized.
type Context struct {
	RequestID string
	CreatedAt time.Time

	mu       sync.RWMutex
	tokenMap map[string]string
	records  []Record
	counter  int
}

// NewContext creates an empty redaction context for the given request.
func NewContext(requestID string) *Context {
	return &Context{
		RequestID: requestID,
		CreatedAt: time.Now(),
		tokenMap:  make(map[string]string),
	}
}

// bind stores a token mapping together with its detection record.
func (c *Context) bind(token, original string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenMap[token] = original
	c.records = append(c.records, rec)
}

// Lookup returns the original value for a token, if known.
func (c *Context) Lookup(token string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tokenMap[token]
	return v, ok
}

// Records returns a copy of the detection records.
func (c *Context) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// DetectionCount returns the number of redacted values.
func (c *Context) DetectionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// nextSequence returns the next counter value for sequential token ids,
// starting at 1.
func (c *Context) nextSequence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}
