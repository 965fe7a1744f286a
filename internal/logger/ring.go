package logger

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultRingCapacity is the default number of entries retained by the ring.
const DefaultRingCapacity = 1000

// Entry is one structured diagnostic record held by the ring.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Filter selects entries from the ring. Zero values match everything.
type Filter struct {
	Level   string    // exact level match ("debug", "info", "warn", "error")
	Message string    // substring match on the message
	Since   time.Time // only entries at or after this instant
	Limit   int       // maximum entries returned, newest kept; 0 = no limit
}

// Ring is a bounded, concurrent-safe buffer of log entries. When full, the
// oldest entry is evicted. Appends never block log emission.
type Ring struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	start    int
	count    int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, evicting the oldest when the ring is full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < r.capacity {
		r.entries[(r.start+r.count)%r.capacity] = e
		r.count++
		return
	}
	r.entries[r.start] = e
	r.start = (r.start + 1) % r.capacity
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Query returns retained entries matching the filter, oldest first.
func (r *Ring) Query(f Filter) []Entry {
	r.mu.RLock()
	matched := make([]Entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		e := r.entries[(r.start+i)%r.capacity]
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if f.Message != "" && !strings.Contains(e.Message, f.Message) {
			continue
		}
		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		matched = append(matched, e)
	}
	r.mu.RUnlock()

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return matched
}

// ringCore is a zapcore.Core that mirrors records into a Ring.
type ringCore struct {
	ring   *Ring
	level  zapcore.LevelEnabler
	fields []zapcore.Field
}

func newRingCore(ring *Ring, level zapcore.LevelEnabler) zapcore.Core {
	return &ringCore{ring: ring, level: level}
}

func (c *ringCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl)
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &ringCore{ring: c.ring, level: c.level}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var ctx map[string]any
	if len(enc.Fields) > 0 {
		ctx = enc.Fields
	}
	c.ring.Append(Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
		Context: ctx,
	})
	return nil
}

func (c *ringCore) Sync() error { return nil }
