package logger

import (
	"sync"
	"time"
)

// CollectionConfig bounds the in-memory error history kept for
// status introspection.
type CollectionConfig struct {
	Capacity int // max retained entries; older entries are evicted
}

// ErrorEntry is one retained error-level log line.
type ErrorEntry struct {
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Caller   string                 `json:"caller"`
	Count    int                    `json:"count"`
	LastSeen time.Time              `json:"last_seen"`
}

// LogCollector keeps a bounded ring of recent error-level logs so the
// status endpoint can report the last failures without scraping files.
// Consecutive duplicates collapse into a single entry with a count.
type LogCollector struct {
	capacity int
	entries  []*ErrorEntry
	mutex    sync.RWMutex
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cap := config.Capacity
	if cap <= 0 {
		cap = 32
	}
	return &LogCollector{capacity: cap}
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	if level != "error" {
		return
	}
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n := len(c.entries); n > 0 {
		last := c.entries[n-1]
		if last.Message == message && last.Caller == caller {
			last.Count++
			last.LastSeen = now
			return
		}
	}

	c.entries = append(c.entries, &ErrorEntry{
		Message:  message,
		Fields:   fields,
		Caller:   caller,
		Count:    1,
		LastSeen: now,
	})
	if len(c.entries) > c.capacity {
		c.entries = c.entries[len(c.entries)-c.capacity:]
	}
}

// Recent returns up to limit most recent entries, newest last.
// limit <= 0 returns everything retained.
func (c *LogCollector) Recent(limit int) []ErrorEntry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	n := len(c.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ErrorEntry, 0, n)
	for _, e := range c.entries[len(c.entries)-n:] {
		out = append(out, *e)
	}
	return out
}

func (c *LogCollector) Close() {
	c.mutex.Lock()
	c.entries = nil
	c.mutex.Unlock()
}
