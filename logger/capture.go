package logger

import "sync"

// Entry is one captured log call.
type Entry struct {
	Level  string
	Msg    string
	Fields []Field
}

// Capture records log entries for assertions in tests.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCapture returns an empty recording logger.
func NewCapture() *Capture { return &Capture{} }

func (c *Capture) record(level, msg string, fields []Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{Level: level, Msg: msg, Fields: fields})
}

func (c *Capture) Debug(msg string, fields ...Field) { c.record("debug", msg, fields) }
func (c *Capture) Info(msg string, fields ...Field)  { c.record("info", msg, fields) }
func (c *Capture) Warn(msg string, fields ...Field)  { c.record("warn", msg, fields) }
func (c *Capture) Error(msg string, fields ...Field) { c.record("error", msg, fields) }
func (c *Capture) Fatal(msg string, fields ...Field) { c.record("fatal", msg, fields) }

// Entries returns a copy of everything recorded so far.
func (c *Capture) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Contains reports whether an entry with the given level and message was
// recorded.
func (c *Capture) Contains(level, msg string) bool {
	for _, e := range c.Entries() {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}
