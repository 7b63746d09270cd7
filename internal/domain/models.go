package domain

import "context"

// Record is a structured training-progress payload decoded from a log line.
// Keys and value types are whatever the trainer emitted; JSON numbers decode
// as float64.
type Record map[string]any

// Float returns the value under key coerced to float64. JSON decoding
// produces float64 for every number, so this is the canonical numeric view.
func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String returns the value under key if it is a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store archives observed progress records.
type Store interface {
	SaveRecords(ctx context.Context, records []Record) error
}

// Publisher forwards observed progress records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
	Close() error
}
