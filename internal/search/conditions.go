package search

import (
	"fmt"
	"reflect"

	"github.com/pengKiina/trainwatch/internal/domain"
)

// FieldEquals matches records whose value under field deep-equals want.
// Numeric comparisons are done on the float64 view so that an integer in the
// caller's hands still matches the float64 a JSON decode produces.
func FieldEquals(field string, want any) Condition {
	return func(rec domain.Record) bool {
		got, ok := rec[field]
		if !ok {
			return false
		}
		if wantNum, ok := toFloat(want); ok {
			gotNum, ok := rec.Float(field)
			return ok && gotNum == wantNum
		}
		return reflect.DeepEqual(got, want)
	}
}

// FieldGreaterThan matches records whose numeric value under field exceeds
// threshold. Missing or non-numeric values never match.
func FieldGreaterThan(field string, threshold float64) Condition {
	return func(rec domain.Record) bool {
		v, ok := rec.Float(field)
		return ok && v > threshold
	}
}

// FieldLessThan matches records whose numeric value under field is below
// threshold. Missing or non-numeric values never match.
func FieldLessThan(field string, threshold float64) Condition {
	return func(rec domain.Record) bool {
		v, ok := rec.Float(field)
		return ok && v < threshold
	}
}

// FieldExists matches records that carry the field at all.
func FieldExists(field string) Condition {
	return func(rec domain.Record) bool {
		_, ok := rec[field]
		return ok
	}
}

// Comparison operators accepted in a FieldCondition.
const (
	OpEquals      = "eq"
	OpGreaterThan = "gt"
	OpLessThan    = "lt"
	OpExists      = "exists"
)

// FieldCondition is the serializable form of a condition, used by the HTTP
// search endpoint and the config file.
type FieldCondition struct {
	Field string `json:"field" yaml:"field"`
	Op    string `json:"op" yaml:"op"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Compile turns the declarative form into an executable Condition.
func (fc FieldCondition) Compile() (Condition, error) {
	if fc.Field == "" {
		return nil, fmt.Errorf("condition field is required")
	}
	switch fc.Op {
	case OpEquals:
		return FieldEquals(fc.Field, fc.Value), nil
	case OpGreaterThan, OpLessThan:
		threshold, ok := toFloat(fc.Value)
		if !ok {
			return nil, fmt.Errorf("condition %q on %q needs a numeric value, got %T", fc.Op, fc.Field, fc.Value)
		}
		if fc.Op == OpGreaterThan {
			return FieldGreaterThan(fc.Field, threshold), nil
		}
		return FieldLessThan(fc.Field, threshold), nil
	case OpExists:
		return FieldExists(fc.Field), nil
	default:
		return nil, fmt.Errorf("unknown condition op %q", fc.Op)
	}
}

// CompileAll compiles every declarative condition, failing on the first bad
// one.
func CompileAll(fcs []FieldCondition) ([]Condition, error) {
	conds := make([]Condition, 0, len(fcs))
	for i, fc := range fcs {
		cond, err := fc.Compile()
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
