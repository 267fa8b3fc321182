package vectorstore

import "reflect"

// Matches reports whether metadata satisfies every condition in filter.
// A nil or empty filter matches everything.
func (f Filter) Matches(metadata map[string]any) bool {
	for key, want := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}

		if op, operand, isOp := operatorExpression(want); isOp {
			if !compareNumeric(op, got, operand) {
				return false
			}
			continue
		}

		if !equalValue(got, want) {
			return false
		}
	}
	return true
}

// operatorExpression unpacks a single-key {"$op": operand} map.
func operatorExpression(v any) (op string, operand any, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap || len(m) != 1 {
		return "", nil, false
	}
	for k, val := range m {
		if len(k) > 1 && k[0] == '$' {
			return k, val, true
		}
	}
	return "", nil, false
}

func compareNumeric(op string, got, operand any) bool {
	gv, ok1 := toFloat(got)
	ov, ok2 := toFloat(operand)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case "$gt":
		return gv > ov
	case "$lt":
		return gv < ov
	default:
		return false
	}
}

// equalValue compares numbers loosely enough that a numeric filter value
// matches the same number regardless of its concrete Go type (JSON decoding
// yields float64 where the writer may have stored an int). Everything else
// compares structurally: metadata legitimately carries map and slice values,
// and == on two interfaces holding the same uncomparable type would panic.
func equalValue(got, want any) bool {
	if gv, ok := toFloat(got); ok {
		if wv, ok := toFloat(want); ok {
			return gv == wv
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
