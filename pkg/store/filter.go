package store

import (
	"fmt"
	"strings"
)

// Operators accepted in ad-hoc filters. Everything else is rejected before
// the filter ever reaches a backend.
var allowedOperators = map[string]bool{
	"$eq":     true,
	"$gt":     true,
	"$lt":     true,
	"$in":     true,
	"$exists": true,
}

// ValidateFilter rejects filters using operators outside the allow-list.
func ValidateFilter(filter map[string]interface{}) error {
	for key, value := range filter {
		if strings.HasPrefix(key, "$") && !allowedOperators[key] {
			return fmt.Errorf("unsupported operator %q", key)
		}
		if nested, ok := value.(map[string]interface{}); ok {
			if err := ValidateFilter(nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// MatchFilter reports whether a document satisfies the filter. Field values
// compare with $eq semantics by default; a nested object applies its
// operators to the named field.
func MatchFilter(doc, filter map[string]interface{}) bool {
	for field, cond := range filter {
		ops, isOps := cond.(map[string]interface{})
		if !isOps {
			if !valuesEqual(doc[field], cond) {
				return false
			}
			continue
		}
		for op, operand := range ops {
			if !matchOperator(doc, field, op, operand) {
				return false
			}
		}
	}
	return true
}

func matchOperator(doc map[string]interface{}, field, op string, operand interface{}) bool {
	value, present := doc[field]
	switch op {
	case "$eq":
		return valuesEqual(value, operand)
	case "$gt":
		a, aok := asNumber(value)
		b, bok := asNumber(operand)
		return aok && bok && a > b
	case "$lt":
		a, aok := asNumber(value)
		b, bok := asNumber(operand)
		return aok && bok && a < b
	case "$in":
		list, ok := operand.([]interface{})
		if !ok {
			return false
		}
		for _, candidate := range list {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false
		}
		return present == want
	default:
		return false
	}
}

func valuesEqual(a, b interface{}) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

func asNumber(v interface{}) (float64, bool) {
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
