// Package rules implements the auto-analyze rules engine: priority-ordered
// condition matching against an alert, with a json_logic override path and
// per-rule cooldown.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Matches evaluates c against data, a flattened view of the alert (labels,
// annotations, severity, name, …) addressed by dot path. Operator dispatch
// mirrors the condition language: eq/ne/contains/regex/gt/lt/in/not_in/exists.
func Matches(c model.Condition, data map[string]any) bool {
	switch {
	case len(c.And) > 0:
		for _, sub := range c.And {
			if !Matches(sub, data) {
				return false
			}
		}
		return true
	case len(c.Or) > 0:
		for _, sub := range c.Or {
			if Matches(sub, data) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !Matches(*c.Not, data)
	}

	actual, exists := getFieldValue(data, c.Field)

	switch c.Operator {
	case model.OpExists:
		return exists
	case model.OpEq:
		return exists && valuesEqual(actual, c.Value)
	case model.OpNe:
		return !exists || !valuesEqual(actual, c.Value)
	case model.OpContains:
		return exists && strings.Contains(toString(actual), toString(c.Value))
	case model.OpRegex:
		if !exists {
			return false
		}
		re, err := regexp.Compile(toString(c.Value))
		if err != nil {
			return false
		}
		return re.MatchString(toString(actual))
	case model.OpGt:
		af, aok := toFloat(actual)
		bf, bok := toFloat(c.Value)
		return exists && aok && bok && af > bf
	case model.OpLt:
		af, aok := toFloat(actual)
		bf, bok := toFloat(c.Value)
		return exists && aok && bok && af < bf
	case model.OpIn:
		return exists && valueIn(actual, c.Value)
	case model.OpNotIn:
		return !exists || !valueIn(actual, c.Value)
	default:
		return false
	}
}

// getFieldValue resolves a dot-separated path ("labels.severity") against a
// nested map.
func getFieldValue(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func valueIn(actual, set any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}
