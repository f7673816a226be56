// Package template renders RunbookStep command strings by substituting
// {{ dotted.path }} tokens against the alert/server/vars/execution context,
// in the style of the scrubber's compiled-pattern-table idiom: a single
// compiled pattern run once over the input, rather than a full expression
// language.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// ErrUndefined is returned (wrapped) when a token resolves to nothing and
// the engine is not running in lenient mode.
type ErrUndefined struct {
	Token string
}

func (e *ErrUndefined) Error() string {
	return fmt.Sprintf("undefined template token %q", e.Token)
}

// Context is the nested value set tokens resolve against: alert.*,
// server.*, vars.*, extracted.*, execution.*, and the bare "now" key.
type Context map[string]any

// Render substitutes every {{ token }} in s against ctx. When lenient is
// false, an unresolved token is a hard error (TemplateResolution); when
// true, it is replaced with an empty string.
func Render(s string, ctx Context, lenient bool) (string, error) {
	var firstErr error
	out := tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		path := tokenPattern.FindStringSubmatch(match)[1]
		val, ok := lookup(ctx, path)
		if !ok {
			if lenient {
				return ""
			}
			firstErr = &ErrUndefined{Token: path}
			return match
		}
		return toString(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// lookup resolves a dotted path against nested maps.
func lookup(ctx Context, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(ctx)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			if mc, ok2 := cur.(Context); ok2 {
				m = map[string]any(mc)
			} else {
				return nil, false
			}
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
