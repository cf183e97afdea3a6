package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Template is a parsed string with {{path}} references.
type Template struct {
	tokens []token
}

type token struct {
	text string // literal text, or the raw "{{ ... }}" for a reference
	path []string
}

func (t token) isRef() bool { return t.path != nil }

// ParseTemplate splits s into literal and reference tokens. An opening
// delimiter without a matching close, or with an empty path, stays literal.
func ParseTemplate(s string) Template {
	var tokens []token
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			break
		}
		end += start + len(openDelim)

		raw := rest[start : end+len(closeDelim)]
		path := strings.TrimSpace(rest[start+len(openDelim) : end])
		if start > 0 {
			tokens = append(tokens, token{text: rest[:start]})
		}
		if path == "" {
			tokens = append(tokens, token{text: raw})
		} else {
			tokens = append(tokens, token{text: raw, path: strings.Split(path, ".")})
		}
		rest = rest[end+len(closeDelim):]
	}
	if rest != "" {
		tokens = append(tokens, token{text: rest})
	}
	return Template{tokens: tokens}
}

// HasRefs reports whether the template contains at least one reference.
func (t Template) HasRefs() bool {
	for _, tok := range t.tokens {
		if tok.isRef() {
			return true
		}
	}
	return false
}

// Render resolves references against scopes in order. References that no
// scope can resolve are written back verbatim.
func (t Template) Render(scopes ...map[string]any) string {
	var b strings.Builder
	for _, tok := range t.tokens {
		if !tok.isRef() {
			b.WriteString(tok.text)
			continue
		}
		v, ok := lookup(tok.path, scopes)
		if !ok {
			b.WriteString(tok.text)
			continue
		}
		b.WriteString(stringify(v))
	}
	return b.String()
}

// Render parses and renders s in one step.
func Render(s string, scopes ...map[string]any) string {
	if !strings.Contains(s, openDelim) {
		return s
	}
	return ParseTemplate(s).Render(scopes...)
}

// RenderValue renders every string found in v, descending into maps and
// slices. Other values are returned unchanged.
func RenderValue(v any, scopes ...map[string]any) any {
	switch val := v.(type) {
	case string:
		return Render(val, scopes...)
	case map[string]any:
		return RenderConfig(val, scopes...)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RenderValue(item, scopes...)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = Render(item, scopes...)
		}
		return out
	default:
		return v
	}
}

// RenderConfig returns a new map with every string value rendered.
func RenderConfig(cfg map[string]any, scopes ...map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = RenderValue(v, scopes...)
	}
	return out
}

// lookup resolves path in the first scope that has it. A flat key equal to
// the joined path is preferred over nested traversal.
func lookup(path []string, scopes []map[string]any) (any, bool) {
	flat := strings.Join(path, ".")
	for _, scope := range scopes {
		if scope == nil {
			continue
		}
		if v, ok := scope[flat]; ok {
			return v, true
		}
		if len(path) == 1 {
			continue
		}
		if c := gabs.Wrap(scope).Search(path...); c != nil {
			return c.Data(), true
		}
	}
	return nil, false
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
