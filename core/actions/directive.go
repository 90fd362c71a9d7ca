package actions

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const maxDirectiveDepth = 8

// Directive is a structured instruction embedded in a reply.
type Directive struct {
	Type       string
	Parameters map[string]string
}

// Param returns the first non-empty parameter among names.
func (d Directive) Param(names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(d.Parameters[name]); value != "" {
			return value
		}
	}
	return ""
}

// Span is the byte range [Start, End) of a directive inside a reply.
type Span struct {
	Start int
	End   int
}

// TryParse finds the first JSON object in reply that carries a string
// "action" field. Prose before and after the object is ignored, as are
// objects nested deeper than a few levels.
func TryParse(reply string) (Directive, Span, bool) {
	for start := strings.IndexByte(reply, '{'); start >= 0; {
		if end := matchBrace(reply, start); end > start {
			if directive, ok := decodeDirective(reply[start:end]); ok {
				return directive, Span{Start: start, End: end}, true
			}
		}

		next := strings.IndexByte(reply[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return Directive{}, Span{}, false
}

// matchBrace returns the index just past the brace closing the one at pos,
// or -1 if it is unbalanced or nested too deep. Braces inside JSON strings
// do not count.
func matchBrace(text string, pos int) int {
	depth := 0
	inString := false
	escaped := false
	for i := pos; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
			if depth > maxDirectiveDepth {
				return -1
			}
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func decodeDirective(candidate string) (Directive, bool) {
	decoder := json.NewDecoder(strings.NewReader(candidate))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return Directive{}, false
	}
	action, ok := fields["action"].(string)
	if !ok || strings.TrimSpace(action) == "" {
		return Directive{}, false
	}

	directive := Directive{Type: strings.TrimSpace(action), Parameters: map[string]string{}}
	for key, value := range fields {
		if key == "action" {
			continue
		}
		// parameters may come wrapped in their own object
		if nested, ok := value.(map[string]any); ok && (key == "parameters" || key == "params" || key == "args") {
			for nestedKey, nestedValue := range nested {
				directive.Parameters[nestedKey] = stringify(nestedValue)
			}
			continue
		}
		directive.Parameters[key] = stringify(value)
	}
	return directive, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(v); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}

// Strip removes the directive at span from reply, along with a code fence
// wrapped around it, and collapses the remaining whitespace.
func Strip(reply string, span Span) string {
	if span.Start < 0 || span.End > len(reply) || span.Start >= span.End {
		return strings.Join(strings.Fields(reply), " ")
	}

	before := strings.TrimRight(reply[:span.Start], " \t\r\n")
	after := strings.TrimLeft(reply[span.End:], " \t\r\n")
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasSuffix(before, fence) && strings.HasPrefix(after, "```") {
			before = strings.TrimSuffix(before, fence)
			after = strings.TrimPrefix(after, "```")
			break
		}
	}

	return strings.Join(strings.Fields(before+" "+after), " ")
}
