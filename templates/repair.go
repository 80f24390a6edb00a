/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoJSON is returned when a response contains nothing resembling JSON
var ErrNoJSON = errors.New("no JSON value found in response")

// listKeys are the wrapper keys searched when a list was expected but an object arrived
var listKeys = []string{"tasks", "plan", "items", "result"}

// Parse decodes a model response leniently. It tolerates markdown code fences,
// prose around the value, trailing commas, raw newlines inside strings, Python
// literals and truncated output. Numbers decode as json.Number.
func Parse(response string) (any, error) {
	text := strings.TrimSpace(strings.TrimPrefix(response, "\ufeff"))
	if text == "" {
		return nil, ErrNoJSON
	}

	if v, err := decode(text); err == nil {
		return v, nil
	}

	if fenced := extractFromCodeFence(text); fenced != "" {
		if v, err := decode(fenced); err == nil {
			return v, nil
		}
		text = fenced
	}

	repaired, err := Repair(text)
	if err != nil {
		return nil, err
	}
	v, err := decode(repaired)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repaired JSON: %w", err)
	}
	return v, nil
}

// ParseObject parses a response that must be a JSON object
func ParseObject(response string) (map[string]any, error) {
	v, err := Parse(response)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", kind(v))
	}
	return obj, nil
}

// ParseList parses a response that should be a JSON array. When an object is
// returned instead, the first array under tasks, plan, items or result is used.
func ParseList(response string) ([]any, error) {
	v, err := Parse(response)
	if err != nil {
		return nil, err
	}
	return AsList(v), nil
}

// AsList unwraps v to a list, returning nil when no list can be found
func AsList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := t[key].([]any); ok {
				return list
			}
		}
	}
	return nil
}

// AsString coerces a decoded JSON value to text. Objects and arrays are
// re-encoded as indented JSON; null becomes the empty string.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// AsBool coerces a decoded JSON value to a boolean. Only true and the
// case-insensitive string "true" are true.
func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

// Repair rewrites a near-JSON response into valid JSON text. It starts at the
// first '{' or '[' and stops when that value is closed, closing any
// unterminated string or bracket at the end of input.
func Repair(response string) (string, error) {
	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return "", ErrNoJSON
	}
	src := response[start:]

	var (
		out      bytes.Buffer
		stack    []byte
		inString bool
		quote    byte
		escaped  bool
	)

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(c)
			case c == '\\':
				escaped = true
				out.WriteByte(c)
			case c == quote:
				inString = false
				out.WriteByte('"')
			case c == '"':
				// double quote inside a single-quoted string
				out.WriteString(`\"`)
			case c == '\n':
				out.WriteString(`\n`)
			case c == '\r':
				out.WriteString(`\r`)
			case c == '\t':
				out.WriteString(`\t`)
			default:
				out.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
			out.WriteByte('"')
		case '{', '[':
			stack = append(stack, c)
			out.WriteByte(c)
		case '}', ']':
			trimTrailingComma(&out)
			if len(stack) == 0 {
				return out.String(), nil
			}
			stack = stack[:len(stack)-1]
			out.WriteByte(c)
			if len(stack) == 0 {
				return out.String(), nil
			}
		default:
			if isIdentStart(c) {
				j := i
				for j < len(src) && isIdentPart(src[j]) {
					j++
				}
				out.WriteString(literal(src[i:j]))
				i = j - 1
				continue
			}
			out.WriteByte(c)
		}
	}

	// Truncated input: close whatever is still open
	if inString {
		if escaped {
			out.Truncate(out.Len() - 1)
		}
		out.WriteByte('"')
	}
	trimTrailingComma(&out)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			trimDanglingKey(&out)
			out.WriteByte('}')
		} else {
			out.WriteByte(']')
		}
	}
	return out.String(), nil
}

// decode parses text strictly, keeping numbers as json.Number
func decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// extractFromCodeFence returns the body of the first ``` fence, or "" if none.
// An unterminated fence yields everything after the opening line.
func extractFromCodeFence(response string) string {
	idx := strings.Index(response, "```")
	if idx == -1 {
		return ""
	}
	rest := response[idx+3:]
	// skip the language tag
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	} else {
		return ""
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// trimTrailingComma removes a trailing comma (and whitespace) from out
func trimTrailingComma(out *bytes.Buffer) {
	b := bytes.TrimRight(out.Bytes(), " \t\r\n")
	if len(b) > 0 && b[len(b)-1] == ',' {
		out.Truncate(len(b) - 1)
	}
}

// trimDanglingKey drops an object member cut off after its key or colon
func trimDanglingKey(out *bytes.Buffer) {
	b := bytes.TrimRight(out.Bytes(), " \t\r\n")
	if len(b) > 0 && b[len(b)-1] == ':' {
		b = bytes.TrimRight(b[:len(b)-1], " \t\r\n")
	} else if len(b) == 0 || b[len(b)-1] != '"' {
		return
	}
	// b now ends with a quoted key if a member is dangling; find its opening quote
	if len(b) == 0 || b[len(b)-1] != '"' {
		return
	}
	open := bytes.LastIndexByte(b[:len(b)-1], '"')
	if open == -1 {
		return
	}
	before := bytes.TrimRight(b[:open], " \t\r\n")
	if len(before) == 0 {
		return
	}
	switch before[len(before)-1] {
	case '{':
		out.Truncate(len(before))
	case ',':
		out.Truncate(len(before) - 1)
	}
}

func literal(word string) string {
	switch word {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None", "undefined", "NaN":
		return "null"
	default:
		return word
	}
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func kind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
