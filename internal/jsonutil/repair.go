// Package jsonutil provides JSON salvage for near-valid model output and
// the canonical encoding used for checkpoint integrity hashing.
package jsonutil

import (
	"encoding/json"
	"strings"
)

// ParseWithRepair parses raw model output as JSON. When the direct parse
// fails and allowRepair is true, the ordered repair pipeline is applied and
// the parse retried. The returned bytes are always valid JSON. Repair never
// changes the semantics of already-valid JSON: parse(repair(x)) == parse(x)
// whenever parse(x) succeeds.
func ParseWithRepair(raw string, allowRepair bool) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	if !allowRepair {
		return nil, &RepairError{Reason: "invalid JSON and repair disabled", Original: raw}
	}

	repaired := Repair(raw)
	if !json.Valid([]byte(repaired)) {
		return nil, &RepairError{Reason: "invalid JSON after repair", Original: raw}
	}
	return json.RawMessage(repaired), nil
}

// RepairError reports an unrecoverable parse, retaining the original text.
type RepairError struct {
	Reason   string
	Original string
}

func (e *RepairError) Error() string {
	return "json repair: " + e.Reason
}

// Repair applies the full salvage pipeline, in order: trim; strip fenced
// code markers; extract the first brace-balanced object; remove trailing
// commas; quote bare object keys; rewrite single-quoted strings; strip C0
// control characters outside strings; escape raw newlines inside strings.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripCodeFences(s)
	if extracted := extractObject(s); extracted != "" {
		s = extracted
	}
	s = removeTrailingCommas(s)
	s = quoteBareKeys(s)
	s = rewriteSingleQuotes(s)
	s = stripControlChars(s)
	s = escapeRawNewlines(s)
	return s
}

// stripCodeFences removes leading/trailing markdown code fences such as
// ```json ... ```.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	// Drop an optional language tag up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractObject returns the first brace-balanced {...} substring, honoring
// string and escape state. Empty when no balanced object exists.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// scanState tracks string and escape state while walking byte-wise through
// candidate JSON. quote is the active string delimiter (0 when outside).
type scanState struct {
	quote   byte
	escaped bool
}

func (st *scanState) step(c byte) (inString bool) {
	if st.escaped {
		st.escaped = false
		return true
	}
	if st.quote != 0 {
		switch c {
		case '\\':
			st.escaped = true
		case st.quote:
			st.quote = 0
		}
		return true
	}
	if c == '"' || c == '\'' {
		st.quote = c
		return true
	}
	return false
}

// removeTrailingCommas drops commas that directly precede a closing brace
// or bracket (ignoring whitespace).
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var st scanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.step(c) {
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // skip the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys matching an identifier in double
// quotes. A bare identifier is treated as a key when the next non-space
// byte after it is a colon.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	var st scanState
	for i := 0; i < len(s); {
		c := s[i]
		if st.step(c) {
			b.WriteByte(c)
			i++
			continue
		}
		if isIdentStart(c) {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t' || s[k] == '\n' || s[k] == '\r') {
				k++
			}
			if k < len(s) && s[k] == ':' && !isJSONLiteral(word) {
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
				i = j
				continue
			}
			b.WriteString(word)
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isJSONLiteral(word string) bool {
	return word == "true" || word == "false" || word == "null"
}

// rewriteSingleQuotes converts single-quoted string tokens to double-quoted
// ones, unescaping \' and escaping embedded double quotes.
func rewriteSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c == '"' {
			// Copy an existing double-quoted string verbatim.
			b.WriteByte(c)
			i++
			for i < len(s) {
				b.WriteByte(s[i])
				if s[i] == '\\' && i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				} else if s[i] == '"' {
					i++
					break
				}
				i++
			}
			continue
		}
		if c == '\'' {
			b.WriteByte('"')
			i++
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) {
					if s[i+1] == '\'' {
						b.WriteByte('\'')
					} else {
						b.WriteByte('\\')
						b.WriteByte(s[i+1])
					}
					i += 2
					continue
				}
				if s[i] == '\'' {
					b.WriteByte('"')
					i++
					break
				}
				if s[i] == '"' {
					b.WriteString(`\"`)
					i++
					continue
				}
				b.WriteByte(s[i])
				i++
			}
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// stripControlChars removes C0 control characters except \n and \t outside
// of strings.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var st scanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		inString := st.step(c)
		if !inString && c < 0x20 && c != '\n' && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeRawNewlines rewrites literal newlines and tabs inside string tokens
// to their escape sequences, drops literal carriage returns, and removes
// remaining in-string control characters.
func escapeRawNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var st scanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		wasIn := st.quote != 0 || st.escaped
		inString := st.step(c)
		// Only rewrite content bytes of a string, not its delimiters.
		if inString && wasIn && st.quote != 0 {
			switch c {
			case '\n':
				b.WriteString(`\n`)
				continue
			case '\r':
				continue
			case '\t':
				b.WriteString(`\t`)
				continue
			default:
				if c < 0x20 {
					continue
				}
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
