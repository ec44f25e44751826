package tools

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
)

// StringArg is a tool argument advertised as a string. Decoding only records
// presence: any JSON value is accepted and kept verbatim, so a wrongly typed
// argument reaches the tool instead of failing the call.
type StringArg struct {
	raw json.RawMessage
}

// StringArgOf returns a StringArg holding s, as if decoded from a JSON string.
func StringArgOf(s string) StringArg {
	b, _ := json.Marshal(s)
	return StringArg{raw: b}
}

// UnmarshalJSON stores b without interpreting it. A JSON null is recorded as
// present.
func (a *StringArg) UnmarshalJSON(b []byte) error {
	a.raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON writes the value as received, or null when absent.
func (a StringArg) MarshalJSON() ([]byte, error) {
	if a.raw == nil {
		return []byte("null"), nil
	}
	return a.raw, nil
}

// JSONSchema is used by the jsonschema reflector in place of the struct
// layout.
func (StringArg) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

// Present reports whether the argument appeared in the params object.
func (a StringArg) Present() bool { return a.raw != nil }

// Raw returns the argument's JSON text, nil when absent.
func (a StringArg) Raw() json.RawMessage { return a.raw }

// Str returns the decoded value when the argument is a JSON string.
func (a StringArg) Str() (string, bool) {
	if len(a.raw) == 0 || a.raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(a.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Text renders the argument the way a dynamically typed host prints a
// decoded JSON value: strings bare, null as None, booleans as True/False,
// containers with quoted strings. An absent argument renders as "".
func (a StringArg) Text() string {
	if s, ok := a.Str(); ok {
		return s
	}
	if len(a.raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(a.raw))
	dec.UseNumber()
	var sb strings.Builder
	if err := writeValue(&sb, dec); err != nil {
		return string(a.raw)
	}
	return sb.String()
}

func writeValue(sb *strings.Builder, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case nil:
		sb.WriteString("None")
	case bool:
		if v {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case json.Number:
		sb.WriteString(v.String())
	case string:
		sb.WriteString(quote(v))
	case json.Delim:
		switch v {
		case '[':
			sb.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					sb.WriteString(", ")
				}
				if err := writeValue(sb, dec); err != nil {
					return err
				}
			}
			sb.WriteByte(']')
		case '{':
			sb.WriteByte('{')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					sb.WriteString(", ")
				}
				key, err := dec.Token()
				if err != nil {
					return err
				}
				k, _ := key.(string)
				sb.WriteString(quote(k))
				sb.WriteString(": ")
				if err := writeValue(sb, dec); err != nil {
					return err
				}
			}
			sb.WriteByte('}')
		}
		// closing delimiter
		if _, err := dec.Token(); err != nil {
			return err
		}
	default:
		return io.ErrUnexpectedEOF
	}
	return nil
}

// quote wraps s in single quotes, switching to double quotes when s holds a
// single quote but no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var sb strings.Builder
	sb.WriteByte(q)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == q:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(q)
	return sb.String()
}
