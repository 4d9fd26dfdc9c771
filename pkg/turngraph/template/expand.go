package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Expander expands {name} placeholders in prompt text.
//
// Create with NewExpander() and configure with Option functions.
// Expander is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
	jsonIndent    string
}

// NewExpander creates a new Expander with the given options.
//
// Default configuration:
//   - MissingAction: MissingKeep (keep placeholders as-is)
//   - JSON values are compact
//
// Example:
//
//	exp := NewExpander(
//	    WithMissingAction(MissingError),
//	    WithJSONIndent("  "),
//	)
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces {name} placeholders in s with values from vars.
//
// Names start with a letter or underscore and contain letters, digits and
// underscores. "{{" and "}}" produce literal braces. A brace that does not
// open a valid placeholder is copied through, so JSON or SQL in a prompt
// needs no escaping.
//
// Strings are inserted verbatim, numbers and booleans via fmt, nil as "".
// Anything else (rows, schemas) is JSON-encoded without HTML escaping so
// non-ASCII text stays readable.
//
// Errors are returned when MissingAction is MissingError and a variable
// is not found, or when a value cannot be JSON-encoded.
//
// Example:
//
//	exp := NewExpander()
//	result, err := exp.Expand("Question: {question}", map[string]any{"question": "SOH?"})
//	// result: "Question: SOH?"
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var (
		b       strings.Builder
		missing []string
	)
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 || !validName(s[i+1:i+1+end]) {
				b.WriteByte(c)
				i++
				continue
			}
			name := s[i+1 : i+1+end]
			placeholder := s[i : i+2+end]
			i += 2 + end

			val, ok := vars[name]
			if !ok {
				switch e.missingAction {
				case MissingEmpty:
				case MissingError:
					missing = append(missing, name)
					b.WriteString(placeholder)
				default: // MissingKeep
					b.WriteString(placeholder)
				}
				continue
			}
			text, err := e.format(val)
			if err != nil {
				return "", fmt.Errorf("format variable %s: %w", name, err)
			}
			b.WriteString(text)
		default:
			b.WriteByte(c)
			i++
		}
	}

	if len(missing) > 0 {
		return b.String(), &UndefinedVariableError{Names: missing}
	}
	return b.String(), nil
}

// Placeholders lists the distinct placeholder names in s, in order of
// first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for i := 0; i < len(s); {
		if s[i] == '{' && i+1 < len(s) && s[i+1] == '{' {
			i += 2
			continue
		}
		if s[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], '}')
		if end < 0 || !validName(s[i+1:i+1+end]) {
			i++
			continue
		}
		name := s[i+1 : i+1+end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += 2 + end
	}
	return names
}

func (e *Expander) format(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if e.jsonIndent != "" {
		enc.SetIndent("", e.jsonIndent)
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// UndefinedVariableError is returned when MissingError is set and
// one or more variables are not found.
type UndefinedVariableError struct {
	// Names is the list of undefined variable names.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}
