package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/randalmurphal/turngraph/pkg/turngraph/errors"
)

// Classify invokes a classifier prompt and returns one of labels.
//
// The reply is accepted when, after trimming quotes, fences and case, it
// equals a label, is a JSON object with a single string value equal to a
// label, or mentions exactly one label as a whole word. Anything else is an
// *errors.OutputError.
func (inv Invoker) Classify(ctx context.Context, p Prompt, vars map[string]any, labels []string) (string, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("classify %s: no labels", p.name())
	}

	reply, err := inv.Invoke(ctx, p, vars)
	if err != nil {
		return "", err
	}

	label, ok := ParseLabel(reply, labels)
	if !ok {
		return "", &errors.OutputError{
			Output:  reply,
			Message: fmt.Sprintf("%s: expected one of %s", p.name(), strings.Join(labels, ", ")),
		}
	}
	return label, nil
}

// ParseLabel extracts a label from a classifier reply. Matching is
// case-insensitive; the returned label uses the casing given in labels.
func ParseLabel(reply string, labels []string) (string, bool) {
	norm := normalizeReply(reply)

	if l, ok := matchLabel(norm, labels); ok {
		return l, true
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stripJSONFence(reply))), &obj); err == nil && len(obj) == 1 {
		for _, v := range obj {
			if s, ok := v.(string); ok {
				return matchLabel(normalizeReply(s), labels)
			}
		}
	}

	words := strings.FieldsFunc(norm, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var found []string
	for _, l := range labels {
		if slices.Contains(words, strings.ToLower(l)) {
			found = append(found, l)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func matchLabel(norm string, labels []string) (string, bool) {
	for _, l := range labels {
		if norm == strings.ToLower(l) {
			return l, true
		}
	}
	return "", false
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSuffix(s, "```")
}
