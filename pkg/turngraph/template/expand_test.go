package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_Placeholders(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		vars     map[string]any
		expected string
	}{
		{
			name:     "simple variable",
			input:    "Hello {name}",
			vars:     map[string]any{"name": "World"},
			expected: "Hello World",
		},
		{
			name:     "multiple variables",
			input:    "{greeting} {name}!",
			vars:     map[string]any{"greeting": "Hello", "name": "World"},
			expected: "Hello World!",
		},
		{
			name:     "adjacent variables",
			input:    "{a}{b}{c}",
			vars:     map[string]any{"a": "1", "b": "2", "c": "3"},
			expected: "123",
		},
		{
			name:     "repeated variable",
			input:    "{x} and {x}",
			vars:     map[string]any{"x": "y"},
			expected: "y and y",
		},
		{
			name:     "numeric value",
			input:    "limit {n}",
			vars:     map[string]any{"n": 30},
			expected: "limit 30",
		},
		{
			name:     "float value",
			input:    "soh {v}",
			vars:     map[string]any{"v": 91.5},
			expected: "soh 91.5",
		},
		{
			name:     "boolean value",
			input:    "enabled: {enabled}",
			vars:     map[string]any{"enabled": true},
			expected: "enabled: true",
		},
		{
			name:     "nil value",
			input:    "[{v}]",
			vars:     map[string]any{"v": nil},
			expected: "[]",
		},
		{
			name:     "underscore and digits",
			input:    "{db_info_2}",
			vars:     map[string]any{"db_info_2": "schema"},
			expected: "schema",
		},
		{
			name:     "korean text is inserted verbatim",
			input:    "질문: {question}",
			vars:     map[string]any{"question": "배터리 상태는?"},
			expected: "질문: 배터리 상태는?",
		},
	}

	exp := NewExpander()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exp.Expand(tt.input, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpand_Braces(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"escaped open and close", "{{name}}", "{name}"},
		{"escaped around placeholder", "{{{name}}}", "{World}"},
		{"json object passes through", `{"car_type": "EV6"}`, `{"car_type": "EV6"}`},
		{"unterminated brace", "value {name", "value {name"},
		{"empty braces", "{}", "{}"},
		{"name with space", "{not a name}", "{not a name}"},
		{"leading digit", "{1abc}", "{1abc}"},
		{"lone close brace", "a } b", "a } b"},
	}

	exp := NewExpander()
	vars := map[string]any{"name": "World"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exp.Expand(tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpand_StructuredValues(t *testing.T) {
	rows := []map[string]any{
		{"car_type": "EV6", "soh": 91.2},
	}

	got, err := NewExpander().Expand("rows: {rows}", map[string]any{"rows": rows})
	require.NoError(t, err)
	assert.Equal(t, `rows: [{"car_type":"EV6","soh":91.2}]`, got)

	got, err = NewExpander().Expand("{v}", map[string]any{"v": map[string]string{"q": "a<b & c"}})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a<b & c"}`, got, "HTML characters stay unescaped")

	got, err = NewExpander().Expand("{v}", map[string]any{"v": map[string]string{"name": "아이오닉"}})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"아이오닉"}`, got)
}

func TestExpand_JSONIndent(t *testing.T) {
	exp := NewExpander(WithJSONIndent("  "))

	got, err := exp.Expand("{v}", map[string]any{"v": map[string]int{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", got)
}

func TestExpand_UnencodableValue(t *testing.T) {
	_, err := NewExpander().Expand("{fn}", map[string]any{"fn": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fn")
}

type stringer struct{}

func (stringer) String() string { return "stringer-value" }

func TestExpand_Stringer(t *testing.T) {
	got, err := NewExpander().Expand("{s}", map[string]any{"s": stringer{}})
	require.NoError(t, err)
	assert.Equal(t, "stringer-value", got)
}

func TestExpand_MissingVariables(t *testing.T) {
	t.Run("keep", func(t *testing.T) {
		got, err := NewExpander().Expand("Hello {name}", nil)
		require.NoError(t, err)
		assert.Equal(t, "Hello {name}", got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := NewExpander(WithMissingAction(MissingEmpty)).Expand("Hello {name}!", nil)
		require.NoError(t, err)
		assert.Equal(t, "Hello !", got)
	})

	t.Run("error lists every missing name", func(t *testing.T) {
		exp := NewExpander(WithMissingAction(MissingError))
		got, err := exp.Expand("{a} {b} {c}", map[string]any{"b": "x"})

		var uerr *UndefinedVariableError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, []string{"a", "c"}, uerr.Names)
		assert.Equal(t, "{a} x {c}", got)
	})
}

func TestExpand_EmptyInput(t *testing.T) {
	got, err := NewExpander(WithMissingAction(MissingError)).Expand("", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders(`{question} uses {db_info}; {{escaped}} {"json": 1} {question}`)
	assert.Equal(t, []string{"question", "db_info"}, names)
	assert.Nil(t, Placeholders("no placeholders"))
}

func TestUndefinedVariableError(t *testing.T) {
	assert.Equal(t, "undefined variable: x", (&UndefinedVariableError{Names: []string{"x"}}).Error())
	assert.Equal(t, "undefined variables: x, y", (&UndefinedVariableError{Names: []string{"x", "y"}}).Error())
}

func TestExpand_SQLPrompt(t *testing.T) {
	prompt := "Schema:\n{db_info}\n\nQuestion: {question}\nReturn ```sql ...``` with limit {limit}."
	got, err := NewExpander(WithMissingAction(MissingError)).Expand(prompt, map[string]any{
		"db_info":  "TABLE ev_battery(car_type TEXT, soh REAL)",
		"question": "SOH가 가장 낮은 차량은?",
		"limit":    30,
	})
	require.NoError(t, err)
	assert.Contains(t, got, "TABLE ev_battery(car_type TEXT, soh REAL)")
	assert.Contains(t, got, "SOH가 가장 낮은 차량은?")
	assert.Contains(t, got, "limit 30")
}
