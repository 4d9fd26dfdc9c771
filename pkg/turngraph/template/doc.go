/*
Package template renders prompt text with {name} placeholders.

# Basic Usage

	exp := template.NewExpander()
	out, err := exp.Expand("Question: {question}", map[string]any{
	    "question": "Which vehicle has the lowest SOH?",
	})

Strict rendering reports missing variables:

	exp := template.NewExpander(template.WithMissingAction(template.MissingError))
	out, err := exp.Expand(systemPrompt, vars)

Placeholders lists the names a text expects, so callers can check a
prompt against the variables they supply before rendering it.

# Values

Strings are inserted verbatim. Numbers and booleans are formatted with fmt.
Slices, maps and structs (query rows, schema descriptions) are JSON-encoded
without HTML escaping:

	exp.Expand("rows: {rows}", map[string]any{
	    "rows": []map[string]any{{"car_type": "EV6", "soh": 91.2}},
	})
	// rows: [{"car_type":"EV6","soh":91.2}]

# Braces

"{{" and "}}" render literal braces. A brace that does not start a valid
placeholder ({ followed by a name and }) is copied through unchanged, so
JSON examples inside prompts usually need no escaping.

# Thread Safety

Expander is immutable after construction and safe for concurrent use.
*/
package template
