package template

// MissingAction decides what Expand does with a placeholder whose
// variable is absent.
type MissingAction int

const (
	// MissingKeep leaves "{name}" in the output. Default.
	MissingKeep MissingAction = iota
	// MissingEmpty drops the placeholder.
	MissingEmpty
	// MissingError fails with *UndefinedVariableError.
	MissingError
)

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets the policy for absent variables. Prompt
// rendering uses MissingError so a typo in a key fails loudly.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) { e.missingAction = action }
}

// WithJSONIndent indents maps and slices that are rendered as JSON.
func WithJSONIndent(indent string) Option {
	return func(e *Expander) { e.jsonIndent = indent }
}
