package turngraph

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
)

// Base state keys carried by every Schema.
const (
	// KeyQuestion holds the user's question. Immutable once set.
	KeyQuestion = "question"
	// KeyMessages holds the conversation transcript. Updates append.
	KeyMessages = "messages"
	// KeyNextNode holds the label written by a classifier node for a
	// downstream router to read.
	KeyNextNode = "next_node"
)

// Role identifies the author of a Message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Node is the graph node that produced the message, if any.
	Node string `json:"node,omitempty"`
}

// AssistantMessage builds an assistant message attributed to node.
func AssistantMessage(node, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Node: node}
}

// State is the shared record flowing through a turn.
//
// Nodes receive a cloned read view and return an Update; the engine merges
// updates through the graph's Schema. Nodes never mutate State directly.
type State map[string]any

// Update is the partial state a node returns. Only named fields change.
type Update map[string]any

// Clone returns a deep copy of s. Slices and maps are copied at every
// depth, so a node editing its view (a query row, say) cannot reach the
// engine's record. Values behind pointers are still shared.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case []Message:
		return slices.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, row := range t {
			out[i] = cloneValue(row).(map[string]any)
		}
		return out
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		for iter := v.MapRange(); iter.Next(); {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneReflect(v.Elem()))
		return out
	default:
		return v
	}
}

// Question returns the question field.
func (s State) Question() string {
	v, _ := Get[string](s, KeyQuestion)
	return v
}

// Messages returns the transcript.
func (s State) Messages() []Message {
	v, _ := Get[[]Message](s, KeyMessages)
	return v
}

// NextNode returns the classifier label stored in next_node.
func (s State) NextNode() string {
	v, _ := Get[string](s, KeyNextNode)
	return v
}

// LastMessage returns the last transcript entry.
func (s State) LastMessage() (Message, bool) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Get returns the value stored under key as T.
// The second result is false when the key is absent or holds another type.
func Get[T any](s State, key string) (T, bool) {
	var zero T
	raw, ok := s[key]
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// MergeRule names how a field combines updates with its current value.
type MergeRule int

const (
	// MergeOverwrite replaces the current value.
	MergeOverwrite MergeRule = iota
	// MergeAppend concatenates the update onto the current slice.
	MergeAppend
	// MergeImmutable accepts the first value and rejects any change.
	MergeImmutable
	// MergeCustom uses a caller-provided function.
	MergeCustom
)

// String returns the rule name.
func (r MergeRule) String() string {
	switch r {
	case MergeOverwrite:
		return "overwrite"
	case MergeAppend:
		return "append"
	case MergeImmutable:
		return "immutable"
	case MergeCustom:
		return "custom"
	default:
		return fmt.Sprintf("MergeRule(%d)", int(r))
	}
}

// Field declares one state field and its merge rule.
// Build fields with Overwrite, Append, Immutable or Custom.
type Field struct {
	Name string
	Rule MergeRule
	Type reflect.Type

	merge  func(existing any, present bool, update any) (any, error)
	decode func(raw json.RawMessage) (any, error)
}

// Overwrite declares a field whose updates replace the current value.
func Overwrite[T any](name string) Field {
	return Field{
		Name: name,
		Rule: MergeOverwrite,
		Type: reflect.TypeFor[T](),
		merge: func(_ any, _ bool, update any) (any, error) {
			v, ok := update.(T)
			if !ok {
				return nil, fieldTypeError[T](update)
			}
			return v, nil
		},
		decode: decodeJSON[T],
	}
}

// Append declares a []T field. An update may carry a single T or a []T;
// either is appended after the existing elements.
func Append[T any](name string) Field {
	return Field{
		Name: name,
		Rule: MergeAppend,
		Type: reflect.TypeFor[[]T](),
		merge: func(existing any, present bool, update any) (any, error) {
			var cur []T
			if present && existing != nil {
				c, ok := existing.([]T)
				if !ok {
					return nil, fieldTypeError[[]T](existing)
				}
				cur = c
			}
			var add []T
			switch u := update.(type) {
			case T:
				add = []T{u}
			case []T:
				add = u
			default:
				return nil, fieldTypeError[[]T](update)
			}
			out := make([]T, 0, len(cur)+len(add))
			out = append(out, cur...)
			return append(out, add...), nil
		},
		decode: decodeJSON[[]T],
	}
}

// Immutable declares a field that may be set once. Re-setting it to an
// equal value is accepted; any other change fails the merge.
func Immutable[T any](name string) Field {
	return Field{
		Name: name,
		Rule: MergeImmutable,
		Type: reflect.TypeFor[T](),
		merge: func(existing any, present bool, update any) (any, error) {
			v, ok := update.(T)
			if !ok {
				return nil, fieldTypeError[T](update)
			}
			if present && existing != nil && !reflect.DeepEqual(existing, v) {
				return nil, ErrImmutableField
			}
			return v, nil
		},
		decode: decodeJSON[T],
	}
}

// Custom declares a field merged by fn. fn receives the zero value of T
// when the field is not yet set.
func Custom[T any](name string, fn func(existing, update T) (T, error)) Field {
	return Field{
		Name: name,
		Rule: MergeCustom,
		Type: reflect.TypeFor[T](),
		merge: func(existing any, present bool, update any) (any, error) {
			u, ok := update.(T)
			if !ok {
				return nil, fieldTypeError[T](update)
			}
			var cur T
			if present && existing != nil {
				c, ok := existing.(T)
				if !ok {
					return nil, fieldTypeError[T](existing)
				}
				cur = c
			}
			return fn(cur, u)
		},
		decode: decodeJSON[T],
	}
}

func fieldTypeError[T any](got any) error {
	return fmt.Errorf("%w: want %s, got %T", ErrFieldType, reflect.TypeFor[T](), got)
}

func decodeJSON[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Schema is the set of declared state fields.
// A Schema is immutable after construction and safe for concurrent use.
type Schema struct {
	fields map[string]Field
	order  []string
}

// BaseFields returns the fields every Schema carries.
func BaseFields() []Field {
	return []Field{
		Immutable[string](KeyQuestion),
		Append[Message](KeyMessages),
		Overwrite[string](KeyNextNode),
	}
}

// NewSchema builds a Schema from the base fields plus the given fields.
// Redeclaring a base field or repeating a name returns ErrDuplicateField.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field)}
	for _, f := range append(BaseFields(), fields...) {
		if f.Name == "" || f.merge == nil {
			return nil, fmt.Errorf("%w: field %q is not declared through a field constructor", ErrInvalidField, f.Name)
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Use it for package-level
// schema variables.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic("turngraph: " + err.Error())
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Initial returns the state a turn starts from.
func (s *Schema) Initial(question string) State {
	return State{
		KeyQuestion: question,
		KeyMessages: []Message{},
	}
}

// Apply merges update into current and returns the new state.
// current is not modified. Keys are applied in sorted order so a failure
// is reported deterministically.
func (s *Schema) Apply(current State, update Update) (State, error) {
	// Merges build new values, so a shallow copy keeps current intact.
	next := make(State, len(current)+len(update))
	maps.Copy(next, current)
	if len(update) == 0 {
		return next, nil
	}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f, ok := s.fields[k]
		if !ok {
			return current, &MergeError{Field: k, Err: ErrUnknownField}
		}
		existing, present := next[k]
		merged, err := f.merge(existing, present, update[k])
		if err != nil {
			return current, &MergeError{Field: k, Err: err}
		}
		next[k] = merged
	}
	return next, nil
}

// Encode serializes state as a JSON object.
func (s *Schema) Encode(state State) ([]byte, error) {
	data, err := json.Marshal(map[string]any(state))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializeState, err)
	}
	return data, nil
}

// Decode restores a state serialized by Encode, converting every declared
// field back to its Go type.
func (s *Schema) Decode(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}
	out := make(State, len(raw))
	for k, v := range raw {
		f, ok := s.fields[k]
		if !ok {
			return nil, fmt.Errorf("%w: field %s", ErrDeserializeState, k)
		}
		if string(v) == "null" {
			continue
		}
		val, err := f.decode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrDeserializeState, k, err)
		}
		out[k] = val
	}
	return out, nil
}
