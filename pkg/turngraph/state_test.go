package turngraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema_BaseFields(t *testing.T) {
	s := MustSchema()

	q, ok := s.Field(KeyQuestion)
	require.True(t, ok)
	assert.Equal(t, MergeImmutable, q.Rule)

	m, ok := s.Field(KeyMessages)
	require.True(t, ok)
	assert.Equal(t, MergeAppend, m.Rule)

	n, ok := s.Field(KeyNextNode)
	require.True(t, ok)
	assert.Equal(t, MergeOverwrite, n.Rule)

	assert.Len(t, s.Fields(), 3)
}

func TestNewSchema_DuplicateField(t *testing.T) {
	_, err := NewSchema(Overwrite[string]("x"), Overwrite[int]("x"))
	assert.ErrorIs(t, err, ErrDuplicateField)

	_, err = NewSchema(Overwrite[string](KeyQuestion))
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestNewSchema_RejectsHandBuiltField(t *testing.T) {
	_, err := NewSchema(Field{Name: "raw"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSchema_Initial(t *testing.T) {
	st := MustSchema().Initial("hello")

	assert.Equal(t, "hello", st.Question())
	assert.Empty(t, st.Messages())
	assert.NotNil(t, st[KeyMessages])
	_, ok := st.LastMessage()
	assert.False(t, ok)
}

func TestSchema_Apply_Overwrite(t *testing.T) {
	s := testSchema()
	st := s.Initial("q")

	next, err := s.Apply(st, Update{keyNote: "first"})
	require.NoError(t, err)
	next, err = s.Apply(next, Update{keyNote: "second"})
	require.NoError(t, err)

	assert.Equal(t, "second", next[keyNote])
	assert.NotContains(t, st, keyNote, "input state must not change")
}

func TestSchema_Apply_AppendSingleAndSlice(t *testing.T) {
	s := MustSchema()
	st := s.Initial("q")

	next, err := s.Apply(st, Update{KeyMessages: AssistantMessage("a", "one")})
	require.NoError(t, err)
	next, err = s.Apply(next, Update{KeyMessages: []Message{
		AssistantMessage("b", "two"),
		AssistantMessage("b", "three"),
	}})
	require.NoError(t, err)

	msgs := next.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Empty(t, st.Messages())
}

func TestSchema_Apply_Immutable(t *testing.T) {
	s := MustSchema()
	st := s.Initial("original")

	_, err := s.Apply(st, Update{KeyQuestion: "original"})
	assert.NoError(t, err, "re-setting the same value is allowed")

	_, err = s.Apply(st, Update{KeyQuestion: "changed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImmutableField)

	var merr *MergeError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, KeyQuestion, merr.Field)
}

func TestSchema_Apply_Errors(t *testing.T) {
	s := testSchema()
	st := s.Initial("q")

	tests := []struct {
		name   string
		update Update
		want   error
	}{
		{"undeclared field", Update{"bogus": 1}, ErrUnknownField},
		{"wrong overwrite type", Update{keyNote: 42}, ErrFieldType},
		{"wrong append type", Update{KeyMessages: "text"}, ErrFieldType},
		{"wrong custom type", Update{keyCount: "1"}, ErrFieldType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Apply(st, tt.update)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, st, out)
		})
	}
}

func TestSchema_Apply_Custom(t *testing.T) {
	s := testSchema()
	st := s.Initial("q")

	for i := 0; i < 3; i++ {
		var err error
		st, err = s.Apply(st, Update{keyCount: 2})
		require.NoError(t, err)
	}
	assert.Equal(t, 6, st[keyCount])
}

func TestSchema_Apply_CustomError(t *testing.T) {
	boom := errors.New("negative")
	s := MustSchema(Custom("n", func(existing, update int) (int, error) {
		if update < 0 {
			return 0, boom
		}
		return update, nil
	}))

	_, err := s.Apply(s.Initial("q"), Update{"n": -1})
	assert.ErrorIs(t, err, boom)
}

func TestState_CloneDoesNotAliasMessages(t *testing.T) {
	st := State{KeyMessages: []Message{{Role: RoleUser, Content: "a"}}}
	cp := st.Clone()

	cp[KeyMessages].([]Message)[0].Content = "changed"
	cp["extra"] = true

	assert.Equal(t, "a", st.Messages()[0].Content)
	assert.NotContains(t, st, "extra")
}

func TestState_CloneCopiesNestedContainers(t *testing.T) {
	rows := []map[string]any{{"car_id": "c1", "soh": 91.5}}
	tags := map[string][]string{"c1": {"fleet-a"}}
	notes := []string{"first"}
	st := State{"rows": rows, "tags": tags, "notes": notes, "n": 3}

	cp := st.Clone()
	cp["rows"].([]map[string]any)[0]["soh"] = 10.0
	cp["tags"].(map[string][]string)["c1"][0] = "changed"
	cp["notes"].([]string)[0] = "changed"

	assert.Equal(t, 91.5, rows[0]["soh"])
	assert.Equal(t, "fleet-a", tags["c1"][0])
	assert.Equal(t, "first", notes[0])
	assert.Equal(t, 3, cp["n"])
}

func TestRun_NodeCannotMutateStateInPlace(t *testing.T) {
	type row = map[string]any
	schema := MustSchema(Overwrite[[]row]("rows"))
	compiled, err := NewGraph(schema).
		AddNode("fetch", func(Context, State) (Update, error) {
			return Update{"rows": []row{{"car_id": "c1", "soh": 91.5}}}, nil
		}).
		AddNode("tamper", func(_ Context, s State) (Update, error) {
			rows, _ := Get[[]row](s, "rows")
			rows[0]["soh"] = 0.0
			return nil, nil
		}).
		SetEntry("fetch").
		AddEdge("fetch", "tamper").
		AddEdge("tamper", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "")
	require.NoError(t, err)
	rows, ok := Get[[]row](result.State, "rows")
	require.True(t, ok)
	assert.Equal(t, 91.5, rows[0]["soh"])
}

func TestGet(t *testing.T) {
	st := State{"n": 3, "s": "x", "nil": nil}

	n, ok := Get[int](st, "n")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = Get[string](st, "n")
	assert.False(t, ok)

	_, ok = Get[string](st, "missing")
	assert.False(t, ok)

	_, ok = Get[string](st, "nil")
	assert.False(t, ok)
}

func TestSchema_EncodeDecode_RestoresTypes(t *testing.T) {
	type row = map[string]any
	s := MustSchema(
		Overwrite[[]row]("rows"),
		Overwrite[int]("n"),
	)
	st := s.Initial("q")
	st, err := s.Apply(st, Update{
		KeyMessages: AssistantMessage("a", "hi"),
		"rows":      []row{{"name": "x"}},
		"n":         7,
	})
	require.NoError(t, err)

	data, err := s.Encode(st)
	require.NoError(t, err)

	got, err := s.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "q", got.Question())
	assert.Equal(t, []Message{AssistantMessage("a", "hi")}, got.Messages())
	n, ok := Get[int](got, "n")
	require.True(t, ok)
	assert.Equal(t, 7, n)
	rows, ok := Get[[]row](got, "rows")
	require.True(t, ok)
	assert.Equal(t, "x", rows[0]["name"])
}

func TestSchema_Decode_Errors(t *testing.T) {
	s := MustSchema()

	_, err := s.Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrDeserializeState)

	_, err = s.Decode([]byte(`{"unknown": 1}`))
	assert.ErrorIs(t, err, ErrDeserializeState)

	_, err = s.Decode([]byte(`{"question": 5}`))
	assert.ErrorIs(t, err, ErrDeserializeState)
}

func TestSchema_Encode_Unserializable(t *testing.T) {
	s := MustSchema(Overwrite[func()]("fn"))
	st, err := s.Apply(s.Initial("q"), Update{"fn": func() {}})
	require.NoError(t, err)

	_, err = s.Encode(st)
	assert.ErrorIs(t, err, ErrSerializeState)
}

func TestMergeRule_String(t *testing.T) {
	assert.Equal(t, "overwrite", MergeOverwrite.String())
	assert.Equal(t, "append", MergeAppend.String())
	assert.Equal(t, "immutable", MergeImmutable.String())
	assert.Equal(t, "custom", MergeCustom.String())
	assert.Equal(t, "MergeRule(9)", MergeRule(9).String())
}
