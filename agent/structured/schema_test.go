package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScalar(t *testing.T) {
	tests := []struct {
		name     string
		scalar   *Scalar
		wantKind ScalarKind
		wantStr  string
	}{
		{"string", NewString(), KindString, "string"},
		{"number", NewNumber(), KindNumber, "number"},
		{"integer", NewInteger(), KindInteger, "integer"},
		{"boolean", NewBoolean(), KindBoolean, "boolean"},
		{"literal", NewLiteral(KindString, "assistant"), KindString, `"assistant"`},
		{"open literal", NewOpenLiteral(KindString, "A", "B"), KindString, `"A"|"B"|string`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, tt.scalar.Kind)
			assert.Equal(t, tt.wantStr, tt.scalar.String())
		})
	}
}

func TestObjectBuilder_PreservesOrder(t *testing.T) {
	obj := NewObject().
		Field("zeta", NewString()).
		OptionalField("alpha", NewNumber()).
		Field("mid", NewArray(NewBoolean())).
		Describe("ordered")

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Names())
	assert.Equal(t, 3, obj.Len())
	assert.Equal(t, "ordered", obj.Description())
	assert.Equal(t, "{zeta: string, alpha?: number, mid: [boolean]}", obj.String())

	f, ok := obj.Get("alpha")
	require.True(t, ok)
	assert.False(t, f.Required)
	_, ok = obj.Get("missing")
	assert.False(t, ok)
}

func TestNewOptional_DoesNotDoubleWrap(t *testing.T) {
	inner := NewOptional(NewString())
	assert.Same(t, inner, NewOptional(inner))
	assert.Equal(t, "optional(string)", inner.String())
}

func TestEqual(t *testing.T) {
	a := NewObject().Field("a", NewLiteral(KindString, "x")).OptionalField("b", NewArray(NewNumber()))
	b := NewObject().Field("a", NewLiteral(KindString, "x")).OptionalField("b", NewArray(NewNumber())).Describe("docs ignored")

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, NewObject().Field("a", NewLiteral(KindString, "y")).OptionalField("b", NewArray(NewNumber()))))
	assert.False(t, Equal(a, NewObject().Field("b", NewArray(NewNumber())).Field("a", NewLiteral(KindString, "x"))))
	assert.False(t, Equal(NewString(), NewOptional(NewString())))
	assert.True(t, Equal(NewLiteral(KindNumber, 1), NewLiteral(KindNumber, 1.0)))
}

func TestRelax(t *testing.T) {
	schema := NewObject().
		Field("message", NewObject().
			Field("content", NewString()).
			Field("role", NewLiteral(KindString, "assistant")))

	relaxed := Relax(schema)

	root, ok := relaxed.(*Optional)
	require.True(t, ok, "root must be optional")
	obj, ok := root.Inner.(*Object)
	require.True(t, ok)

	msg, ok := obj.Get("message")
	require.True(t, ok)
	assert.False(t, msg.Required)

	msgObj := msg.Schema.(*Optional).Inner.(*Object)
	role, _ := msgObj.Get("role")
	assert.False(t, role.Required)
	roleScalar := role.Schema.(*Optional).Inner.(*Scalar)
	assert.Equal(t, []any{"assistant"}, roleScalar.Literals, "literal constraint must survive")

	// the original is untouched
	orig, _ := schema.Get("message")
	assert.True(t, orig.Required)
}

func TestRelax_Idempotent(t *testing.T) {
	for _, s := range []Descriptor{StepByStepSchema(), InkeepMessageSchema(), NewArray(NewString()), NewBoolean()} {
		once := Relax(s)
		assert.True(t, Equal(once, Relax(once)), s.String())
	}
}

func TestRelax_OptionalReturnedAsIs(t *testing.T) {
	opt := NewOptional(NewObject().Field("a", NewString()))
	assert.Same(t, opt, Relax(opt))
}

func TestToJSONSchema_StepByStep(t *testing.T) {
	out := ToJSONSchema(StepByStepSchema())

	assert.Equal(t, "object", out.Type)
	assert.Equal(t, []string{"steps"}, out.Required)
	assert.NotEmpty(t, out.Description)

	steps, ok := out.Properties.Get("steps")
	require.True(t, ok)
	assert.Equal(t, "array", steps.Type)
	require.NotNil(t, steps.Items)
	assert.Equal(t, []string{"headline", "content"}, steps.Items.Required)

	var keys []string
	for p := steps.Items.Properties.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"headline", "content", "sources"}, keys)
}

func TestToJSONSchema_Literals(t *testing.T) {
	closed := ToJSONSchema(NewLiteral(KindString, "assistant"))
	assert.Equal(t, "string", closed.Type)
	assert.Equal(t, []any{"assistant"}, closed.Enum)

	open := ToJSONSchema(NewOpenLiteral(KindString, "SITE"))
	assert.Empty(t, open.Type)
	require.Len(t, open.AnyOf, 2)
	assert.Equal(t, []any{"SITE"}, open.AnyOf[0].Enum)
}

func TestMarshalJSONSchema(t *testing.T) {
	text, err := MarshalJSONSchema(InkeepMessageSchema())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, []any{"message"}, decoded["required"])
}
