package structured

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToJSONSchema exports d as a JSON Schema document suitable for prompting a model.
// Optional nodes export their inner schema; optionality lives in the parent's
// required list.
func ToJSONSchema(d Descriptor) *jsonschema.Schema {
	switch s := d.(type) {
	case *Optional:
		return ToJSONSchema(s.Inner)
	case *Scalar:
		out := &jsonschema.Schema{Type: string(s.Kind), Description: s.Doc}
		if len(s.Literals) == 0 {
			return out
		}
		if !s.Open {
			out.Enum = append([]any(nil), s.Literals...)
			return out
		}
		out.Type = ""
		out.AnyOf = []*jsonschema.Schema{
			{Type: string(s.Kind), Enum: append([]any(nil), s.Literals...)},
			{Type: string(s.Kind)},
		}
		return out
	case *Object:
		out := &jsonschema.Schema{
			Type:        "object",
			Description: s.Doc,
			Properties:  jsonschema.NewProperties(),
		}
		s.Each(func(name string, f Field) {
			out.Properties.Set(name, ToJSONSchema(f.Schema))
			if f.Required {
				out.Required = append(out.Required, name)
			}
		})
		return out
	case *Array:
		return &jsonschema.Schema{
			Type:        "array",
			Description: s.Doc,
			Items:       ToJSONSchema(s.Element),
		}
	default:
		return &jsonschema.Schema{}
	}
}

// MarshalJSONSchema renders d as indented JSON Schema text.
func MarshalJSONSchema(d Descriptor) (string, error) {
	data, err := json.MarshalIndent(ToJSONSchema(d), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json schema: %w", err)
	}
	return string(data), nil
}
