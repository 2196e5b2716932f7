package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validate checks value against d and returns *ValidationErrors on failure.
//
// A nil value means absence. It is accepted only where the descriptor is
// Optional; object keys are checked against the Required flag. Keys unknown to
// the schema are ignored.
func Validate(value any, d Descriptor) error {
	v := &validation{}
	v.validateValue(value, d, "")
	return v.err()
}

// ValidateShape is Validate without scalar constraints: kinds and structure are
// checked, literal sets and integrality are not.
func ValidateShape(value any, d Descriptor) error {
	v := &validation{shapeOnly: true}
	v.validateValue(value, d, "")
	return v.err()
}

// ValidateJSON decodes data and validates it against d.
func ValidateJSON(data []byte, d Descriptor) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Path: "", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}
	return Validate(value, d)
}

type validation struct {
	shapeOnly bool
	errors    []ParseError
}

func (v *validation) err() error {
	if len(v.errors) > 0 {
		return &ValidationErrors{Errors: v.errors}
	}
	return nil
}

func (v *validation) fail(path, msg string) {
	v.errors = append(v.errors, ParseError{Path: path, Message: msg})
}

// validateValue validates a value against a descriptor at the given path.
func (v *validation) validateValue(value any, d Descriptor, path string) {
	if opt, ok := d.(*Optional); ok {
		if value == nil {
			return
		}
		v.validateValue(value, opt.Inner, path)
		return
	}
	if value == nil {
		v.fail(path, "value is required")
		return
	}

	switch s := d.(type) {
	case *Scalar:
		msg := checkKind(value, s.Kind)
		if msg == "" && !v.shapeOnly {
			msg = checkConstraints(value, s)
		}
		if msg != "" {
			v.fail(path, msg)
		}
	case *Object:
		v.validateObject(value, s, path)
	case *Array:
		v.validateArray(value, s, path)
	}
}

func (v *validation) validateObject(value any, s *Object, path string) {
	obj, ok := value.(map[string]any)
	if !ok {
		v.fail(path, fmt.Sprintf("expected object, got %T", value))
		return
	}

	s.Each(func(name string, f Field) {
		fieldPath := joinPath(path, name)
		fv, present := obj[name]
		if !present || fv == nil {
			if f.Required {
				v.fail(fieldPath, "required field missing")
			}
			return
		}
		v.validateValue(fv, f.Schema, fieldPath)
	})
}

func (v *validation) validateArray(value any, s *Array, path string) {
	arr, ok := value.([]any)
	if !ok {
		v.fail(path, fmt.Sprintf("expected array, got %T", value))
		return
	}
	for i, item := range arr {
		v.validateValue(item, s.Element, fmt.Sprintf("%s[%d]", path, i))
	}
}

// checkScalar returns an empty string when value satisfies s, otherwise the
// violation message.
func checkScalar(value any, s *Scalar) string {
	if msg := checkKind(value, s.Kind); msg != "" {
		return msg
	}
	return checkConstraints(value, s)
}

func checkKind(value any, kind ScalarKind) string {
	switch kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
	case KindNumber:
		if _, ok := toFloat64(value); !ok {
			return fmt.Sprintf("expected number, got %T", value)
		}
	case KindInteger:
		if _, ok := toFloat64(value); !ok {
			return fmt.Sprintf("expected integer, got %T", value)
		}
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	default:
		return fmt.Sprintf("unsupported scalar kind %q", kind)
	}
	return ""
}

func checkConstraints(value any, s *Scalar) string {
	if s.Kind == KindInteger {
		num, _ := toFloat64(value)
		if num != math.Trunc(num) || math.IsInf(num, 0) {
			return fmt.Sprintf("expected integer, got %v", num)
		}
	}

	if len(s.Literals) > 0 && !s.Open {
		for _, lit := range s.Literals {
			if equalValues(value, lit) {
				return ""
			}
		}
		return fmt.Sprintf("value must be one of: %v", s.Literals)
	}
	return ""
}

// toFloat64 converts any numeric value to float64.
func toFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// equalValues compares two scalar values for equality.
func equalValues(a, b any) bool {
	aNum, aIsNum := toFloat64(a)
	bNum, bIsNum := toFloat64(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// joinPath joins path segments.
func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
