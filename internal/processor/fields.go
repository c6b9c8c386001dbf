package processor

import (
	"bytes"
	"encoding/json"
)

// FieldValue is one extracted field. A nil Value means the pattern did not
// match.
type FieldValue struct {
	Name  string
	Value *string
}

// Fields keeps extraction results in pattern order and marshals to a JSON
// object with null for unmatched fields.
type Fields []FieldValue

// Get returns the value of name and whether the field exists.
func (f Fields) Get(name string) (*string, bool) {
	for _, fv := range f {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// Value returns the field value or "" when absent or unmatched.
func (f Fields) Value(name string) string {
	if v, _ := f.Get(name); v != nil {
		return *v
	}
	return ""
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fv.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
