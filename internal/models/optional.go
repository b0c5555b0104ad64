package models

import (
	"encoding/json"
)

// OptionalString records whether a JSON key was present, and its value,
// which may be null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Some returns a set OptionalString holding v.
func Some(v string) OptionalString {
	return OptionalString{Set: true, Value: &v}
}

// Null returns a set OptionalString holding null.
func Null() OptionalString {
	return OptionalString{Set: true}
}

// Normalized returns the target value with "" treated as null.
func (o OptionalString) Normalized() *string {
	if o.Value == nil || *o.Value == "" {
		return nil
	}
	return o.Value
}
