package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NullableUUID distinguishes the three states a UUID field can take in a
// PATCH body: absent (Set false), explicit null (Set true, Valid false), and
// set to a value (Set true, Valid true). Explicit null clears the field.
type NullableUUID struct {
	Set   bool
	Valid bool
	Value uuid.UUID
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the
// field is present in the body, which is what makes Set meaningful.
func (n *NullableUUID) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid uuid %q", s)
	}
	n.Valid = true
	n.Value = id
	return nil
}
