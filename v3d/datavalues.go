/*
   This file handles the sample types of voxel data.
*/

package v3d

import (
	"encoding/json"
	"fmt"
)

// DataType is the sample type of a voxel value.  The numeric value of a supported
// type equals its size in bytes and is what gets written into file headers.
type DataType uint8

const (
	// T_unknown is the zero value and never a valid sample type.
	T_unknown DataType = 0
	T_uint8   DataType = 1
	T_uint16  DataType = 2
)

// Bytes returns the number of bytes per sample or 0 for an unsupported type.
func (t DataType) Bytes() int32 {
	switch t {
	case T_uint8:
		return 1
	case T_uint16:
		return 2
	default:
		return 0
	}
}

// Valid returns true if the type is one of the supported sample types.
func (t DataType) Valid() bool {
	return t == T_uint8 || t == T_uint16
}

func (t DataType) String() string {
	switch t {
	case T_uint8:
		return "uint8"
	case T_uint16:
		return "uint16"
	default:
		return fmt.Sprintf("unknown data type %d", uint8(t))
	}
}

// ParseDataType returns the DataType for a name like "uint16".
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "uint8":
		return T_uint8, nil
	case "uint16":
		return T_uint16, nil
	default:
		return T_unknown, fmt.Errorf("unsupported data type %q", s)
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (t DataType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("can't marshal %s", t)
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dt, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = dt
	return nil
}
