package optimizing

import "fmt"

// Type is the type of the value an Instruction produces.
type Type byte

const (
	TypeVoid Type = iota
	TypeReference
	TypeBool
	TypeInt8
	TypeUint16
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeReference:
		return "ref"
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeInt32:
		return "i32"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	}
	return fmt.Sprintf("Type(%d)", t)
}

// IsFloatingPoint returns true if the type is f32 or f64.
func (t Type) IsFloatingPoint() bool {
	return t == TypeFloat32 || t == TypeFloat64
}
