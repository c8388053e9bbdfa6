package jni

import "fmt"

// PrimitiveType is the type of a value as encoded by one shorty character.
type PrimitiveType byte

const (
	// PrimNot is a reference, 'L' in a shorty.
	PrimNot PrimitiveType = iota
	PrimBoolean
	PrimByte
	PrimChar
	PrimShort
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
	PrimVoid
)

var primitiveDescriptors = [...]byte{
	PrimNot:     'L',
	PrimBoolean: 'Z',
	PrimByte:    'B',
	PrimChar:    'C',
	PrimShort:   'S',
	PrimInt:     'I',
	PrimLong:    'J',
	PrimFloat:   'F',
	PrimDouble:  'D',
	PrimVoid:    'V',
}

// PrimitiveTypeOf returns the type denoted by the shorty character c.
func PrimitiveTypeOf(c byte) PrimitiveType {
	for t, d := range primitiveDescriptors {
		if d == c {
			return PrimitiveType(t)
		}
	}
	panic(fmt.Sprintf("BUG: invalid shorty character %q", c))
}

// Descriptor returns the shorty character of t.
func (t PrimitiveType) Descriptor() byte {
	return primitiveDescriptors[t]
}

// String implements fmt.Stringer.
func (t PrimitiveType) String() string {
	return string(t.Descriptor())
}

// ComponentSize returns the number of bytes of a value of type t in a heap object.
// A reference takes HeapReferenceSize bytes and void takes none.
func (t PrimitiveType) ComponentSize() int {
	switch t {
	case PrimVoid:
		return 0
	case PrimBoolean, PrimByte:
		return 1
	case PrimChar, PrimShort:
		return 2
	case PrimInt, PrimFloat, PrimNot:
		return 4
	case PrimLong, PrimDouble:
		return 8
	}
	panic(fmt.Sprintf("BUG: invalid primitive type %d", byte(t)))
}

// IsFloatingPoint returns true for float and double.
func (t PrimitiveType) IsFloatingPoint() bool {
	return t == PrimFloat || t == PrimDouble
}

// Is64Bit returns true for long and double.
func (t PrimitiveType) Is64Bit() bool {
	return t == PrimLong || t == PrimDouble
}

// ValidateShorty returns an error if shorty is not a well-formed method shorty:
// a return type (any of "VZBCSIJFDL") followed by zero or more parameter types
// (any of "ZBCSIJFDL").
func ValidateShorty(shorty string) error {
	if len(shorty) == 0 {
		return fmt.Errorf("empty shorty")
	}
	for i := 0; i < len(shorty); i++ {
		switch c := shorty[i]; c {
		case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D', 'L':
		case 'V':
			if i != 0 {
				return fmt.Errorf("invalid parameter type 'V' at %d in shorty %q", i, shorty)
			}
		default:
			return fmt.Errorf("invalid character %q at %d in shorty %q", c, i, shorty)
		}
	}
	return nil
}
