// Package defs implements the schema graph: MessageDef, FieldDef, and
// EnumDef, their mutable builder surface, and the freeze-time validation
// pass that locks them. It has no dependency outside the standard library:
// the schema graph is the thing being built, not a consumer of some other
// library's schema representation.
package defs

// Kind tags which of the three Def variants a value is. Go already gives us
// interface dynamic dispatch, so Kind exists only for the explicit
// dynamic-cast helpers in cast.go, not for dispatch.
type Kind int

const (
	KindMessage Kind = iota
	KindField
	KindEnum
	// KindService is reserved for a future service/RPC def and is never
	// produced by this package.
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindField:
		return "field"
	case KindEnum:
		return "enum"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Def is the common interface implemented by MessageDef, FieldDef, and
// EnumDef.
type Def interface {
	Kind() Kind
	FullName() string
	IsFrozen() bool
}

// FieldType is the semantic type of a field, independent of its wire
// encoding (which also depends on IntegerFormat and IsTagDelimited).
type FieldType int

const (
	FieldTypeUnspecified FieldType = iota
	Float
	Double
	Bool
	String
	Bytes
	Message
	Enum
	Int32
	Uint32
	Int64
	Uint64
)

func (t FieldType) String() string {
	switch t {
	case Float:
		return "float"
	case Double:
		return "double"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Message:
		return "message"
	case Enum:
		return "enum"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	default:
		return "unspecified"
	}
}

// IsNumeric reports whether t is one of the scalar numeric/bool types that
// may be packed when repeated.
func (t FieldType) IsNumeric() bool {
	switch t {
	case Float, Double, Bool, Enum, Int32, Uint32, Int64, Uint64:
		return true
	default:
		return false
	}
}

// IsSignedInteger reports whether t accepts the ZigZag integer format.
func (t FieldType) IsSignedInteger() bool {
	return t == Int32 || t == Int64
}

// Label is the protobuf field label.
type Label int

const (
	LabelUnspecified Label = iota
	Optional
	Required
	Repeated
)

// IntegerFormat selects how an integer-typed field's wire value is decoded.
type IntegerFormat int

const (
	Variable IntegerFormat = iota // plain varint
	Fixed                         // fixed32/fixed64
	ZigZag                        // sint32/sint64, varint-encoded
)

// DescriptorType is one of the 18 protobuf wire-format types. It is
// derivable from (FieldType, IntegerFormat, IsTagDelimited) and vice versa;
// see derive.go.
type DescriptorType int

const (
	DescriptorUnspecified DescriptorType = iota
	TypeDouble
	TypeFloat
	TypeInt64
	TypeUint64
	TypeInt32
	TypeFixed64
	TypeFixed32
	TypeBool
	TypeString
	TypeGroup
	TypeMessage
	TypeBytes
	TypeUint32
	TypeEnum
	TypeSfixed32
	TypeSfixed64
	TypeSint32
	TypeSint64
)
