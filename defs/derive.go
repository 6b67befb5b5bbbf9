package defs

import "fmt"

// WireType mirrors the three low bits of a protobuf tag.
type WireType int

const (
	WireVarint WireType = 0
	WireFixed64 WireType = 1
	WireDelimited WireType = 2
	WireStartGroup WireType = 3
	WireEndGroup WireType = 4
	WireFixed32 WireType = 5
)

// DeriveDescriptorType computes the wire-format descriptor type implied by a
// semantic type plus its integer format and group flag: the descriptor type
// is always derivable from (type, integer_format, is_tag_delimited).
func DeriveDescriptorType(t FieldType, format IntegerFormat, tagDelimited bool) (DescriptorType, error) {
	switch t {
	case Float:
		return TypeFloat, nil
	case Double:
		return TypeDouble, nil
	case Bool:
		return TypeBool, nil
	case String:
		return TypeString, nil
	case Bytes:
		return TypeBytes, nil
	case Enum:
		return TypeEnum, nil
	case Message:
		if tagDelimited {
			return TypeGroup, nil
		}
		return TypeMessage, nil
	case Int32:
		switch format {
		case ZigZag:
			return TypeSint32, nil
		case Fixed:
			return TypeSfixed32, nil
		default:
			return TypeInt32, nil
		}
	case Int64:
		switch format {
		case ZigZag:
			return TypeSint64, nil
		case Fixed:
			return TypeSfixed64, nil
		default:
			return TypeInt64, nil
		}
	case Uint32:
		if format == Fixed {
			return TypeFixed32, nil
		}
		return TypeUint32, nil
	case Uint64:
		if format == Fixed {
			return TypeFixed64, nil
		}
		return TypeUint64, nil
	default:
		return DescriptorUnspecified, fmt.Errorf("defs: field type %s has no explicit setting", t)
	}
}

// descriptorShape describes the (FieldType, IntegerFormat, IsTagDelimited)
// a DescriptorType implies, the inverse of DeriveDescriptorType.
type descriptorShape struct {
	typ          FieldType
	format       IntegerFormat
	tagDelimited bool
}

var descriptorShapes = map[DescriptorType]descriptorShape{
	TypeDouble:   {Double, Variable, false},
	TypeFloat:    {Float, Variable, false},
	TypeInt64:    {Int64, Variable, false},
	TypeUint64:   {Uint64, Variable, false},
	TypeInt32:    {Int32, Variable, false},
	TypeFixed64:  {Uint64, Fixed, false},
	TypeFixed32:  {Uint32, Fixed, false},
	TypeBool:     {Bool, Variable, false},
	TypeString:   {String, Variable, false},
	TypeGroup:    {Message, Variable, true},
	TypeMessage:  {Message, Variable, false},
	TypeBytes:    {Bytes, Variable, false},
	TypeUint32:   {Uint32, Variable, false},
	TypeEnum:     {Enum, Variable, false},
	TypeSfixed32: {Int32, Fixed, false},
	TypeSfixed64: {Int64, Fixed, false},
	TypeSint32:   {Int32, ZigZag, false},
	TypeSint64:   {Int64, ZigZag, false},
}

// ExpectedWireType returns the wire type a tag must carry for a field
// declared with descriptor type dt.
func ExpectedWireType(dt DescriptorType) (WireType, error) {
	switch dt {
	case TypeDouble, TypeFixed64, TypeSfixed64:
		return WireFixed64, nil
	case TypeFloat, TypeFixed32, TypeSfixed32:
		return WireFixed32, nil
	case TypeBool, TypeInt32, TypeInt64, TypeUint32, TypeUint64, TypeEnum, TypeSint32, TypeSint64:
		return WireVarint, nil
	case TypeString, TypeBytes, TypeMessage:
		return WireDelimited, nil
	case TypeGroup:
		return WireStartGroup, nil
	default:
		return 0, fmt.Errorf("defs: descriptor type %d has no wire type", dt)
	}
}
