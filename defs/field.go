package defs

import (
	"errors"
	"fmt"

	"github.com/wkalt/pbcore/refcount"
)

// FieldDef describes one field of a MessageDef, or a standalone field with
// no parent (an extension).
type FieldDef struct {
	refcount.Base

	name     string
	fullName string
	number   uint32

	typ            FieldType
	descriptorType DescriptorType
	label          Label
	integerFormat  IntegerFormat
	isTagDelimited bool

	defaultIsString bool
	defaultBytes    []byte
	defaultSymbol   string // pending enum default, by name
	defaultNumeric  defaultNumeric

	subdefDirect   Def
	subdefSymbolic string

	parent *MessageDef

	selectorBase int
}

type defaultNumeric struct {
	i int64
	u uint64
	f float64
	b bool
}

const (
	minFieldNumber = 1
	maxFieldNumber = 1<<29 - 1
)

// reservedRanges mirrors protobuf's reserved field-number range
// (19000-19999), which no FieldDef may use.
var reservedRanges = [][2]uint32{{19000, 19999}}

func isReserved(n uint32) bool {
	for _, r := range reservedRanges {
		if n >= r[0] && n <= r[1] {
			return true
		}
	}
	return false
}

// NewField creates a mutable, parentless FieldDef named name with the given
// field number.
func NewField(name string, number uint32) (*FieldDef, error) {
	if name == "" {
		return nil, errors.New("defs: field name must not be empty")
	}
	if number < minFieldNumber || number > maxFieldNumber || isReserved(number) {
		return nil, fmt.Errorf("defs: field number %d is out of range or reserved", number)
	}
	return &FieldDef{name: name, fullName: name, number: number}, nil
}

func (f *FieldDef) Kind() Kind        { return KindField }
func (f *FieldDef) FullName() string  { return f.fullName }
func (f *FieldDef) Name() string      { return f.name }
func (f *FieldDef) Number() uint32    { return f.number }
func (f *FieldDef) Type() FieldType   { return f.typ }
func (f *FieldDef) DescriptorType() DescriptorType { return f.descriptorType }
func (f *FieldDef) Label() Label                   { return f.label }
func (f *FieldDef) IntegerFormat() IntegerFormat    { return f.integerFormat }
func (f *FieldDef) IsTagDelimited() bool            { return f.isTagDelimited }
func (f *FieldDef) IsRepeated() bool                { return f.label == Repeated }
func (f *FieldDef) Parent() *MessageDef             { return f.parent }
func (f *FieldDef) SelectorBase() int               { return f.selectorBase }

// SetLabel sets the field's label (optional/required/repeated).
func (f *FieldDef) SetLabel(l Label) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.label = l
	return nil
}

// SetType sets the field's semantic type, resetting integer_format,
// is_tag_delimited, and the default value to their defaults for the new
// type.
func (f *FieldDef) SetType(t FieldType) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.typ = t
	f.integerFormat = Variable
	f.isTagDelimited = false
	f.clearDefault()
	dt, err := DeriveDescriptorType(t, f.integerFormat, f.isTagDelimited)
	if err != nil {
		return err
	}
	f.descriptorType = dt
	return nil
}

// SetDescriptorType sets the field's wire-format descriptor type directly,
// deriving type/integer_format/is_tag_delimited from it and resetting the
// default value.
func (f *FieldDef) SetDescriptorType(dt DescriptorType) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	shape, ok := descriptorShapes[dt]
	if !ok {
		return fmt.Errorf("defs: unknown descriptor type %d", dt)
	}
	f.descriptorType = dt
	f.typ = shape.typ
	f.integerFormat = shape.format
	f.isTagDelimited = shape.tagDelimited
	f.clearDefault()
	return nil
}

// SetIntegerFormat changes how an already-typed integer field is encoded.
// ZigZag is only valid for signed integer types, validated at freeze time;
// setting it here does not itself fail, matching the rest of this package's
// "validate at freeze, not at set" policy.
func (f *FieldDef) SetIntegerFormat(format IntegerFormat) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.integerFormat = format
	dt, err := DeriveDescriptorType(f.typ, f.integerFormat, f.isTagDelimited)
	if err != nil {
		return err
	}
	f.descriptorType = dt
	return nil
}

// SetTagDelimited marks a Message-typed field as using group framing
// instead of a length prefix. Only valid for type=Message, checked at
// freeze.
func (f *FieldDef) SetTagDelimited(v bool) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.isTagDelimited = v
	dt, err := DeriveDescriptorType(f.typ, f.integerFormat, f.isTagDelimited)
	if err != nil {
		return err
	}
	f.descriptorType = dt
	return nil
}

func (f *FieldDef) clearDefault() {
	f.defaultIsString = false
	f.defaultBytes = nil
	f.defaultSymbol = ""
	f.defaultNumeric = defaultNumeric{}
}

// SetDefaultString stores a byte-string default (for Bytes/String fields).
func (f *FieldDef) SetDefaultString(v []byte) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.defaultIsString = true
	f.defaultBytes = append([]byte(nil), v...)
	return nil
}

// SetDefaultInt sets a signed-integer default.
func (f *FieldDef) SetDefaultInt(v int64) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.defaultIsString = false
	f.defaultNumeric = defaultNumeric{i: v}
	return nil
}

// SetDefaultUint sets an unsigned-integer default.
func (f *FieldDef) SetDefaultUint(v uint64) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.defaultIsString = false
	f.defaultNumeric = defaultNumeric{u: v}
	return nil
}

// SetDefaultFloat sets a floating-point default.
func (f *FieldDef) SetDefaultFloat(v float64) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.defaultIsString = false
	f.defaultNumeric = defaultNumeric{f: v}
	return nil
}

// SetDefaultBool sets a bool default.
func (f *FieldDef) SetDefaultBool(v bool) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	f.defaultIsString = false
	f.defaultNumeric = defaultNumeric{b: v}
	return nil
}

// SetDefaultEnumName sets a symbolic enum default, pending resolution against
// the field's EnumDef subdef. Only meaningful pre-freeze and for type=Enum.
func (f *FieldDef) SetDefaultEnumName(name string) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	if f.typ != Enum {
		return fmt.Errorf("defs: field %s is not an enum field", f.name)
	}
	f.defaultIsString = false
	f.defaultSymbol = name
	return nil
}

// DefaultEnumNumber returns the field's resolved int32 enum default. It is
// only meaningful after ResolveEnumDefault (or after freeze, which requires
// resolution to already have happened).
func (f *FieldDef) DefaultEnumNumber() int32 {
	return int32(f.defaultNumeric.i)
}

// ResolveEnumDefault resolves a pending symbolic enum default against the
// field's subdef. It is a no-op if there is no pending symbolic default.
func (f *FieldDef) ResolveEnumDefault() error {
	if f.defaultSymbol == "" {
		return nil
	}
	if f.typ != Enum {
		return fmt.Errorf("defs: field %s is not an enum field", f.name)
	}
	ed, ok := f.subdefDirect.(*EnumDef)
	if !ok {
		return fmt.Errorf("defs: field %s has no resolved enum subdef", f.name)
	}
	num, ok := ed.NumberByName(f.defaultSymbol)
	if !ok {
		return fmt.Errorf("defs: enum %s has no value named %q", ed.FullName(), f.defaultSymbol)
	}
	f.defaultNumeric = defaultNumeric{i: int64(num)}
	f.defaultSymbol = ""
	return nil
}

// SetSubdef attaches a resolved MessageDef or EnumDef to a Message- or
// Enum-typed field, clearing any pending symbolic name.
func (f *FieldDef) SetSubdef(d Def) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	switch f.typ {
	case Message:
		if _, ok := d.(*MessageDef); !ok {
			return fmt.Errorf("defs: field %s is type message, cannot take subdef of kind %s", f.name, d.Kind())
		}
	case Enum:
		if _, ok := d.(*EnumDef); !ok {
			return fmt.Errorf("defs: field %s is type enum, cannot take subdef of kind %s", f.name, d.Kind())
		}
	default:
		return fmt.Errorf("defs: field %s of type %s cannot take a subdef", f.name, f.typ)
	}
	f.subdefDirect = d
	f.subdefSymbolic = ""
	return nil
}

// SetSubdefName stores a symbolic subdef name pending resolution, clearing
// any direct reference.
func (f *FieldDef) SetSubdefName(name string) error {
	if err := f.RequireMutable(); err != nil {
		return err
	}
	if f.typ != Message && f.typ != Enum {
		return fmt.Errorf("defs: field %s of type %s cannot take a subdef", f.name, f.typ)
	}
	f.subdefSymbolic = name
	f.subdefDirect = nil
	return nil
}

// Subdef returns the field's resolved subdef, if any.
func (f *FieldDef) Subdef() (Def, bool) {
	return f.subdefDirect, f.subdefDirect != nil
}

// SubdefName returns the field's pending symbolic subdef name, if any.
func (f *FieldDef) SubdefName() (string, bool) {
	return f.subdefSymbolic, f.subdefSymbolic != ""
}

// SubMessageDef is a convenience accessor for decoder code: it returns the
// field's subdef as a *MessageDef, or ok=false if the field isn't a
// resolved Message-typed field.
func (f *FieldDef) SubMessageDef() (*MessageDef, bool) {
	md, ok := f.subdefDirect.(*MessageDef)
	return md, ok
}

// SubEnumDef is the EnumDef analogue of SubMessageDef.
func (f *FieldDef) SubEnumDef() (*EnumDef, bool) {
	ed, ok := f.subdefDirect.(*EnumDef)
	return ed, ok
}

// Reachable implements refcount.Freezable.
func (f *FieldDef) Reachable() []refcount.Freezable {
	if f.subdefDirect == nil {
		return nil
	}
	fz, ok := f.subdefDirect.(refcount.Freezable)
	if !ok {
		return nil
	}
	return []refcount.Freezable{fz}
}

// Validate implements refcount.Freezable, checking the per-field invariants
// that AddField and the setters above leave to be checked at freeze time.
func (f *FieldDef) Validate() error {
	if f.typ == FieldTypeUnspecified {
		return fmt.Errorf("defs: field %s has no type set", f.fullOrName())
	}
	if f.typ == Message || f.typ == Enum {
		if f.subdefDirect == nil {
			return fmt.Errorf("defs: field %s has an unresolved subdef", f.fullOrName())
		}
	}
	if f.integerFormat == ZigZag && !f.typ.IsSignedInteger() {
		return fmt.Errorf("defs: field %s uses zigzag encoding on non-signed type %s", f.fullOrName(), f.typ)
	}
	if f.isTagDelimited && f.typ != Message {
		return fmt.Errorf("defs: field %s sets is_tag_delimited on non-message type %s", f.fullOrName(), f.typ)
	}
	if f.typ == Enum && f.defaultSymbol != "" {
		return fmt.Errorf("defs: field %s has an unresolved symbolic enum default %q", f.fullOrName(), f.defaultSymbol)
	}
	return nil
}

// Finalize implements refcount.Freezable. FieldDef has no derived state of
// its own; selector_base is assigned by the owning MessageDef.
func (f *FieldDef) Finalize() {}

func (f *FieldDef) fullOrName() string {
	if f.fullName != "" {
		return f.fullName
	}
	return f.name
}
