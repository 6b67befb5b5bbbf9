package defs

// AsMessage dynamically casts d to *MessageDef, returning ok=false rather
// than panicking if d is some other Def variant.
func AsMessage(d Def) (*MessageDef, bool) {
	md, ok := d.(*MessageDef)
	return md, ok
}

// AsField dynamically casts d to *FieldDef.
func AsField(d Def) (*FieldDef, bool) {
	fd, ok := d.(*FieldDef)
	return fd, ok
}

// AsEnum dynamically casts d to *EnumDef.
func AsEnum(d Def) (*EnumDef, bool) {
	ed, ok := d.(*EnumDef)
	return ed, ok
}

// MustMessage is the "downcast asserts" variant of AsMessage, for callers
// that have already established by construction that d is a *MessageDef.
func MustMessage(d Def) *MessageDef {
	md, ok := AsMessage(d)
	if !ok {
		panic("defs: expected a MessageDef, got " + d.Kind().String())
	}
	return md
}

// MustEnum is the "downcast asserts" variant of AsEnum.
func MustEnum(d Def) *EnumDef {
	ed, ok := AsEnum(d)
	if !ok {
		panic("defs: expected an EnumDef, got " + d.Kind().String())
	}
	return ed
}
