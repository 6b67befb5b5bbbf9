package defs

import (
	"fmt"
	"sort"

	"github.com/wkalt/pbcore/refcount"
)

// handlerSlotsPerField is the fixed block of selector slots each field
// reserves, covering every handler kind that could apply to it (Value,
// StartString, StringBuf, EndString, StartSubMessage, EndSubMessage,
// StartSequence, EndSequence).
const handlerSlotsPerField = 8

// messageSelectorReserve is the number of selectors reserved at the front of
// a message's selector space for the two message-level (not per-field)
// slots, StartMessage and EndMessage.
const messageSelectorReserve = 2

// MessageDef describes a protobuf message: a set of fields indexed by
// number and by name.
type MessageDef struct {
	refcount.Base

	name     string
	fullName string

	byNumber map[uint32]*FieldDef
	byName   map[string]*FieldDef

	selectorCount int
}

// NewMessage creates a mutable, empty MessageDef.
func NewMessage(fullName string) *MessageDef {
	return &MessageDef{
		fullName: fullName,
		name:     lastComponent(fullName),
		byNumber: make(map[uint32]*FieldDef),
		byName:   make(map[string]*FieldDef),
	}
}

func lastComponent(fullName string) string {
	last := fullName
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			last = fullName[i+1:]
			break
		}
	}
	return last
}

func (m *MessageDef) Kind() Kind       { return KindMessage }
func (m *MessageDef) FullName() string { return m.fullName }
func (m *MessageDef) Name() string     { return m.name }

// SelectorCount is the total number of selector slots allocated to this
// message at freeze time; zero before freeze.
func (m *MessageDef) SelectorCount() int { return m.selectorCount }

// AddField links f into m: requires both to be mutable, requires f to have
// no current parent, and requires f's name and number to be unique within
// m. If donorOwner holds a reference to f, that reference is donated to m;
// otherwise m takes a new reference of its own.
func (m *MessageDef) AddField(f *FieldDef, donorOwner refcount.Owner) error {
	if err := m.RequireMutable(); err != nil {
		return err
	}
	if err := f.RequireMutable(); err != nil {
		return err
	}
	if f.parent != nil {
		return fmt.Errorf("defs: field %s already belongs to message %s", f.name, f.parent.fullName)
	}
	if _, dup := m.byNumber[f.number]; dup {
		return fmt.Errorf("defs: message %s already has a field numbered %d", m.fullName, f.number)
	}
	if _, dup := m.byName[f.name]; dup {
		return fmt.Errorf("defs: message %s already has a field named %s", m.fullName, f.name)
	}
	if f.CheckRef(donorOwner) {
		if err := f.DonateRef(donorOwner, m); err != nil {
			return err
		}
	} else if err := f.Ref(m); err != nil {
		return err
	}
	f.parent = m
	if m.fullName != "" {
		f.fullName = m.fullName + "." + f.name
	}
	m.byNumber[f.number] = f
	m.byName[f.name] = f
	return nil
}

// FindByNumber looks up a field by its wire field number.
func (m *MessageDef) FindByNumber(n uint32) (*FieldDef, bool) {
	f, ok := m.byNumber[n]
	return f, ok
}

// FindByName looks up a field by its declared name.
func (m *MessageDef) FindByName(name string) (*FieldDef, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Fields returns the message's fields in unspecified order; callers that
// need determinism (selector assignment, tests) should sort.
func (m *MessageDef) Fields() []*FieldDef {
	out := make([]*FieldDef, 0, len(m.byNumber))
	for _, f := range m.byNumber {
		out = append(out, f)
	}
	return out
}

// fieldsByNameOrder returns the message's fields sorted by name, the
// deterministic order selector_base assignment is required to follow.
func (m *MessageDef) fieldsByNameOrder() []*FieldDef {
	out := m.Fields()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Clone deep-copies the message graph, replacing every direct subdef
// reference with a symbolic one (by the subdef's full name, or dropping the
// reference if the subdef is anonymous). The clone can later be re-resolved
// against a symbol table and re-frozen independently of the original.
func (m *MessageDef) Clone(owner refcount.Owner) (*MessageDef, error) {
	clone := NewMessage(m.fullName)
	for _, f := range m.fieldsByNameOrder() {
		cf, err := NewField(f.name, f.number)
		if err != nil {
			return nil, err
		}
		cf.label = f.label
		cf.typ = f.typ
		cf.descriptorType = f.descriptorType
		cf.integerFormat = f.integerFormat
		cf.isTagDelimited = f.isTagDelimited
		cf.defaultIsString = f.defaultIsString
		cf.defaultBytes = append([]byte(nil), f.defaultBytes...)
		cf.defaultSymbol = f.defaultSymbol
		cf.defaultNumeric = f.defaultNumeric

		if sub, ok := f.Subdef(); ok {
			if sub.FullName() != "" {
				cf.subdefSymbolic = sub.FullName()
			}
			// an anonymous subdef reference has nothing to resolve against later, so it is dropped.
		} else if name, ok := f.SubdefName(); ok {
			cf.subdefSymbolic = name
		}

		if err := clone.AddField(cf, owner); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// Reachable implements refcount.Freezable: a message's fields, and each
// field's resolved subdef, are all reachable from it.
func (m *MessageDef) Reachable() []refcount.Freezable {
	out := make([]refcount.Freezable, 0, len(m.byNumber))
	for _, f := range m.byNumber {
		out = append(out, f)
	}
	return out
}

// Validate implements refcount.Freezable. AddField already rules out
// duplicate names/numbers, so this only re-checks for defense in depth; the
// bulk of message-level validation is delegated to each field.
func (m *MessageDef) Validate() error {
	if len(m.byNumber) != len(m.byName) {
		return fmt.Errorf("defs: message %s has mismatched field indices", m.fullName)
	}
	return nil
}

// Finalize implements refcount.Freezable: assigns selector_base to each
// field in name-sorted order and computes selector_count.
func (m *MessageDef) Finalize() {
	base := messageSelectorReserve
	for _, f := range m.fieldsByNameOrder() {
		f.selectorBase = base
		base += handlerSlotsPerField
	}
	m.selectorCount = base
}
