package defs

import (
	"fmt"

	"github.com/wkalt/pbcore/refcount"
)

// EnumDef describes a protobuf enum: a set of name/number pairs, where
// multiple names may alias one number and number->name lookup returns
// whichever name was added first for that number.
type EnumDef struct {
	refcount.Base

	name     string
	fullName string

	nameToNumber map[string]int32
	numberToName map[int32]string

	defaultValue int32
}

// NewEnum creates a mutable, empty EnumDef.
func NewEnum(fullName string) *EnumDef {
	return &EnumDef{
		fullName:     fullName,
		name:         lastComponent(fullName),
		nameToNumber: make(map[string]int32),
		numberToName: make(map[int32]string),
	}
}

func (e *EnumDef) Kind() Kind       { return KindEnum }
func (e *EnumDef) FullName() string { return e.fullName }
func (e *EnumDef) Name() string     { return e.name }

// AddValue registers a name/number pair. It fails if name is already
// present; if num already has a name, the new name becomes an alias and
// number->name lookup keeps returning the first one added.
func (e *EnumDef) AddValue(name string, num int32) error {
	if err := e.RequireMutable(); err != nil {
		return err
	}
	if _, dup := e.nameToNumber[name]; dup {
		return fmt.Errorf("defs: enum %s already has a value named %s", e.fullName, name)
	}
	e.nameToNumber[name] = num
	if _, exists := e.numberToName[num]; !exists {
		e.numberToName[num] = name
	}
	return nil
}

// NumberByName looks up a value's number by name.
func (e *EnumDef) NumberByName(name string) (int32, bool) {
	n, ok := e.nameToNumber[name]
	return n, ok
}

// NameByNumber looks up the first-added name for a number.
func (e *EnumDef) NameByNumber(num int32) (string, bool) {
	n, ok := e.numberToName[num]
	return n, ok
}

// SetDefault sets the enum's int32 default value.
func (e *EnumDef) SetDefault(v int32) error {
	if err := e.RequireMutable(); err != nil {
		return err
	}
	e.defaultValue = v
	return nil
}

// DefaultValue returns the enum's default value.
func (e *EnumDef) DefaultValue() int32 { return e.defaultValue }

// Reachable implements refcount.Freezable: an enum references nothing else.
func (e *EnumDef) Reachable() []refcount.Freezable { return nil }

// Validate implements refcount.Freezable. EnumDef has no cross-object
// invariants beyond what AddValue already enforces.
func (e *EnumDef) Validate() error { return nil }

// Finalize implements refcount.Freezable; EnumDef has no derived state.
func (e *EnumDef) Finalize() {}
