// Package symtab implements the symbol table used to resolve symbolic
// subdef references (FieldDef.SetSubdefName) against frozen defs before a
// containing message is itself frozen.
package symtab

import (
	"fmt"

	"github.com/wkalt/pbcore/defs"
)

// Table holds defs by full name.
type Table struct {
	byName map[string]defs.Def
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{byName: make(map[string]defs.Def)}
}

// Register adds d to the table under its full name. It errors if d is
// anonymous (no full name) or if the name is already registered.
func (t *Table) Register(d defs.Def) error {
	name := d.FullName()
	if name == "" {
		return fmt.Errorf("symtab: cannot register an anonymous %s def", d.Kind())
	}
	if _, dup := t.byName[name]; dup {
		return fmt.Errorf("symtab: %s is already registered", name)
	}
	t.byName[name] = d
	return nil
}

// Lookup returns the def registered under name, if any.
func (t *Table) Lookup(name string) (defs.Def, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// ResolveField resolves f's pending symbolic subdef name against the table
// and attaches the result via FieldDef.SetSubdef. It is a no-op if f has no
// pending symbolic name.
func (t *Table) ResolveField(f *defs.FieldDef) error {
	name, pending := f.SubdefName()
	if !pending {
		return nil
	}
	d, ok := t.Lookup(name)
	if !ok {
		return fmt.Errorf("symtab: unresolved subdef reference %q for field %s", name, f.FullName())
	}
	return f.SetSubdef(d)
}

// ResolveMessage resolves every field of m with a pending symbolic subdef
// name. It is the bulk version of ResolveField, typically run once over a
// message produced by MessageDef.Clone before re-freezing it.
func (t *Table) ResolveMessage(m *defs.MessageDef) error {
	for _, f := range m.Fields() {
		if err := t.ResolveField(f); err != nil {
			return err
		}
	}
	return nil
}
