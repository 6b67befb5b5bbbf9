package symtab_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/refcount"
	"github.com/wkalt/pbcore/symtab"
)

func TestDuplicateRegistrationFails(t *testing.T) {
	table := symtab.New()
	m := defs.NewMessage("test.A")
	require.NoError(t, table.Register(m))
	require.Error(t, table.Register(defs.NewMessage("test.A")))
}

func TestAnonymousRegistrationFails(t *testing.T) {
	table := symtab.New()
	require.Error(t, table.Register(defs.NewMessage("")))
}

// TestCloneResolveRoundTrip clones a message, re-resolves its symbolic
// subdef through a symbol table, and confirms the original relation is
// reproduced on the clone.
func TestCloneResolveRoundTrip(t *testing.T) {
	owner := t.Name()
	child := defs.NewMessage("test.Child")
	cf, err := defs.NewField("v", 1)
	require.NoError(t, err)
	require.NoError(t, cf.SetType(defs.Int32))
	require.NoError(t, child.AddField(cf, owner))

	parent := defs.NewMessage("test.Parent")
	pf, err := defs.NewField("child", 1)
	require.NoError(t, err)
	require.NoError(t, pf.SetType(defs.Message))
	require.NoError(t, pf.SetSubdef(child))
	require.NoError(t, parent.AddField(pf, owner))

	require.NoError(t, refcount.Freeze(child))

	clone, err := parent.Clone(owner)
	require.NoError(t, err)

	table := symtab.New()
	require.NoError(t, table.Register(child))
	require.NoError(t, table.ResolveMessage(clone))

	cloneField, _ := clone.FindByName("child")
	resolved, ok := cloneField.SubMessageDef()
	require.True(t, ok)
	require.Same(t, child, resolved)

	require.NoError(t, refcount.Freeze(clone))
}
