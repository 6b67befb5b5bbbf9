package handlers_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/handlers"
	"github.com/wkalt/pbcore/refcount"
)

func buildFrozenMessage(t *testing.T) (*defs.MessageDef, *defs.FieldDef, *defs.FieldDef) {
	t.Helper()
	owner := t.Name()
	msg := defs.NewMessage("test.M")

	id, err := defs.NewField("id", 1)
	require.NoError(t, err)
	require.NoError(t, id.SetType(defs.Int32))
	require.NoError(t, msg.AddField(id, owner))

	name, err := defs.NewField("name", 2)
	require.NoError(t, err)
	require.NoError(t, name.SetType(defs.String))
	require.NoError(t, msg.AddField(name, owner))

	require.NoError(t, refcount.Freeze(msg))
	idF, _ := msg.FindByName("id")
	nameF, _ := msg.FindByName("name")
	return msg, idF, nameF
}

func TestNewRequiresFrozenMessage(t *testing.T) {
	msg := defs.NewMessage("test.Unfrozen")
	_, err := handlers.New(msg, t.Name())
	require.Error(t, err)
}

func TestSetHandlerRejectsWrongKind(t *testing.T) {
	msg, idF, nameF := buildFrozenMessage(t)
	h, err := handlers.New(msg, t.Name())
	require.NoError(t, err)

	require.Error(t, h.SetBoolHandler(idF, func(any, bool) bool { return true }))
	require.Error(t, h.SetInt32Handler(nameF, func(any, int32) bool { return true }))
}

func TestSetHandlerRejectsForeignField(t *testing.T) {
	msg, _, _ := buildFrozenMessage(t)
	h, err := handlers.New(msg, t.Name())
	require.NoError(t, err)

	other := defs.NewMessage("test.Other")
	of, err := defs.NewField("x", 1)
	require.NoError(t, err)
	require.NoError(t, of.SetType(defs.Int32))
	require.NoError(t, other.AddField(of, t.Name()))
	require.NoError(t, refcount.Freeze(other))

	require.Error(t, h.SetInt32Handler(of, func(any, int32) bool { return true }))
}

func TestGetHandlerRoundTrip(t *testing.T) {
	msg, idF, _ := buildFrozenMessage(t)
	h, err := handlers.New(msg, t.Name())
	require.NoError(t, err)

	var seen int32
	require.NoError(t, h.SetInt32Handler(idF, func(_ any, v int32) bool {
		seen = v
		return true
	}))

	fn, ok := h.GetInt32Handler(idF)
	require.True(t, ok)
	require.True(t, fn(nil, 42))
	require.Equal(t, int32(42), seen)
}

func TestSubHandlersMustMatchFieldSubdef(t *testing.T) {
	owner := t.Name()
	child := defs.NewMessage("test.Child")
	cf, err := defs.NewField("v", 1)
	require.NoError(t, err)
	require.NoError(t, cf.SetType(defs.Int32))
	require.NoError(t, child.AddField(cf, owner))
	require.NoError(t, refcount.Freeze(child))

	parent := defs.NewMessage("test.Parent")
	pf, err := defs.NewField("child", 1)
	require.NoError(t, err)
	require.NoError(t, pf.SetType(defs.Message))
	require.NoError(t, pf.SetSubdef(child))
	require.NoError(t, parent.AddField(pf, owner))
	require.NoError(t, refcount.Freeze(parent))

	parentHandlers, err := handlers.New(parent, owner)
	require.NoError(t, err)
	childHandlers, err := handlers.New(child, owner)
	require.NoError(t, err)

	require.NoError(t, parentHandlers.SetSubHandlers(pf, childHandlers))

	other := defs.NewMessage("test.Other")
	require.NoError(t, refcount.Freeze(other))
	otherHandlers, err := handlers.New(other, owner)
	require.NoError(t, err)
	require.Error(t, parentHandlers.SetSubHandlers(pf, otherHandlers))
}

func TestHandlersFreezeIsTransitive(t *testing.T) {
	owner := t.Name()
	child := defs.NewMessage("test.Child")
	cf, err := defs.NewField("v", 1)
	require.NoError(t, err)
	require.NoError(t, cf.SetType(defs.Int32))
	require.NoError(t, child.AddField(cf, owner))
	require.NoError(t, refcount.Freeze(child))

	parent := defs.NewMessage("test.Parent")
	pf, err := defs.NewField("child", 1)
	require.NoError(t, err)
	require.NoError(t, pf.SetType(defs.Message))
	require.NoError(t, pf.SetSubdef(child))
	require.NoError(t, parent.AddField(pf, owner))
	require.NoError(t, refcount.Freeze(parent))

	parentHandlers, err := handlers.New(parent, owner)
	require.NoError(t, err)
	childHandlers, err := handlers.New(child, owner)
	require.NoError(t, err)
	require.NoError(t, parentHandlers.SetSubHandlers(pf, childHandlers))

	require.NoError(t, refcount.Freeze(parentHandlers))
	require.True(t, childHandlers.IsFrozen())

	require.ErrorIs(t, childHandlers.SetInt32Handler(cf, nil), refcount.ErrFrozen)
}
