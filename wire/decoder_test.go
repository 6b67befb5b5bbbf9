package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/handlers"
	"github.com/wkalt/pbcore/refcount"
	"github.com/wkalt/pbcore/sink"
	"github.com/wkalt/pbcore/wire"
)

func mustFreeze(t *testing.T, objs ...refcount.Freezable) {
	t.Helper()
	require.NoError(t, refcount.Freeze(objs...))
}

func newFrozenField(t *testing.T, owner refcount.Owner, msg *defs.MessageDef, name string, number uint32, typ defs.FieldType, repeated bool) *defs.FieldDef {
	t.Helper()
	f, err := defs.NewField(name, number)
	require.NoError(t, err)
	require.NoError(t, f.SetType(typ))
	if repeated {
		require.NoError(t, f.SetLabel(defs.Repeated))
	}
	require.NoError(t, msg.AddField(f, owner))
	return f
}

func TestDecodeScalarVarintFieldTwice(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("scalar.M")
	idField := newFrozenField(t, owner, msg, "id", 1, defs.Int32, false)
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	var seen []int32
	require.NoError(t, h.SetInt32Handler(idField, func(_ any, v int32) bool {
		seen = append(seen, v)
		return true
	}))
	mustFreeze(t, h)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 7)
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 9)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	n, err := d.PutBuffer(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.NoError(t, d.EndOfStream())
	require.Equal(t, []int32{7, 9}, seen)
}

func TestDecodeZigZagSint32(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("zigzag.M")
	f, err := defs.NewField("delta", 1)
	require.NoError(t, err)
	require.NoError(t, f.SetType(defs.Int32))
	require.NoError(t, f.SetIntegerFormat(defs.ZigZag))
	require.NoError(t, msg.AddField(f, owner))
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	var got int32
	require.NoError(t, h.SetInt32Handler(f, func(_ any, v int32) bool {
		got = v
		return true
	}))
	mustFreeze(t, h)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(-5))

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.NoError(t, d.EndOfStream())
	require.Equal(t, int32(-5), got)
}

func TestDecodePackedRepeatedFloat(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("packed.M")
	f := newFrozenField(t, owner, msg, "samples", 1, defs.Float, true)
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	var vals []float32
	require.NoError(t, h.SetFloat32Handler(f, func(_ any, v float32) bool {
		vals = append(vals, v)
		return true
	}))
	var opens, closes int
	require.NoError(t, h.SetStartSequenceHandler(f, func(c any) any {
		opens++
		return c
	}))
	require.NoError(t, h.SetEndSequenceHandler(f, func(any) bool {
		closes++
		return true
	}))
	mustFreeze(t, h)

	var body []byte
	body = protowire.AppendFixed32(body, 0x3f800000) // 1.0
	body = protowire.AppendFixed32(body, 0x40000000) // 2.0

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, body)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.NoError(t, d.EndOfStream())

	require.Equal(t, []float32{1.0, 2.0}, vals)
	require.Equal(t, 1, opens)
	require.Equal(t, 1, closes)
}

func TestDecodeNestedMessageThreeDeep(t *testing.T) {
	owner := t.Name()

	leaf := defs.NewMessage("nested.Leaf")
	leafVal := newFrozenField(t, owner, leaf, "v", 1, defs.Int32, false)
	mustFreeze(t, leaf)

	mid := defs.NewMessage("nested.Mid")
	midChild, err := defs.NewField("leaf", 1)
	require.NoError(t, err)
	require.NoError(t, midChild.SetType(defs.Message))
	require.NoError(t, midChild.SetSubdef(leaf))
	require.NoError(t, mid.AddField(midChild, owner))
	mustFreeze(t, mid)

	top := defs.NewMessage("nested.Top")
	topChild, err := defs.NewField("mid", 1)
	require.NoError(t, err)
	require.NoError(t, topChild.SetType(defs.Message))
	require.NoError(t, topChild.SetSubdef(mid))
	require.NoError(t, top.AddField(topChild, owner))
	mustFreeze(t, top)

	leafH, err := handlers.New(leaf, owner)
	require.NoError(t, err)
	var got int32
	require.NoError(t, leafH.SetInt32Handler(leafVal, func(_ any, v int32) bool {
		got = v
		return true
	}))

	midH, err := handlers.New(mid, owner)
	require.NoError(t, err)
	require.NoError(t, midH.SetSubHandlers(midChild, leafH))

	topH, err := handlers.New(top, owner)
	require.NoError(t, err)
	require.NoError(t, topH.SetSubHandlers(topChild, midH))
	mustFreeze(t, topH)

	var leafBytes []byte
	leafBytes = protowire.AppendTag(leafBytes, 1, protowire.VarintType)
	leafBytes = protowire.AppendVarint(leafBytes, 42)

	var midBytes []byte
	midBytes = protowire.AppendTag(midBytes, 1, protowire.BytesType)
	midBytes = protowire.AppendBytes(midBytes, leafBytes)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, midBytes)

	d, err := wire.New(sink.New(topH, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.NoError(t, d.EndOfStream())
	require.Equal(t, int32(42), got)
}

func TestDecodeMaxDepthExceeded(t *testing.T) {
	owner := t.Name()
	leaf := defs.NewMessage("depth.Leaf")
	mustFreeze(t, leaf)

	top := defs.NewMessage("depth.Top")
	child, err := defs.NewField("leaf", 1)
	require.NoError(t, err)
	require.NoError(t, child.SetType(defs.Message))
	require.NoError(t, child.SetSubdef(leaf))
	require.NoError(t, top.AddField(child, owner))
	mustFreeze(t, top)

	leafH, err := handlers.New(leaf, owner)
	require.NoError(t, err)
	topH, err := handlers.New(top, owner)
	require.NoError(t, err)
	require.NoError(t, topH.SetSubHandlers(child, leafH))
	mustFreeze(t, topH)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte{})

	d, err := wire.New(sink.New(topH, nil), wire.WithMaxNesting(1))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.Error(t, err)
	require.ErrorIs(t, err, &wire.Error{Code: wire.MaxDepthExceeded})
}

func TestDecodeFieldNumberZeroIsError(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("badfield.M")
	mustFreeze(t, msg)
	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := protowire.AppendTag(nil, 0, protowire.VarintType)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.Error(t, err)
	require.ErrorIs(t, err, &wire.Error{Code: wire.BadFieldNumber})
}

func TestDecodeEndGroupWithoutStartGroup(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("badgroup.M")
	mustFreeze(t, msg)
	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := protowire.AppendTag(nil, 1, protowire.EndGroupType)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.Error(t, err)
	require.ErrorIs(t, err, &wire.Error{Code: wire.BadGroupNesting})
}

func TestDecodeEOFMidVarintAtEndOfStream(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("truncated.M")
	newFrozenField(t, owner, msg, "id", 1, defs.Int32, false)
	mustFreeze(t, msg)
	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = append(buf, 0x80) // continuation bit set, varint never terminates

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.Error(t, d.EndOfStream())
}

func TestDecodeByteAtATimeMatchesWholeBuffer(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("split.M")
	idField := newFrozenField(t, owner, msg, "id", 1, defs.Int32, false)
	nameField := newFrozenField(t, owner, msg, "name", 2, defs.String, false)
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	var gotID int32
	var gotName string
	require.NoError(t, h.SetInt32Handler(idField, func(_ any, v int32) bool {
		gotID = v
		return true
	}))
	require.NoError(t, h.SetStringBufHandler(nameField, func(c any, data []byte) int {
		gotName += string(data)
		return len(data)
	}))
	mustFreeze(t, h)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 123)
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("hello world"))

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	for i := 0; i < len(buf); i++ {
		n, err := d.PutBuffer(buf[i : i+1])
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.NoError(t, d.EndOfStream())
	require.Equal(t, int32(123), gotID)
	require.Equal(t, "hello world", gotName)
}

func TestDecodeUnknownFieldIsSkipped(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("unknown.M")
	idField := newFrozenField(t, owner, msg, "id", 1, defs.Int32, false)
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	var gotID int32
	require.NoError(t, h.SetInt32Handler(idField, func(_ any, v int32) bool {
		gotID = v
		return true
	}))
	mustFreeze(t, h)

	var buf []byte
	buf = protowire.AppendTag(buf, 99, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("ignored"))
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 55)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.NoError(t, d.EndOfStream())
	require.Equal(t, int32(55), gotID)
}
