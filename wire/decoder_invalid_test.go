package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/handlers"
	"github.com/wkalt/pbcore/internal/testutils"
	"github.com/wkalt/pbcore/sink"
	"github.com/wkalt/pbcore/wire"
)

// These cases extend the premature-EOF / malformed-input coverage beyond
// the single mid-varint case in decoder_test.go, following the shape of
// upb's test_decoder.cc invalid-input matrix (truncation before and inside
// a value, mid length-prefix, field number out of range, and EOF inside an
// open group).

func TestDecodeEOFBeforeKnownFixedValue(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.BeforeFixed")
	field, err := defs.NewField("v", 1)
	require.NoError(t, err)
	require.NoError(t, field.SetType(defs.Float))
	require.NoError(t, msg.AddField(field, owner))
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := testutils.Tag(1, 5) // fixed32 tag, no value bytes follow

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.ErrorIs(t, d.EndOfStream(), &wire.Error{Code: wire.EofInTag})
}

func TestDecodeEOFInsideKnownFixedValue(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.InsideFixed")
	field, err := defs.NewField("v", 1)
	require.NoError(t, err)
	require.NoError(t, field.SetType(defs.Float))
	require.NoError(t, msg.AddField(field, owner))
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := testutils.Flatten(testutils.Tag(1, 5), []byte{0x01, 0x02}) // 2 of 4 bytes

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.ErrorIs(t, d.EndOfStream(), &wire.Error{Code: wire.EofInTag})
}

func TestDecodeEOFBeforeUnknownVarintValue(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.BeforeUnknown")
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := testutils.Tag(666, 0) // unrecognized field, varint tag, no value byte

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.ErrorIs(t, d.EndOfStream(), &wire.Error{Code: wire.EofInTag})
}

func TestDecodeEOFMidLengthPrefixForString(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.MidLengthPrefix")
	field, err := defs.NewField("name", 1)
	require.NoError(t, err)
	require.NoError(t, field.SetType(defs.String))
	require.NoError(t, msg.AddField(field, owner))
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := testutils.Flatten(testutils.Tag(1, 2), []byte{0x80}) // continuation bit set, length varint never terminates

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.ErrorIs(t, d.EndOfStream(), &wire.Error{Code: wire.EofInTag})
}

func TestDecodeFieldNumberTooLargeIsError(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.FieldTooLarge")
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	const maxFieldNumber = 1<<29 - 1
	buf := testutils.Tag(maxFieldNumber+1, 0)

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.Error(t, err)
	require.ErrorIs(t, err, &wire.Error{Code: wire.BadFieldNumber})
}

func TestDecodeEOFInsideUnknownGroup(t *testing.T) {
	owner := t.Name()
	msg := defs.NewMessage("invalid.UnknownGroupEOF")
	mustFreeze(t, msg)

	h, err := handlers.New(msg, owner)
	require.NoError(t, err)
	mustFreeze(t, h)

	buf := testutils.Tag(99, 3) // unrecognized field, StartGroup, no EndGroup follows

	d, err := wire.New(sink.New(h, nil))
	require.NoError(t, err)
	_, err = d.PutBuffer(buf)
	require.NoError(t, err)
	require.ErrorIs(t, d.EndOfStream(), &wire.Error{Code: wire.TruncatedSubmessage})
}
