package wire

import (
	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/handlers"
)

type frameKind int

const (
	frameTopLevel frameKind = iota
	frameLengthDelimited
	frameGroup
)

// decodeState identifies which partial construct, if any, a frame is in the
// middle of. Every state that spans multiple feed calls carries its partial
// progress in the frame itself, so a buffer-put boundary can land anywhere.
type decodeState int

const (
	stateExpectTag decodeState = iota
	stateInTag
	stateInUnknownValue // skipping the body of an unrecognized length-delimited field
	stateInValueVarint
	stateInValueFixed
	stateInLengthHeader // reading the length varint of a delimited value (string/bytes/submessage)
	stateInStringBody
	stateInPackedHeader
	stateInPackedBody
)

// frame is one level of the decoder's nesting stack.
type frame struct {
	kind frameKind
	h    *handlers.Handlers // nil while skipping an unrecognized group
	c    any                // consumer closure for this frame's message

	remaining   int64          // bytes left in a length-delimited frame; unused (-1) otherwise
	groupField  uint32         // the field number that must close a group frame
	originField *defs.FieldDef // the field in the parent frame whose occurrence pushed this frame

	state decodeState
	acc   varintAcc

	field *defs.FieldDef // the field the in-flight value belongs to; nil while skipping unknown data
	valueClosure any      // closure to deliver the in-flight scalar value to

	fixedLen int // total width expected, 4 or 8; backing bytes live in the decoder's Pipeline scratch arena
	fixedGot int

	unknownRemaining int64 // bytes left to skip for an unrecognized length-delimited value

	// sequence framing: tracks the currently-open implicit sequence, so a
	// change in field number (or frame exit) can close it.
	seqOpen     bool
	seqFieldDef *defs.FieldDef
	seqClosure  any

	// string/bytes streaming
	stringRemaining int64
	stringClosure   any
	stringField     *defs.FieldDef

	// packed repeated scalar body
	packedRemaining int64
	packedField     *defs.FieldDef
	packedElemWire  defs.WireType
	packedClosure   any
}

func newTopFrame(h *handlers.Handlers, closure any) *frame {
	return &frame{kind: frameTopLevel, h: h, c: closure, remaining: -1, state: stateExpectTag}
}
