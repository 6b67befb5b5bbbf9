// Package wire implements the streaming protobuf wire-format decoder: a
// resumable push-parser that drives a frozen handlers.Handlers table. It
// tolerates buffer breaks at any byte offset, validates wire types against
// the schema, supports packed repeated fields and nested messages/groups up
// to a fixed depth, and surfaces precise error codes on malformed input.
package wire

import (
	"math"

	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/sink"
)

const defaultMaxNesting = 64
const maxFieldNumber = 1<<29 - 1

// Option configures a Decoder at construction time.
type Option func(*Decoder)

// WithMaxNesting overrides the default frame-stack depth limit.
func WithMaxNesting(n int) Option {
	return func(d *Decoder) { d.maxNesting = n }
}

// Decoder is a single-use, resumable protobuf wire-format parser bound to a
// frozen root Handlers. It is not safe for concurrent use; the Handlers and
// Defs graphs it reads from are immutable once frozen and may back many
// concurrent Decoders, each with its own Pipeline.
type Decoder struct {
	frames     []*frame
	maxNesting int
	pipeline   *sink.Pipeline
	aborted    bool
}

// New creates a Decoder bound to s, a Sink pairing the frozen root Handlers
// with the top-level message closure. It immediately invokes root's
// StartMessage handler.
func New(s *sink.Sink, opts ...Option) (*Decoder, error) {
	root := s.Handlers()
	if !root.IsFrozen() {
		return nil, newError(CodeUnspecified, 0, 0, "root handlers must be frozen before decoding")
	}
	d := &Decoder{
		maxNesting: defaultMaxNesting,
		pipeline:   sink.NewPipeline(),
	}
	for _, opt := range opts {
		opt(d)
	}
	closure := s.Closure()
	top := newTopFrame(root, closure)
	d.frames = append(d.frames, top)
	if sm, ok := root.StartMessageHandler(); ok {
		if !sm(closure) {
			return d, d.abort(newError(HandlerAbort, 1, 0, "StartMessage handler aborted"))
		}
	}
	return d, nil
}

// Status returns the decoder's terminal error status, nil while healthy.
func (d *Decoder) Status() error { return d.pipeline.Status() }

func (d *Decoder) abort(err error) error {
	d.aborted = true
	return d.pipeline.Fail(err)
}

func (d *Decoder) top() *frame { return d.frames[len(d.frames)-1] }

func (d *Decoder) push(f *frame) error {
	if len(d.frames) >= d.maxNesting {
		return newError(MaxDepthExceeded, len(d.frames)+1, 0, "exceeded max nesting depth %d", d.maxNesting)
	}
	d.frames = append(d.frames, f)
	return nil
}

// chargeBytes accounts n consumed bytes against every enclosing
// length-delimited frame's remaining budget, innermost first.
func (d *Decoder) chargeBytes(n int) error {
	for i := len(d.frames) - 1; i >= 0; i-- {
		fr := d.frames[i]
		if fr.kind != frameLengthDelimited {
			continue
		}
		fr.remaining -= int64(n)
		if fr.remaining < 0 {
			return newError(TruncatedSubmessage, i+1, 0, "length-delimited frame overran its declared length")
		}
	}
	return nil
}

// PutBuffer feeds data into the decoder, synchronously driving handlers, and
// returns the number of bytes actually consumed. A return value less than
// len(data) means either the decoder needs another call to make further
// progress (no error) or it hit a fatal error (non-nil error); callers
// should re-offer any unconsumed suffix on the next call.
func (d *Decoder) PutBuffer(data []byte) (int, error) {
	if err := d.pipeline.Status(); err != nil {
		return 0, err
	}
	pos := 0
	for pos < len(data) {
		n, err := d.step(data[pos:])
		pos += n
		if err != nil {
			return pos, d.abort(err)
		}
		if n == 0 {
			break
		}
	}
	return pos, nil
}

// EndOfStream signals no further bytes are coming. It succeeds only if the
// top-level frame has no partial construct pending; any still-open nested
// frame is a truncated stream.
func (d *Decoder) EndOfStream() error {
	if err := d.pipeline.Status(); err != nil {
		return err
	}
	if len(d.frames) != 1 {
		return d.abort(newError(TruncatedSubmessage, len(d.frames), 0, "stream ended with %d open frame(s)", len(d.frames)))
	}
	top := d.top()
	if top.state != stateExpectTag || top.acc.bytes > 0 {
		return d.abort(newError(EofInTag, 1, 0, "stream ended mid-construct"))
	}
	if err := d.closeSequenceIfOpen(top); err != nil {
		return d.abort(err)
	}
	if em, ok := top.h.EndMessageHandler(); ok {
		if !em(top.c, nil) {
			return d.abort(newError(HandlerAbort, 1, 0, "EndMessage handler aborted"))
		}
	}
	d.frames = d.frames[:0]
	return nil
}

// step processes as much of data as it can without blocking, advancing
// exactly one state transition of the top frame, and returns the number of
// bytes consumed from data. A zero result with a nil error means a StringBuf
// handler accepted none of the bytes offered, so PutBuffer stops there.
func (d *Decoder) step(data []byte) (int, error) {
	fr := d.top()
	switch fr.state {
	case stateExpectTag:
		return d.stepTag(fr, data)
	case stateInValueVarint:
		return d.stepValueVarint(fr, data)
	case stateInValueFixed:
		return d.stepValueFixed(fr, data)
	case stateInLengthHeader:
		return d.stepLengthHeader(fr, data)
	case stateInUnknownValue:
		return d.stepSkipUnknown(fr, data)
	case stateInStringBody:
		return d.stepStringBody(fr, data)
	case stateInPackedBody:
		return d.stepPackedBody(fr, data)
	default:
		return 0, newError(CodeUnspecified, len(d.frames), 0, "unhandled decoder state %d", fr.state)
	}
}

func (d *Decoder) stepTag(fr *frame, data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		b := data[consumed]
		consumed++
		done, err := fr.acc.feed(b)
		if err != nil {
			return consumed, err
		}
		if !done {
			continue
		}
		if err := d.chargeBytes(consumed); err != nil {
			return consumed, err
		}
		tag := fr.acc.result
		fr.acc.reset()
		fieldNum := uint32(tag >> 3)
		wt := defs.WireType(tag & 7)
		if err := d.dispatchTag(fr, fieldNum, wt); err != nil {
			return consumed, err
		}
		return consumed, nil
	}
	if consumed == 0 {
		return 0, newError(EofInTag, len(d.frames), 0, "no bytes available while expecting a tag")
	}
	// ran out of data mid-tag-varint; charge what we read and wait for more.
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func (d *Decoder) dispatchTag(fr *frame, fieldNum uint32, wt defs.WireType) error {
	if wt == defs.WireEndGroup {
		if fr.kind == frameGroup && fieldNum == fr.groupField {
			return d.closeFrame(fr)
		}
		return newError(BadGroupNesting, len(d.frames), fieldNum, "unmatched end-group tag")
	}
	if fieldNum == 0 || fieldNum > maxFieldNumber || wt > defs.WireFixed32 {
		return newError(BadFieldNumber, len(d.frames), fieldNum, "field number out of range or malformed tag")
	}

	var field *defs.FieldDef
	if fr.h != nil {
		field, _ = fr.h.MessageDef().FindByNumber(fieldNum)
	}

	if fr.seqOpen && (field == nil || field != fr.seqFieldDef) {
		if err := d.closeSequenceIfOpen(fr); err != nil {
			return err
		}
	}

	if field == nil {
		return d.dispatchUnknown(fr, fieldNum, wt)
	}
	return d.dispatchKnown(fr, field, wt)
}

func (d *Decoder) dispatchUnknown(fr *frame, fieldNum uint32, wt defs.WireType) error {
	fr.field = nil
	switch wt {
	case defs.WireVarint:
		fr.acc.reset()
		fr.state = stateInValueVarint
	case defs.WireFixed64:
		fr.fixedLen, fr.fixedGot = 8, 0
		d.pipeline.Scratch(8)
		fr.state = stateInValueFixed
	case defs.WireFixed32:
		fr.fixedLen, fr.fixedGot = 4, 0
		d.pipeline.Scratch(4)
		fr.state = stateInValueFixed
	case defs.WireDelimited:
		fr.acc.reset()
		fr.state = stateInLengthHeader
	case defs.WireStartGroup:
		if err := d.push(&frame{kind: frameGroup, h: nil, groupField: fieldNum, remaining: -1, state: stateExpectTag}); err != nil {
			return err
		}
	default:
		return newError(BadFieldNumber, len(d.frames), fieldNum, "unsupported wire type %d", wt)
	}
	return nil
}

func (d *Decoder) dispatchKnown(fr *frame, field *defs.FieldDef, wt defs.WireType) error {
	fr.field = field
	expectedWT, err := defs.ExpectedWireType(field.DescriptorType())
	if err != nil {
		return newError(TypeMismatch, len(d.frames), field.Number(), "%v", err)
	}

	if field.IsRepeated() && field.Type().IsNumeric() && wt == defs.WireDelimited && expectedWT != defs.WireDelimited {
		return d.startPacked(fr, field, expectedWT)
	}

	if wt != expectedWT {
		return newError(TypeMismatch, len(d.frames), field.Number(), "field %s expects wire type %d, got %d", field.FullName(), expectedWT, wt)
	}

	closure := fr.c
	if field.IsRepeated() {
		if err := d.openSequenceIfNeeded(fr, field); err != nil {
			return err
		}
		closure = fr.seqClosure
	}

	switch wt {
	case defs.WireVarint:
		fr.valueClosure = closure
		fr.acc.reset()
		fr.state = stateInValueVarint
	case defs.WireFixed64:
		fr.valueClosure = closure
		fr.fixedLen, fr.fixedGot = 8, 0
		d.pipeline.Scratch(8)
		fr.state = stateInValueFixed
	case defs.WireFixed32:
		fr.valueClosure = closure
		fr.fixedLen, fr.fixedGot = 4, 0
		d.pipeline.Scratch(4)
		fr.state = stateInValueFixed
	case defs.WireDelimited:
		fr.valueClosure = closure
		fr.acc.reset()
		fr.state = stateInLengthHeader
	case defs.WireStartGroup:
		return d.pushSubMessage(fr, field, closure, true, 0)
	}
	return nil
}

func (d *Decoder) openSequenceIfNeeded(fr *frame, field *defs.FieldDef) error {
	if fr.seqOpen && fr.seqFieldDef == field {
		return nil
	}
	parentClosure := fr.c
	var childClosure any = parentClosure
	if ss, ok := fr.h.GetStartSequenceHandler(field); ok {
		childClosure = ss(parentClosure)
	}
	fr.seqOpen = true
	fr.seqFieldDef = field
	fr.seqClosure = childClosure
	return nil
}

func (d *Decoder) closeSequenceIfOpen(fr *frame) error {
	if !fr.seqOpen {
		return nil
	}
	field := fr.seqFieldDef
	closure := fr.seqClosure
	fr.seqOpen = false
	fr.seqFieldDef = nil
	fr.seqClosure = nil
	if fr.h == nil {
		return nil
	}
	if es, ok := fr.h.GetEndSequenceHandler(field); ok {
		if !es(closure) {
			return newError(HandlerAbort, len(d.frames), field.Number(), "EndSequence handler aborted")
		}
	}
	return nil
}

func (d *Decoder) stepValueVarint(fr *frame, data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		b := data[consumed]
		consumed++
		done, err := fr.acc.feed(b)
		if err != nil {
			return consumed, err
		}
		if !done {
			continue
		}
		if err := d.chargeBytes(consumed); err != nil {
			return consumed, err
		}
		v := fr.acc.result
		fr.acc.reset()
		fr.state = stateExpectTag
		if fr.field == nil {
			return consumed, d.afterValueComplete(fr)
		}
		if err := d.deliverVarint(fr, v); err != nil {
			return consumed, err
		}
		return consumed, d.afterValueComplete(fr)
	}
	if consumed == 0 {
		return 0, newError(EofInValue, len(d.frames), fieldNumOf(fr.field), "no bytes available mid-varint")
	}
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func fieldNumOf(f *defs.FieldDef) uint32 {
	if f == nil {
		return 0
	}
	return f.Number()
}

func (d *Decoder) deliverVarint(fr *frame, raw uint64) error {
	field := fr.field
	var ok bool
	switch field.Type() {
	case defs.Bool:
		fn, has := fr.h.GetBoolHandler(field)
		ok = !has || fn(fr.valueClosure, raw != 0)
	case defs.Int32, defs.Enum:
		var v int32
		if field.IntegerFormat() == defs.ZigZag {
			v = zigzag32(uint32(raw))
		} else {
			v = int32(raw)
		}
		fn, has := fr.h.GetInt32Handler(field)
		ok = !has || fn(fr.valueClosure, v)
	case defs.Int64:
		var v int64
		if field.IntegerFormat() == defs.ZigZag {
			v = zigzag64(raw)
		} else {
			v = int64(raw)
		}
		fn, has := fr.h.GetInt64Handler(field)
		ok = !has || fn(fr.valueClosure, v)
	case defs.Uint32:
		fn, has := fr.h.GetUint32Handler(field)
		ok = !has || fn(fr.valueClosure, uint32(raw))
	case defs.Uint64:
		fn, has := fr.h.GetUint64Handler(field)
		ok = !has || fn(fr.valueClosure, raw)
	default:
		return newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a varint value", field.FullName())
	}
	if !ok {
		return newError(HandlerAbort, len(d.frames), field.Number(), "Value handler aborted")
	}
	return nil
}

func (d *Decoder) stepValueFixed(fr *frame, data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) && fr.fixedGot < fr.fixedLen {
		d.pipeline.Append(data[consumed : consumed+1])
		fr.fixedGot++
		consumed++
	}
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	if fr.fixedGot < fr.fixedLen {
		if consumed == 0 {
			return 0, newError(EofInValue, len(d.frames), fieldNumOf(fr.field), "no bytes available mid-fixed-width value")
		}
		return consumed, nil
	}
	fr.state = stateExpectTag
	if fr.field == nil {
		return consumed, d.afterValueComplete(fr)
	}
	if err := d.deliverFixed(fr); err != nil {
		return consumed, err
	}
	return consumed, d.afterValueComplete(fr)
}

func (d *Decoder) deliverFixed(fr *frame) error {
	field := fr.field
	buf := d.pipeline.Bytes()
	var ok bool
	if fr.fixedLen == 8 {
		raw := decodeFixed64(buf[:8])
		switch field.Type() {
		case defs.Double:
			fn, has := fr.h.GetFloat64Handler(field)
			ok = !has || fn(fr.valueClosure, math.Float64frombits(raw))
		case defs.Uint64:
			fn, has := fr.h.GetUint64Handler(field)
			ok = !has || fn(fr.valueClosure, raw)
		case defs.Int64:
			fn, has := fr.h.GetInt64Handler(field)
			ok = !has || fn(fr.valueClosure, int64(raw))
		default:
			return newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a 64-bit value", field.FullName())
		}
	} else {
		raw := decodeFixed32(buf[:4])
		switch field.Type() {
		case defs.Float:
			fn, has := fr.h.GetFloat32Handler(field)
			ok = !has || fn(fr.valueClosure, math.Float32frombits(raw))
		case defs.Uint32:
			fn, has := fr.h.GetUint32Handler(field)
			ok = !has || fn(fr.valueClosure, raw)
		case defs.Int32:
			fn, has := fr.h.GetInt32Handler(field)
			ok = !has || fn(fr.valueClosure, int32(raw))
		default:
			return newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a 32-bit value", field.FullName())
		}
	}
	if !ok {
		return newError(HandlerAbort, len(d.frames), field.Number(), "Value handler aborted")
	}
	return nil
}

// stepLengthHeader reads the varint length prefix of a delimited value
// (string, bytes, submessage, packed block, or an unrecognized field) and
// routes to the appropriate next state once it completes.
func (d *Decoder) stepLengthHeader(fr *frame, data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		b := data[consumed]
		consumed++
		done, err := fr.acc.feed(b)
		if err != nil {
			return consumed, err
		}
		if !done {
			continue
		}
		if err := d.chargeBytes(consumed); err != nil {
			return consumed, err
		}
		length := int64(fr.acc.result)
		fr.acc.reset()
		if err := d.afterLength(fr, length); err != nil {
			return consumed, err
		}
		return consumed, nil
	}
	if consumed == 0 {
		return 0, newError(EofInValue, len(d.frames), fieldNumOf(fr.field), "no bytes available mid-length-prefix")
	}
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func (d *Decoder) afterLength(fr *frame, length int64) error {
	field := fr.field
	if field == nil {
		fr.unknownRemaining = length
		fr.state = stateInUnknownValue
		if length == 0 {
			fr.state = stateExpectTag
			return d.afterValueComplete(fr)
		}
		return nil
	}
	if fr.packedField == field {
		return d.afterPackedLength(fr, length)
	}
	switch field.Type() {
	case defs.String, defs.Bytes:
		closure := fr.valueClosure
		var childClosure any = closure
		if ss, ok := fr.h.GetStartStringHandler(field); ok {
			childClosure = ss(closure, int(length))
		}
		fr.stringField = field
		fr.stringClosure = childClosure
		fr.stringRemaining = length
		fr.state = stateInStringBody
		if length == 0 {
			return d.finishString(fr)
		}
		return nil
	case defs.Message:
		return d.pushSubMessage(fr, field, fr.valueClosure, false, length)
	default:
		return newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a length-delimited value", field.FullName())
	}
}

// afterPackedLength opens the sequence around a packed repeated block once
// its byte length is known, then either finishes immediately (empty block)
// or enters the element-reading loop.
func (d *Decoder) afterPackedLength(fr *frame, length int64) error {
	field := fr.packedField
	var closure any = fr.c
	if ss, ok := fr.h.GetStartSequenceHandler(field); ok {
		closure = ss(fr.c)
	}
	fr.packedClosure = closure
	fr.packedRemaining = length
	fr.fixedGot = 0
	fr.field = nil
	if length == 0 {
		fr.state = stateExpectTag
		_, err := d.finishPacked(fr)
		return err
	}
	fr.state = stateInPackedBody
	return nil
}

func (d *Decoder) stepSkipUnknown(fr *frame, data []byte) (int, error) {
	n := len(data)
	if int64(n) > fr.unknownRemaining {
		n = int(fr.unknownRemaining)
	}
	if err := d.chargeBytes(n); err != nil {
		return n, err
	}
	fr.unknownRemaining -= int64(n)
	if fr.unknownRemaining > 0 {
		return n, nil
	}
	fr.state = stateExpectTag
	return n, d.afterValueComplete(fr)
}

func (d *Decoder) stepStringBody(fr *frame, data []byte) (int, error) {
	avail := int64(len(data))
	if avail > fr.stringRemaining {
		avail = fr.stringRemaining
	}
	chunk := data[:avail]
	accepted := int64(len(chunk))
	if sb, ok := fr.h.GetStringBufHandler(fr.stringField); ok {
		accepted = int64(sb(fr.stringClosure, chunk))
		if accepted < 0 || accepted > int64(len(chunk)) {
			return 0, newError(CodeUnspecified, len(d.frames), fr.stringField.Number(), "StringBuf handler returned an out-of-range consumed count")
		}
	}
	if err := d.chargeBytes(int(accepted)); err != nil {
		return int(accepted), err
	}
	fr.stringRemaining -= accepted
	if fr.stringRemaining > 0 {
		return int(accepted), nil
	}
	fr.state = stateExpectTag
	return int(accepted), d.finishString(fr)
}

func (d *Decoder) finishString(fr *frame) error {
	field := fr.stringField
	closure := fr.stringClosure
	fr.stringField = nil
	fr.stringClosure = nil
	if es, ok := fr.h.GetEndStringHandler(field); ok {
		if !es(closure, nil) {
			return newError(HandlerAbort, len(d.frames), field.Number(), "EndString handler aborted")
		}
	}
	return d.afterValueComplete(fr)
}

func (d *Decoder) startPacked(fr *frame, field *defs.FieldDef, elemWire defs.WireType) error {
	fr.field = field
	fr.acc.reset()
	fr.state = stateInLengthHeader
	fr.packedField = field
	fr.packedElemWire = elemWire
	return nil
}

// pushSubMessage pushes a new frame for a Message-typed field, either
// length-delimited (isGroup=false, length is the byte length just read from
// the wire) or group-delimited (isGroup=true, length is ignored).
func (d *Decoder) pushSubMessage(fr *frame, field *defs.FieldDef, parentClosure any, isGroup bool, length int64) error {
	sub, ok := fr.h.GetSubHandlers(field)
	if !ok {
		return newError(TypeMismatch, len(d.frames), field.Number(), "field %s has no registered sub-handlers", field.FullName())
	}
	var childClosure any = parentClosure
	if ssm, ok := fr.h.GetStartSubMessageHandler(field); ok {
		childClosure = ssm(parentClosure)
	}
	child := &frame{h: sub, c: childClosure, originField: field, state: stateExpectTag}
	if isGroup {
		child.kind = frameGroup
		child.groupField = field.Number()
		child.remaining = -1
	} else {
		child.kind = frameLengthDelimited
		child.remaining = length
	}
	fr.state = stateExpectTag
	if err := d.push(child); err != nil {
		return err
	}
	if sm, ok := sub.StartMessageHandler(); ok {
		if !sm(childClosure) {
			return newError(HandlerAbort, len(d.frames), field.Number(), "StartMessage handler aborted")
		}
	}
	return d.afterValueComplete(child)
}

// closeFrame tears down the top frame: closes any open sequence, fires
// EndMessage (if it had handlers bound), pops it, and fires EndSubMessage
// on the new top for the field that pushed it.
func (d *Decoder) closeFrame(fr *frame) error {
	if err := d.closeSequenceIfOpen(fr); err != nil {
		return err
	}
	if fr.h != nil {
		if em, ok := fr.h.EndMessageHandler(); ok {
			if !em(fr.c, nil) {
				return newError(HandlerAbort, len(d.frames), 0, "EndMessage handler aborted")
			}
		}
	}
	d.frames = d.frames[:len(d.frames)-1]
	if fr.h != nil && fr.originField != nil {
		parent := d.top()
		if esm, ok := parent.h.GetEndSubMessageHandler(fr.originField); ok {
			if !esm(fr.c) {
				return newError(HandlerAbort, len(d.frames), fr.originField.Number(), "EndSubMessage handler aborted")
			}
		}
	}
	return d.afterValueComplete(d.top())
}

// afterValueComplete checks whether completing the value just delivered (or
// skipped) also exhausted the enclosing length-delimited frame, closing it
// if so; this can cascade through multiple ancestors ending at the same
// byte offset.
func (d *Decoder) afterValueComplete(fr *frame) error {
	if fr.kind == frameLengthDelimited && fr.remaining == 0 && fr.state == stateExpectTag {
		return d.closeFrame(fr)
	}
	return nil
}

func (d *Decoder) stepPackedBody(fr *frame, data []byte) (int, error) {
	if fr.packedRemaining == 0 {
		return d.finishPacked(fr)
	}
	switch fr.packedElemWire {
	case defs.WireVarint:
		return d.stepPackedVarint(fr, data)
	default:
		return d.stepPackedFixed(fr, data)
	}
}

func (d *Decoder) stepPackedVarint(fr *frame, data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		b := data[consumed]
		consumed++
		fr.packedRemaining--
		done, err := fr.acc.feed(b)
		if err != nil {
			return consumed, err
		}
		if !done {
			if fr.packedRemaining <= 0 {
				return consumed, newError(TruncatedSubmessage, len(d.frames), fr.packedField.Number(), "packed block ended mid-element")
			}
			continue
		}
		v := fr.acc.result
		fr.acc.reset()
		if err := d.chargeBytes(consumed); err != nil {
			return consumed, err
		}
		if err := d.deliverPackedVarint(fr, v); err != nil {
			return consumed, err
		}
		if fr.packedRemaining == 0 {
			n, err := d.finishPacked(fr)
			return consumed + n, err
		}
		return consumed, nil
	}
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func (d *Decoder) deliverPackedVarint(fr *frame, raw uint64) error {
	field := fr.packedField
	var ok bool
	switch field.Type() {
	case defs.Bool:
		fn, has := fr.h.GetBoolHandler(field)
		ok = !has || fn(fr.packedClosure, raw != 0)
	case defs.Int32, defs.Enum:
		var v int32
		if field.IntegerFormat() == defs.ZigZag {
			v = zigzag32(uint32(raw))
		} else {
			v = int32(raw)
		}
		fn, has := fr.h.GetInt32Handler(field)
		ok = !has || fn(fr.packedClosure, v)
	case defs.Int64:
		var v int64
		if field.IntegerFormat() == defs.ZigZag {
			v = zigzag64(raw)
		} else {
			v = int64(raw)
		}
		fn, has := fr.h.GetInt64Handler(field)
		ok = !has || fn(fr.packedClosure, v)
	case defs.Uint32:
		fn, has := fr.h.GetUint32Handler(field)
		ok = !has || fn(fr.packedClosure, uint32(raw))
	case defs.Uint64:
		fn, has := fr.h.GetUint64Handler(field)
		ok = !has || fn(fr.packedClosure, raw)
	default:
		return newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a packed varint element", field.FullName())
	}
	if !ok {
		return newError(HandlerAbort, len(d.frames), field.Number(), "Value handler aborted")
	}
	return nil
}

func (d *Decoder) stepPackedFixed(fr *frame, data []byte) (int, error) {
	width := 4
	if fr.packedElemWire == defs.WireFixed64 {
		width = 8
	}
	if fr.fixedGot == 0 {
		d.pipeline.Scratch(width)
	}
	consumed := 0
	for consumed < len(data) && fr.fixedGot < width {
		d.pipeline.Append(data[consumed : consumed+1])
		fr.fixedGot++
		consumed++
		fr.packedRemaining--
	}
	if err := d.chargeBytes(consumed); err != nil {
		return consumed, err
	}
	if fr.fixedGot < width {
		return consumed, nil
	}
	field := fr.packedField
	buf := d.pipeline.Bytes()
	var ok bool
	if width == 8 {
		raw := decodeFixed64(buf[:8])
		switch field.Type() {
		case defs.Double:
			fn, has := fr.h.GetFloat64Handler(field)
			ok = !has || fn(fr.packedClosure, math.Float64frombits(raw))
		case defs.Uint64:
			fn, has := fr.h.GetUint64Handler(field)
			ok = !has || fn(fr.packedClosure, raw)
		case defs.Int64:
			fn, has := fr.h.GetInt64Handler(field)
			ok = !has || fn(fr.packedClosure, int64(raw))
		default:
			return consumed, newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a packed 64-bit element", field.FullName())
		}
	} else {
		raw := decodeFixed32(buf[:4])
		switch field.Type() {
		case defs.Float:
			fn, has := fr.h.GetFloat32Handler(field)
			ok = !has || fn(fr.packedClosure, math.Float32frombits(raw))
		case defs.Uint32:
			fn, has := fr.h.GetUint32Handler(field)
			ok = !has || fn(fr.packedClosure, raw)
		case defs.Int32:
			fn, has := fr.h.GetInt32Handler(field)
			ok = !has || fn(fr.packedClosure, int32(raw))
		default:
			return consumed, newError(TypeMismatch, len(d.frames), field.Number(), "field %s cannot take a packed 32-bit element", field.FullName())
		}
	}
	if !ok {
		return consumed, newError(HandlerAbort, len(d.frames), field.Number(), "Value handler aborted")
	}
	fr.fixedGot = 0
	if fr.packedRemaining == 0 {
		n, err := d.finishPacked(fr)
		return consumed + n, err
	}
	return consumed, nil
}

func (d *Decoder) finishPacked(fr *frame) (int, error) {
	field := fr.packedField
	closure := fr.packedClosure
	fr.packedField = nil
	fr.packedClosure = nil
	fr.field = nil
	fr.state = stateExpectTag
	if es, ok := fr.h.GetEndSequenceHandler(field); ok {
		if !es(closure) {
			return 0, newError(HandlerAbort, len(d.frames), field.Number(), "EndSequence handler aborted")
		}
	}
	if err := d.afterValueComplete(fr); err != nil {
		return 0, err
	}
	return 0, nil
}
