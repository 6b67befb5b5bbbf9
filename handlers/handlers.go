// Package handlers implements the frozen dispatch table bound 1:1 to a
// frozen defs.MessageDef. A Handlers instance has no dependency outside
// defs and refcount: like the schema graph it sits on top of, it is the
// thing being built, not a consumer of some other dispatch-table library.
package handlers

import (
	"fmt"

	"github.com/wkalt/pbcore/defs"
	"github.com/wkalt/pbcore/refcount"
)

// Handler function shapes, one per slot kind a field can register. Each
// receives the "current closure" threading through the decode and returns
// whatever the slot's signature promises; a bool return of false aborts
// decoding.
type (
	StartMessageHandler    func(closure any) bool
	EndMessageHandler      func(closure any, status error) bool
	Int32Handler           func(closure any, v int32) bool
	Int64Handler           func(closure any, v int64) bool
	Uint32Handler          func(closure any, v uint32) bool
	Uint64Handler          func(closure any, v uint64) bool
	Float32Handler         func(closure any, v float32) bool
	Float64Handler         func(closure any, v float64) bool
	BoolHandler            func(closure any, v bool) bool
	StartStringHandler     func(closure any, sizeHint int) any
	StringBufHandler       func(closure any, data []byte) (consumed int)
	EndStringHandler       func(closure any, status error) bool
	StartSubMessageHandler func(closure any) any
	EndSubMessageHandler   func(closure any) bool
	StartSequenceHandler   func(closure any) any
	EndSequenceHandler     func(closure any) bool
)

// slot offsets within a field's fixed 8-wide block (defs.handlerSlotsPerField).
const (
	slotValue           = 0
	slotStartString     = 1
	slotStringBuf       = 2
	slotEndString       = 3
	slotStartSubMessage = 4
	slotEndSubMessage   = 5
	slotStartSequence   = 6
	slotEndSequence     = 7
)

// Handlers is a dispatch table bound to a single frozen defs.MessageDef.
type Handlers struct {
	refcount.Base

	msgdef *defs.MessageDef

	startMessage StartMessageHandler
	endMessage   EndMessageHandler

	slots []any // len == msgdef.SelectorCount(); indexed by field.SelectorBase()+offset

	subHandlers map[uint32]*Handlers // by field number
}

// New allocates a Handlers bound to msgdef, which must already be frozen,
// sized by msgdef's selector count.
func New(msgdef *defs.MessageDef, owner refcount.Owner) (*Handlers, error) {
	if !msgdef.IsFrozen() {
		return nil, fmt.Errorf("handlers: msgdef %s is not frozen", msgdef.FullName())
	}
	h := &Handlers{
		msgdef:      msgdef,
		slots:       make([]any, msgdef.SelectorCount()),
		subHandlers: make(map[uint32]*Handlers),
	}
	if err := h.Ref(owner); err != nil {
		return nil, err
	}
	return h, nil
}

// MessageDef returns the frozen MessageDef this table is bound to.
func (h *Handlers) MessageDef() *defs.MessageDef { return h.msgdef }

func (h *Handlers) fieldOf(f *defs.FieldDef) error {
	if f.Parent() != h.msgdef {
		return fmt.Errorf("handlers: field %s does not belong to the bound message %s", f.FullName(), h.msgdef.FullName())
	}
	return nil
}

func (h *Handlers) setSlot(f *defs.FieldDef, offset int, fn any) error {
	if err := h.RequireMutable(); err != nil {
		return err
	}
	if err := h.fieldOf(f); err != nil {
		return err
	}
	h.slots[f.SelectorBase()+offset] = fn
	return nil
}

func (h *Handlers) getSlot(f *defs.FieldDef, offset int) any {
	return h.slots[f.SelectorBase()+offset]
}

// SetStartMessageHandler sets the once-per-message start handler.
func (h *Handlers) SetStartMessageHandler(fn StartMessageHandler) error {
	if err := h.RequireMutable(); err != nil {
		return err
	}
	h.startMessage = fn
	return nil
}

// SetEndMessageHandler sets the once-per-message end handler.
func (h *Handlers) SetEndMessageHandler(fn EndMessageHandler) error {
	if err := h.RequireMutable(); err != nil {
		return err
	}
	h.endMessage = fn
	return nil
}

// StartMessageHandler returns the registered start-message handler, if any.
func (h *Handlers) StartMessageHandler() (StartMessageHandler, bool) {
	return h.startMessage, h.startMessage != nil
}

// EndMessageHandler returns the registered end-message handler, if any.
func (h *Handlers) EndMessageHandler() (EndMessageHandler, bool) {
	return h.endMessage, h.endMessage != nil
}

func scalarKindMismatch(f *defs.FieldDef, want string) error {
	return fmt.Errorf("handlers: field %s of type %s cannot take a %s value handler", f.FullName(), f.Type(), want)
}

// SetInt32Handler registers a Value<int32> handler; valid for Int32 fields
// and for Enum fields, whose values decode as int32.
func (h *Handlers) SetInt32Handler(f *defs.FieldDef, fn Int32Handler) error {
	if f.Type() != defs.Int32 && f.Type() != defs.Enum {
		return scalarKindMismatch(f, "int32")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetInt64Handler registers a Value<int64> handler.
func (h *Handlers) SetInt64Handler(f *defs.FieldDef, fn Int64Handler) error {
	if f.Type() != defs.Int64 {
		return scalarKindMismatch(f, "int64")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetUint32Handler registers a Value<uint32> handler.
func (h *Handlers) SetUint32Handler(f *defs.FieldDef, fn Uint32Handler) error {
	if f.Type() != defs.Uint32 {
		return scalarKindMismatch(f, "uint32")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetUint64Handler registers a Value<uint64> handler.
func (h *Handlers) SetUint64Handler(f *defs.FieldDef, fn Uint64Handler) error {
	if f.Type() != defs.Uint64 {
		return scalarKindMismatch(f, "uint64")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetFloat32Handler registers a Value<float32> handler.
func (h *Handlers) SetFloat32Handler(f *defs.FieldDef, fn Float32Handler) error {
	if f.Type() != defs.Float {
		return scalarKindMismatch(f, "float32")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetFloat64Handler registers a Value<float64> handler.
func (h *Handlers) SetFloat64Handler(f *defs.FieldDef, fn Float64Handler) error {
	if f.Type() != defs.Double {
		return scalarKindMismatch(f, "float64")
	}
	return h.setSlot(f, slotValue, fn)
}

// SetBoolHandler registers a Value<bool> handler.
func (h *Handlers) SetBoolHandler(f *defs.FieldDef, fn BoolHandler) error {
	if f.Type() != defs.Bool {
		return scalarKindMismatch(f, "bool")
	}
	return h.setSlot(f, slotValue, fn)
}

func stringKindOK(f *defs.FieldDef) bool {
	return f.Type() == defs.String || f.Type() == defs.Bytes
}

// SetStartStringHandler registers the StartString slot for a String/Bytes
// field.
func (h *Handlers) SetStartStringHandler(f *defs.FieldDef, fn StartStringHandler) error {
	if !stringKindOK(f) {
		return scalarKindMismatch(f, "start-string")
	}
	return h.setSlot(f, slotStartString, fn)
}

// SetStringBufHandler registers the StringBuf slot.
func (h *Handlers) SetStringBufHandler(f *defs.FieldDef, fn StringBufHandler) error {
	if !stringKindOK(f) {
		return scalarKindMismatch(f, "string-buf")
	}
	return h.setSlot(f, slotStringBuf, fn)
}

// SetEndStringHandler registers the EndString slot.
func (h *Handlers) SetEndStringHandler(f *defs.FieldDef, fn EndStringHandler) error {
	if !stringKindOK(f) {
		return scalarKindMismatch(f, "end-string")
	}
	return h.setSlot(f, slotEndString, fn)
}

// SetStartSubMessageHandler registers the StartSubMessage slot for a
// Message-typed field.
func (h *Handlers) SetStartSubMessageHandler(f *defs.FieldDef, fn StartSubMessageHandler) error {
	if f.Type() != defs.Message {
		return scalarKindMismatch(f, "start-submessage")
	}
	return h.setSlot(f, slotStartSubMessage, fn)
}

// SetEndSubMessageHandler registers the EndSubMessage slot.
func (h *Handlers) SetEndSubMessageHandler(f *defs.FieldDef, fn EndSubMessageHandler) error {
	if f.Type() != defs.Message {
		return scalarKindMismatch(f, "end-submessage")
	}
	return h.setSlot(f, slotEndSubMessage, fn)
}

// SetStartSequenceHandler registers the StartSequence slot for a repeated
// field.
func (h *Handlers) SetStartSequenceHandler(f *defs.FieldDef, fn StartSequenceHandler) error {
	if !f.IsRepeated() {
		return scalarKindMismatch(f, "start-sequence")
	}
	return h.setSlot(f, slotStartSequence, fn)
}

// SetEndSequenceHandler registers the EndSequence slot.
func (h *Handlers) SetEndSequenceHandler(f *defs.FieldDef, fn EndSequenceHandler) error {
	if !f.IsRepeated() {
		return scalarKindMismatch(f, "end-sequence")
	}
	return h.setSlot(f, slotEndSequence, fn)
}

// SetSubHandlers installs the child Handlers for a Message-typed field,
// requiring its msgdef to match the field's resolved subdef.
func (h *Handlers) SetSubHandlers(f *defs.FieldDef, sub *Handlers) error {
	if err := h.RequireMutable(); err != nil {
		return err
	}
	if err := h.fieldOf(f); err != nil {
		return err
	}
	if f.Type() != defs.Message {
		return fmt.Errorf("handlers: field %s is not message-typed", f.FullName())
	}
	want, ok := f.SubMessageDef()
	if !ok || want != sub.msgdef {
		return fmt.Errorf("handlers: sub-handlers msgdef does not match field %s's subdef", f.FullName())
	}
	h.subHandlers[f.Number()] = sub
	return nil
}

// GetSubHandlers returns the child Handlers installed for f, if any.
func (h *Handlers) GetSubHandlers(f *defs.FieldDef) (*Handlers, bool) {
	sub, ok := h.subHandlers[f.Number()]
	return sub, ok
}

// typed getters used by the decoder to dispatch values.

func (h *Handlers) GetInt32Handler(f *defs.FieldDef) (Int32Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Int32Handler)
	return fn, ok
}

func (h *Handlers) GetInt64Handler(f *defs.FieldDef) (Int64Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Int64Handler)
	return fn, ok
}

func (h *Handlers) GetUint32Handler(f *defs.FieldDef) (Uint32Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Uint32Handler)
	return fn, ok
}

func (h *Handlers) GetUint64Handler(f *defs.FieldDef) (Uint64Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Uint64Handler)
	return fn, ok
}

func (h *Handlers) GetFloat32Handler(f *defs.FieldDef) (Float32Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Float32Handler)
	return fn, ok
}

func (h *Handlers) GetFloat64Handler(f *defs.FieldDef) (Float64Handler, bool) {
	fn, ok := h.getSlot(f, slotValue).(Float64Handler)
	return fn, ok
}

func (h *Handlers) GetBoolHandler(f *defs.FieldDef) (BoolHandler, bool) {
	fn, ok := h.getSlot(f, slotValue).(BoolHandler)
	return fn, ok
}

func (h *Handlers) GetStartStringHandler(f *defs.FieldDef) (StartStringHandler, bool) {
	fn, ok := h.getSlot(f, slotStartString).(StartStringHandler)
	return fn, ok
}

func (h *Handlers) GetStringBufHandler(f *defs.FieldDef) (StringBufHandler, bool) {
	fn, ok := h.getSlot(f, slotStringBuf).(StringBufHandler)
	return fn, ok
}

func (h *Handlers) GetEndStringHandler(f *defs.FieldDef) (EndStringHandler, bool) {
	fn, ok := h.getSlot(f, slotEndString).(EndStringHandler)
	return fn, ok
}

func (h *Handlers) GetStartSubMessageHandler(f *defs.FieldDef) (StartSubMessageHandler, bool) {
	fn, ok := h.getSlot(f, slotStartSubMessage).(StartSubMessageHandler)
	return fn, ok
}

func (h *Handlers) GetEndSubMessageHandler(f *defs.FieldDef) (EndSubMessageHandler, bool) {
	fn, ok := h.getSlot(f, slotEndSubMessage).(EndSubMessageHandler)
	return fn, ok
}

func (h *Handlers) GetStartSequenceHandler(f *defs.FieldDef) (StartSequenceHandler, bool) {
	fn, ok := h.getSlot(f, slotStartSequence).(StartSequenceHandler)
	return fn, ok
}

func (h *Handlers) GetEndSequenceHandler(f *defs.FieldDef) (EndSequenceHandler, bool) {
	fn, ok := h.getSlot(f, slotEndSequence).(EndSequenceHandler)
	return fn, ok
}

// Reachable implements refcount.Freezable: a Handlers' sub-handlers are
// reachable from it. The bound msgdef is not included because New already
// requires it to be frozen.
func (h *Handlers) Reachable() []refcount.Freezable {
	out := make([]refcount.Freezable, 0, len(h.subHandlers))
	for _, sub := range h.subHandlers {
		out = append(out, sub)
	}
	return out
}

// Validate implements refcount.Freezable. Handlers has no invariants beyond
// what the setters already enforce at registration time.
func (h *Handlers) Validate() error { return nil }

// Finalize implements refcount.Freezable; Handlers has no derived state.
func (h *Handlers) Finalize() {}
