// Package refcount implements the shared-ownership and freeze lifecycle that
// every schema object (MessageDef, FieldDef, EnumDef, Handlers) is built on.
//
// An object starts out mutable and owned by zero or more Owner tokens. Freeze
// computes the transitive closure of a root set, validates every object in
// it, and only once the whole closure validates does it flip every object's
// frozen bit. A frozen object never becomes mutable again, and is safe for
// concurrent read from that point on.
package refcount

import "errors"

// Owner is an opaque identity used to track which caller holds a reference to
// a mutable def. Callers typically use a pointer to their own state as the
// token.
type Owner any

// ErrFrozen is returned by any mutator called on an already-frozen object.
var ErrFrozen = errors.New("refcount: object is frozen")

// ErrNotOwner is returned by Unref/DonateRef when the owner token supplied
// does not hold a reference.
var ErrNotOwner = errors.New("refcount: owner does not hold a reference")

// Base is embedded by every mutable-then-frozen schema object. It supplies
// the owner-token bookkeeping and the frozen flag, plus the unexported
// freeze hook that lets this package's Freeze flip the bit without giving
// any other package direct write access to it.
type Base struct {
	frozen bool
	owners map[Owner]int
}

// Ref records that owner holds a reference to the enclosing object.
func (b *Base) Ref(owner Owner) error {
	if b.frozen {
		// Frozen objects are immutable and safe to share further; refcounting
		// on them is a no-op rather than an error.
		return nil
	}
	if b.owners == nil {
		b.owners = make(map[Owner]int)
	}
	b.owners[owner]++
	return nil
}

// Unref releases owner's reference. It is an error to unref a token that
// does not currently hold one.
func (b *Base) Unref(owner Owner) error {
	if b.frozen {
		return nil
	}
	if b.owners[owner] <= 0 {
		return ErrNotOwner
	}
	b.owners[owner]--
	if b.owners[owner] == 0 {
		delete(b.owners, owner)
	}
	return nil
}

// DonateRef transfers ownership from one owner token to another, e.g. when a
// FieldDef is handed off to the MessageDef that adopts it.
func (b *Base) DonateRef(from, to Owner) error {
	if b.frozen {
		return nil
	}
	if b.owners[from] <= 0 {
		return ErrNotOwner
	}
	if err := b.Unref(from); err != nil {
		return err
	}
	return b.Ref(to)
}

// CheckRef reports whether owner currently holds a reference.
func (b *Base) CheckRef(owner Owner) bool {
	if b.frozen {
		return true
	}
	return b.owners[owner] > 0
}

// IsFrozen reports whether the enclosing object has been frozen.
func (b *Base) IsFrozen() bool {
	return b.frozen
}

// RequireMutable returns ErrFrozen if the enclosing object is frozen. Every
// mutator on every Def/Handlers type calls this first.
func (b *Base) RequireMutable() error {
	if b.frozen {
		return ErrFrozen
	}
	return nil
}

// freeze flips the frozen bit. Only Freeze (in this package) may call it,
// which is what makes the bit monotonic: nothing outside this package can
// set it, and nothing anywhere can clear it.
func (b *Base) freeze() {
	b.frozen = true
}

// Freezable is implemented by every object that participates in a freeze
// transaction: Defs and Handlers.
type Freezable interface {
	IsFrozen() bool
	// Reachable returns the Freezable objects directly referenced by this
	// one (not transitively); Freeze walks this to compute the closure.
	Reachable() []Freezable
	// Validate runs this object's freeze-time invariant checks. It must be
	// a pure function of the object's current state: Freeze calls Validate
	// on every object in the closure before mutating any of them, so that a
	// validation failure never leaves a partially-frozen graph.
	Validate() error
	// Finalize assigns any derived fields (e.g. selector_base) that only
	// make sense once the whole closure is known to validate. It is called
	// only after every object in the closure has validated successfully,
	// and must not fail.
	Finalize()
	freeze()
}

// Freeze validates the transitive closure of roots and, only if every object
// in it validates, flips all of their frozen bits. On failure, no object's
// frozen bit or derived fields are touched; Freeze is also idempotent, since
// re-freezing an already-frozen root set touches nothing already frozen.
func Freeze(roots ...Freezable) error {
	closure := collectClosure(roots)

	pending := make([]Freezable, 0, len(closure))
	for _, obj := range closure {
		if obj.IsFrozen() {
			continue
		}
		if err := obj.Validate(); err != nil {
			return err
		}
		pending = append(pending, obj)
	}

	for _, obj := range pending {
		obj.Finalize()
		obj.freeze()
	}
	return nil
}

func collectClosure(roots []Freezable) []Freezable {
	seen := make(map[Freezable]bool, len(roots))
	var order []Freezable
	var visit func(Freezable)
	visit = func(f Freezable) {
		if f == nil || seen[f] {
			return
		}
		seen[f] = true
		order = append(order, f)
		for _, child := range f.Reachable() {
			visit(child)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}
