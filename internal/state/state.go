package state

import (
	"strata/internal/constraint"
	"strata/internal/sym"
)

// StateID identifies a canonical state within its Manager.
type StateID uint32

// ProgramState is the immutable product of environment, store, generic
// data, and constraint set. Instances are created only by the Manager and
// are canonical: structurally equal states are the same object. The
// reference count exists purely for graph-node lifetime bookkeeping and
// never changes observable behavior.
type ProgramState struct {
	mgr   *Manager
	env   *Environment
	store *Store
	gen   *generics
	cons  *constraint.Set

	id   StateID
	refs int32
}

// ID returns the state's canonical identity.
func (s *ProgramState) ID() StateID { return s.id }

// Manager returns the owning state manager.
func (s *ProgramState) Manager() *Manager { return s.mgr }

// Env returns the expression environment.
func (s *ProgramState) Env() *Environment { return s.env }

// StoreHandle returns the store handle.
func (s *ProgramState) StoreHandle() *Store { return s.store }

// Constraints returns the constraint set.
func (s *ProgramState) Constraints() *constraint.Set { return s.cons }

// NodeValue returns the value computed for an expression node. Unbound
// nodes read as Unknown.
func (s *ProgramState) NodeValue(node uint32) sym.SVal {
	if v, ok := s.env.Lookup(node); ok {
		return v
	}
	return sym.UnknownVal()
}

// RegionValue resolves the value readable at a region. Unbound regions
// read as Unknown.
func (s *ProgramState) RegionValue(region sym.RegionID) sym.SVal {
	v, ok := s.mgr.storeMgr.Lookup(s.store, region)
	if !ok {
		return sym.UnknownVal()
	}
	return v
}

// Trait returns the checker-private fact stored under key, if any.
func (s *ProgramState) Trait(key *TraitKey) (GenericValue, bool) {
	return s.gen.lookup(key)
}

// WithTrait returns a state carrying val under key. Returns the receiver
// when the fact already holds.
func (s *ProgramState) WithTrait(key *TraitKey, val GenericValue) *ProgramState {
	return s.mgr.derive(s, s.env, s.store, s.gen.with(key, val), s.cons)
}

// WithoutTrait returns a state without a fact under key.
func (s *ProgramState) WithoutTrait(key *TraitKey) *ProgramState {
	return s.mgr.derive(s, s.env, s.store, s.gen.without(key), s.cons)
}

// Retain marks the state referenced by a graph node or pending work item.
func (s *ProgramState) Retain() { s.refs++ }

// Release drops one reference.
func (s *ProgramState) Release() {
	if s.refs > 0 {
		s.refs--
	}
}

// equalContents compares the structural content of two states.
func (s *ProgramState) equalContents(env *Environment, store *Store, gen *generics, cons *constraint.Set) bool {
	return s.env.Equal(env) && s.store.Equal(store) && s.gen.equal(gen) && s.cons.Equal(cons)
}
