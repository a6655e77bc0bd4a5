package state

import (
	"hash/fnv"
	"slices"

	"strata/internal/sym"
)

// Environment is an immutable mapping from expression node to its value.
// Transforms return a new environment; the old one stays valid for every
// state still holding it.
type Environment struct {
	bindings map[uint32]sym.SVal
	digest   uint64
}

var emptyEnv = newEnvironment(map[uint32]sym.SVal{})

func newEnvironment(bindings map[uint32]sym.SVal) *Environment {
	e := &Environment{bindings: bindings}
	e.digest = e.computeDigest()
	return e
}

// EmptyEnvironment returns the canonical environment with no bindings.
func EmptyEnvironment() *Environment { return emptyEnv }

// Lookup returns the value bound to a node, if any.
func (e *Environment) Lookup(node uint32) (sym.SVal, bool) {
	v, ok := e.bindings[node]
	return v, ok
}

// Bind returns an environment with node mapped to val. Returns the
// receiver when the binding already holds.
func (e *Environment) Bind(node uint32, val sym.SVal) *Environment {
	if existing, ok := e.bindings[node]; ok && existing == val {
		return e
	}
	next := make(map[uint32]sym.SVal, len(e.bindings)+1)
	for k, v := range e.bindings {
		next[k] = v
	}
	next[node] = val
	return newEnvironment(next)
}

// Remove returns an environment without a binding for node. Returns the
// receiver when node is unbound.
func (e *Environment) Remove(node uint32) *Environment {
	if _, ok := e.bindings[node]; !ok {
		return e
	}
	next := make(map[uint32]sym.SVal, len(e.bindings))
	for k, v := range e.bindings {
		if k != node {
			next[k] = v
		}
	}
	return newEnvironment(next)
}

// Len returns the number of bindings.
func (e *Environment) Len() int { return len(e.bindings) }

// Digest returns a structural hash of the bindings.
func (e *Environment) Digest() uint64 { return e.digest }

// Equal compares binding contents structurally.
func (e *Environment) Equal(other *Environment) bool {
	if e == other {
		return true
	}
	if len(e.bindings) != len(other.bindings) {
		return false
	}
	for k, v := range e.bindings {
		if ov, ok := other.bindings[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Nodes returns the bound nodes in ascending order.
func (e *Environment) Nodes() []uint32 {
	out := make([]uint32, 0, len(e.bindings))
	for k := range e.bindings {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (e *Environment) computeDigest() uint64 {
	nodes := e.Nodes()
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, n := range nodes {
		put(uint64(n))
		putSVal(put, e.bindings[n])
	}
	return h.Sum64()
}

func putSVal(put func(uint64), v sym.SVal) {
	put(uint64(v.Kind))
	put(uint64(v.Int))
	if v.Bit {
		put(1)
	} else {
		put(0)
	}
	put(uint64(v.Sym))
	put(uint64(v.Reg))
}
