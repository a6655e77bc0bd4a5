package state

import (
	"hash/fnv"
	"sort"
)

// TraitKey identifies one checker-private slot in a state's generic data
// map. Keys compare by pointer identity; names must be unique within a
// session and only order the digest computation.
type TraitKey struct {
	name string
}

// NewTraitKey allocates a key. Each checker allocates its keys once at
// registration time.
func NewTraitKey(name string) *TraitKey {
	return &TraitKey{name: name}
}

func (k *TraitKey) String() string { return k.name }

// GenericValue is an immutable checker-private fact attached to a state.
// Implementations must never mutate after being stored.
type GenericValue interface {
	Digest() uint64
	Equal(GenericValue) bool
}

// generics is the immutable trait map behind a shared pointer, so state
// derivation can detect "unchanged" by identity.
type generics struct {
	m      map[*TraitKey]GenericValue
	digest uint64
}

var emptyGenerics = newGenerics(map[*TraitKey]GenericValue{})

func newGenerics(m map[*TraitKey]GenericValue) *generics {
	g := &generics{m: m}
	g.digest = g.computeDigest()
	return g
}

func (g *generics) lookup(k *TraitKey) (GenericValue, bool) {
	v, ok := g.m[k]
	return v, ok
}

func (g *generics) with(k *TraitKey, v GenericValue) *generics {
	if existing, ok := g.m[k]; ok && existing.Equal(v) {
		return g
	}
	next := make(map[*TraitKey]GenericValue, len(g.m)+1)
	for key, val := range g.m {
		next[key] = val
	}
	next[k] = v
	return newGenerics(next)
}

func (g *generics) without(k *TraitKey) *generics {
	if _, ok := g.m[k]; !ok {
		return g
	}
	next := make(map[*TraitKey]GenericValue, len(g.m))
	for key, val := range g.m {
		if key != k {
			next[key] = val
		}
	}
	return newGenerics(next)
}

func (g *generics) equal(other *generics) bool {
	if g == other {
		return true
	}
	if len(g.m) != len(other.m) {
		return false
	}
	for k, v := range g.m {
		ov, ok := other.m[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (g *generics) computeDigest() uint64 {
	if len(g.m) == 0 {
		return 0
	}
	keys := make([]*TraitKey, 0, len(g.m))
	for k := range g.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].name < keys[j].name })

	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, k := range keys {
		h.Write([]byte(k.name))
		put(g.m[k].Digest())
	}
	return h.Sum64()
}
