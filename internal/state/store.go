package state

import (
	"hash/fnv"
	"slices"

	"strata/internal/sym"
)

// storeEntry is one region binding. Default bindings cover a whole
// aggregate lazily; reads through sub-regions derive fresh symbols.
type storeEntry struct {
	val sym.SVal
	def bool
}

// Store is an immutable mapping from region to bound value. States hold
// a Store handle; the representation belongs to the StoreManager.
type Store struct {
	bindings map[sym.RegionID]storeEntry
	digest   uint64
}

func newStore(bindings map[sym.RegionID]storeEntry) *Store {
	s := &Store{bindings: bindings}
	s.digest = s.computeDigest()
	return s
}

// Digest returns a structural hash of the bindings.
func (s *Store) Digest() uint64 {
	if s == nil {
		return 0
	}
	return s.digest
}

// Len returns the number of bindings.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// Equal compares binding contents structurally.
func (s *Store) Equal(other *Store) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return s.Len() == 0 && other.Len() == 0
	}
	if len(s.bindings) != len(other.bindings) {
		return false
	}
	for k, v := range s.bindings {
		if ov, ok := other.bindings[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Regions returns the bound regions in ascending order.
func (s *Store) Regions() []sym.RegionID {
	out := make([]sym.RegionID, 0, len(s.bindings))
	for r := range s.bindings {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func (s *Store) computeDigest() uint64 {
	regions := s.Regions()
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, r := range regions {
		e := s.bindings[r]
		put(uint64(r))
		putSVal(put, e.val)
		if e.def {
			put(1)
		} else {
			put(0)
		}
	}
	return h.Sum64()
}

// StoreManager owns the store representation and implements all region
// binding arithmetic. The state manager orchestrates calls and re-interns
// the resulting states.
type StoreManager interface {
	// Initial returns the store for a fresh state.
	Initial() *Store
	// Bind returns a store with val bound directly at region.
	Bind(s *Store, region sym.RegionID, val sym.SVal) *Store
	// BindDefault returns a store with a default binding covering region
	// and everything under it.
	BindDefault(s *Store, region sym.RegionID, val sym.SVal) *Store
	// Unbind returns a store without a direct binding for region.
	Unbind(s *Store, region sym.RegionID) *Store
	// Lookup resolves the value readable at region, deriving through
	// default bindings when needed.
	Lookup(s *Store, region sym.RegionID) (sym.SVal, bool)
	// InvalidateRegions drops every binding at or under the given
	// regions, appends the symbols that were bound there to invalidated,
	// and re-covers each region with a fresh conjured default.
	InvalidateRegions(s *Store, regions []sym.RegionID, origin uint32, invalidated *[]sym.SymbolID, globals bool) *Store
	// RemoveDeadBindings keeps only bindings whose region chain touches
	// the reaper's live set.
	RemoveDeadBindings(s *Store, reaper *SymbolReaper) *Store
}

// FlatStoreManager is the one provided StoreManager: a flat map from
// region to binding with lazy default-binding reads.
type FlatStoreManager struct {
	syms    *sym.Table
	initial *Store
}

// NewFlatStoreManager constructs a store manager over the given table.
func NewFlatStoreManager(t *sym.Table) *FlatStoreManager {
	return &FlatStoreManager{
		syms:    t,
		initial: newStore(map[sym.RegionID]storeEntry{}),
	}
}

func (m *FlatStoreManager) Initial() *Store { return m.initial }

func (m *FlatStoreManager) with(s *Store, region sym.RegionID, e storeEntry) *Store {
	if existing, ok := s.bindings[region]; ok && existing == e {
		return s
	}
	next := make(map[sym.RegionID]storeEntry, len(s.bindings)+1)
	for k, v := range s.bindings {
		next[k] = v
	}
	next[region] = e
	return newStore(next)
}

func (m *FlatStoreManager) Bind(s *Store, region sym.RegionID, val sym.SVal) *Store {
	return m.with(s, region, storeEntry{val: val})
}

func (m *FlatStoreManager) BindDefault(s *Store, region sym.RegionID, val sym.SVal) *Store {
	return m.with(s, region, storeEntry{val: val, def: true})
}

func (m *FlatStoreManager) Unbind(s *Store, region sym.RegionID) *Store {
	if _, ok := s.bindings[region]; !ok {
		return s
	}
	next := make(map[sym.RegionID]storeEntry, len(s.bindings))
	for k, v := range s.bindings {
		if k != region {
			next[k] = v
		}
	}
	return newStore(next)
}

func (m *FlatStoreManager) Lookup(s *Store, region sym.RegionID) (sym.SVal, bool) {
	if e, ok := s.bindings[region]; ok {
		return e.val, true
	}
	// Walk up the parent chain looking for a default binding; a read
	// through one derives a region-specific symbol from it.
	r, ok := m.syms.Region(region)
	if !ok {
		return sym.UnknownVal(), false
	}
	for parent := r.Parent; parent != sym.NoRegionID; {
		if e, ok := s.bindings[parent]; ok && e.def {
			if base, isSym := e.val.AsSymbol(); isSym {
				return sym.SymVal(m.syms.Derived(base, region)), true
			}
			return e.val, true
		}
		pr, ok := m.syms.Region(parent)
		if !ok {
			break
		}
		parent = pr.Parent
	}
	return sym.UnknownVal(), false
}

func (m *FlatStoreManager) InvalidateRegions(s *Store, regions []sym.RegionID, origin uint32, invalidated *[]sym.SymbolID, globals bool) *Store {
	doomed := func(region sym.RegionID) bool {
		for _, target := range regions {
			if m.syms.IsSubRegionOf(region, target) {
				return true
			}
		}
		if globals {
			base, ok := m.syms.Region(m.syms.Base(region))
			if ok && base.Kind == sym.RegionGlobal {
				return true
			}
		}
		return false
	}

	next := make(map[sym.RegionID]storeEntry, len(s.bindings))
	for _, region := range s.Regions() {
		e := s.bindings[region]
		if !doomed(region) {
			next[region] = e
			continue
		}
		if id, ok := e.val.AsSymbol(); ok && invalidated != nil {
			*invalidated = append(*invalidated, id)
		}
	}
	// Re-cover each target with a fresh conjured default so later reads
	// see a consistent unknown rather than nothing at all.
	for _, target := range regions {
		next[target] = storeEntry{val: sym.SymVal(m.syms.Conjure(origin)), def: true}
	}
	return newStore(next)
}

func (m *FlatStoreManager) RemoveDeadBindings(s *Store, reaper *SymbolReaper) *Store {
	next := make(map[sym.RegionID]storeEntry, len(s.bindings))
	for region, e := range s.bindings {
		if m.regionLive(region, reaper) {
			next[region] = e
		} else if id, ok := e.val.AsSymbol(); ok {
			reaper.noteDead(id)
		}
	}
	if len(next) == len(s.bindings) {
		return s
	}
	return newStore(next)
}

func (m *FlatStoreManager) regionLive(region sym.RegionID, reaper *SymbolReaper) bool {
	for id := region; id != sym.NoRegionID; {
		if reaper.IsLiveRegion(id) {
			return true
		}
		r, ok := m.syms.Region(id)
		if !ok {
			return false
		}
		id = r.Parent
	}
	return false
}
