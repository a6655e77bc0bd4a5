package constraint

import (
	"strata/internal/sym"
)

// Manager answers assumption queries against constraint sets. It never
// fails: a condition it cannot reason about leaves the set untouched, and
// a contradiction yields a nil set.
type Manager struct {
	syms  *sym.Table
	empty *Set
}

// NewManager constructs a manager over the given symbol table.
func NewManager(t *sym.Table) *Manager {
	return &Manager{
		syms:  t,
		empty: newSet(map[sym.SymbolID]Range{}),
	}
}

// EmptySet returns the canonical unconstrained set.
func (m *Manager) EmptySet() *Set {
	return m.empty
}

// Assume refines set with cond holding (or not holding, per sense).
// Outcomes: the same set pointer back (no information gained), a refined
// set, or nil when the assumption is infeasible.
func (m *Manager) Assume(set *Set, cond sym.SVal, sense bool) *Set {
	if set == nil {
		return nil
	}
	switch cond.Kind {
	case sym.ValUnknown, sym.ValUndef:
		return set
	case sym.ValBool:
		if cond.Bit == sense {
			return set
		}
		return nil
	case sym.ValInt:
		if (cond.Int != 0) == sense {
			return set
		}
		return nil
	case sym.ValRegion:
		// A pointer to a tracked region is never null.
		if sense {
			return set
		}
		return nil
	case sym.ValSym:
		return m.assumeSym(set, cond.Sym, sense)
	default:
		return set
	}
}

func (m *Manager) assumeSym(set *Set, id sym.SymbolID, sense bool) *Set {
	desc, ok := m.syms.Symbol(id)
	if !ok {
		return set
	}
	if desc.Kind == sym.SymBinOp && desc.Op.IsComparison() {
		return m.assumeComparison(set, desc, sense)
	}
	// Any other symbol used as a condition means "sym != 0".
	return m.assumeNonZero(set, id, sense)
}

func (m *Manager) assumeComparison(set *Set, desc sym.Symbol, sense bool) *Set {
	op := desc.Op
	if !sense {
		op = op.Negated()
	}

	if desc.RHSSym != sym.NoSymbolID {
		// Symbol-to-symbol comparison: only decidable when both sides
		// are pinned to points.
		lp, lok := set.Range(desc.LHS).Point()
		rp, rok := set.Range(desc.RHSSym).Point()
		if !lok || !rok {
			return set
		}
		holds, known := EvalOp(lp, op, rp)
		if !known {
			return set
		}
		if holds {
			return set
		}
		return nil
	}

	return m.constrain(set, desc.LHS, op, desc.RHS)
}

// constrain narrows the range of id so that "id op rhs" holds.
func (m *Manager) constrain(set *Set, id sym.SymbolID, op sym.Op, rhs int64) *Set {
	current := set.Range(id)

	if op == sym.OpNE {
		// A single interval cannot exclude an interior point; trim only
		// when rhs sits on an endpoint.
		switch {
		case current.Lo == rhs && current.Hi == rhs:
			return nil
		case current.Lo == rhs:
			return set.withRange(id, Range{Lo: current.Lo + 1, Hi: current.Hi})
		case current.Hi == rhs:
			return set.withRange(id, Range{Lo: current.Lo, Hi: current.Hi - 1})
		default:
			return set
		}
	}

	want, feasible := opRange(op, rhs)
	if !feasible {
		return nil
	}
	narrowed, nonEmpty := current.Intersect(want)
	if !nonEmpty {
		return nil
	}
	if narrowed == current {
		return set
	}
	return set.withRange(id, narrowed)
}

func (m *Manager) assumeNonZero(set *Set, id sym.SymbolID, sense bool) *Set {
	current := set.Range(id)
	if sense {
		if p, ok := current.Point(); ok && p == 0 {
			return nil
		}
		// Trim zero off an endpoint where the interval form allows it.
		switch {
		case current.Lo == 0:
			return set.withRange(id, Range{Lo: 1, Hi: current.Hi})
		case current.Hi == 0:
			return set.withRange(id, Range{Lo: current.Lo, Hi: -1})
		default:
			return set
		}
	}
	if !current.Contains(0) {
		return nil
	}
	return m.constrain(set, id, sym.OpEQ, 0)
}
