package sym

import "fmt"

// SymbolID uniquely identifies a symbol inside a Table.
type SymbolID uint32

// NoSymbolID marks the absence of a symbol.
const NoSymbolID SymbolID = 0

// SymKind enumerates the supported kinds of symbols.
type SymKind uint8

const (
	SymInvalid SymKind = iota
	// SymConjured is a fresh unknown introduced at a program point,
	// typically for an unanalyzable call result or an invalidated region.
	SymConjured
	// SymDerived stands for the value read from a region of a symbolic
	// parent value.
	SymDerived
	// SymExtent stands for the size of a region.
	SymExtent
	// SymBinOp is a symbolic binary expression; the solver boundary
	// understands comparisons against constants.
	SymBinOp
)

func (k SymKind) String() string {
	switch k {
	case SymConjured:
		return "conjured"
	case SymDerived:
		return "derived"
	case SymExtent:
		return "extent"
	case SymBinOp:
		return "binop"
	default:
		return fmt.Sprintf("SymKind(%d)", k)
	}
}

// Op enumerates operators usable in symbolic expressions.
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// IsComparison reports whether the operator yields a truth value.
func (o Op) IsComparison() bool {
	return o >= OpEQ && o <= OpGE
}

// Negated returns the comparison with the opposite truth value.
// Non-comparison operators are returned unchanged.
func (o Op) Negated() Op {
	switch o {
	case OpEQ:
		return OpNE
	case OpNE:
		return OpEQ
	case OpLT:
		return OpGE
	case OpLE:
		return OpGT
	case OpGT:
		return OpLE
	case OpGE:
		return OpLT
	default:
		return o
	}
}

// Symbol is a compact descriptor for any supported symbol. Which fields
// are meaningful depends on Kind; unused fields stay zero so descriptors
// compare and hash structurally.
type Symbol struct {
	Kind   SymKind
	Origin uint32   // conjuring node (SymConjured)
	Seq    uint32   // freshness counter (SymConjured)
	Parent SymbolID // parent value (SymDerived)
	Region RegionID // region read through (SymDerived) or measured (SymExtent)
	LHS    SymbolID // left operand (SymBinOp)
	Op     Op       // operator (SymBinOp)
	RHS    int64    // constant right operand (SymBinOp, when RHSSym == NoSymbolID)
	RHSSym SymbolID // symbolic right operand (SymBinOp)
}
