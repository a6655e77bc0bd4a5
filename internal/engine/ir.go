package engine

import (
	"strata/internal/source"
	"strata/internal/sym"
)

// OpKind enumerates the instruction forms the engine evaluates.
type OpKind uint8

const (
	OpInvalid OpKind = iota
	// OpConst binds the instruction's node to an integer constant.
	OpConst
	// OpAlloc introduces a named variable region and binds the node to
	// its address.
	OpAlloc
	// OpLoad reads through the address in X.
	OpLoad
	// OpStore writes Y through the address in X.
	OpStore
	// OpBinOp combines X and Y under Op.
	OpBinOp
	// OpCall invokes Callee with Args. Calls are opaque: the return
	// value is conjured and regions reachable from the arguments are
	// invalidated.
	OpCall
	// OpField addresses the named field of the aggregate X points at.
	OpField
	// OpIndex addresses element Y of the aggregate X points at.
	OpIndex
	// OpBranch forks on X; True and False are successor block indexes.
	OpBranch
	// OpJump transfers to block True unconditionally.
	OpJump
	// OpRet leaves the function, returning X when nonzero.
	OpRet
)

func (k OpKind) String() string {
	switch k {
	case OpConst:
		return "const"
	case OpAlloc:
		return "alloc"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpBinOp:
		return "binop"
	case OpCall:
		return "call"
	case OpField:
		return "field"
	case OpIndex:
		return "index"
	case OpBranch:
		return "branch"
	case OpJump:
		return "jump"
	case OpRet:
		return "ret"
	default:
		return "invalid"
	}
}

// Instr is one instruction of the analyzed form. Every instruction owns
// a node id; value-producing instructions bind it in the environment.
// Node id 0 is reserved and means "no operand".
type Instr struct {
	ID   uint32
	Kind OpKind

	X, Y   uint32 // operand node ids
	Const  int64  // OpConst payload
	Op     sym.Op // OpBinOp operator
	Callee string // OpCall target name
	Args   []uint32
	Var    string // OpAlloc variable name, OpField field name

	True, False int // successor block indexes

	Span source.Span
	Text string // source text for diagnostics, may be empty
}

// Param is a function parameter: a node id that receives a fresh
// symbol at function entry.
type Param struct {
	Node uint32
	Name string
}

// Block is a straight-line instruction sequence ending in a branch,
// jump, or return.
type Block struct {
	Index  int
	Instrs []Instr
}

// Function is the unit of analysis: a CFG of blocks, entry at index 0.
type Function struct {
	Name   string
	File   source.FileID
	Span   source.Span
	Params []Param
	Blocks []*Block

	byID map[uint32]*Instr
}

// Index builds the node-id lookup. Call once after construction.
func (f *Function) Index() {
	f.byID = make(map[uint32]*Instr, 32)
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.ID != 0 {
				f.byID[in.ID] = in
			}
		}
	}
}

// InstrAt returns the instruction owning a node id, nil when unknown.
func (f *Function) InstrAt(id uint32) *Instr {
	return f.byID[id]
}

// Describe renders the source text of the instruction at a node id.
func (f *Function) Describe(id uint32) string {
	if in := f.InstrAt(id); in != nil {
		return in.Text
	}
	return ""
}

// SpanOf locates the instruction at a node id.
func (f *Function) SpanOf(id uint32) source.Span {
	if in := f.InstrAt(id); in != nil {
		return in.Span
	}
	return source.Span{}
}

// operands appends the node ids an instruction reads to dst.
func (in *Instr) operands(dst []uint32) []uint32 {
	if in.X != 0 {
		dst = append(dst, in.X)
	}
	if in.Y != 0 {
		dst = append(dst, in.Y)
	}
	return append(dst, in.Args...)
}
