// Package frontend turns Go packages into the analyzed form: it loads
// source through go/packages, builds SSA, and lowers each function body
// to the engine's CFG.
package frontend

import (
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"strata/internal/engine"
	"strata/internal/source"
	"strata/internal/sym"
)

// Lower translates one SSA function into the engine's analyzed form.
// Constructs without a modeled instruction (phi nodes, conversions,
// channel and map operations) lower to nothing: reads of their results
// see the unknown value, which keeps the translation conservative.
func Lower(fn *ssa.Function, files *source.FileSet, fset *token.FileSet) *engine.Function {
	lo := &lowerer{
		files: files,
		fset:  fset,
		ids:   make(map[ssa.Value]uint32, 64),
	}
	return lo.lower(fn)
}

type lowerer struct {
	files *source.FileSet
	fset  *token.FileSet
	ids   map[ssa.Value]uint32
	next  uint32
}

func (lo *lowerer) fresh() uint32 {
	lo.next++
	return lo.next
}

func (lo *lowerer) define(v ssa.Value) uint32 {
	if id, ok := lo.ids[v]; ok {
		return id
	}
	id := lo.fresh()
	lo.ids[v] = id
	return id
}

// use resolves an operand to its node id; 0 means the engine sees the
// unknown value.
func (lo *lowerer) use(v ssa.Value) uint32 {
	return lo.ids[v]
}

func (lo *lowerer) lower(fn *ssa.Function) *engine.Function {
	out := &engine.Function{
		Name: fn.String(),
		Span: lo.span(fn.Pos()),
	}
	if f, ok := lo.fileOf(fn.Pos()); ok {
		out.File = f
	}

	for _, p := range fn.Params {
		out.Params = append(out.Params, engine.Param{Node: lo.define(p), Name: p.Name()})
	}

	// First pass: assign ids to every value-producing instruction we
	// model and collect the constants their operands mention. SSA
	// block order need not be topological, so uses are resolved only
	// after every def has an id.
	consts := lo.assignIDs(fn)

	entry := &engine.Block{Index: 0}
	for _, c := range consts {
		entry.Instrs = append(entry.Instrs, c)
	}

	for i, b := range fn.Blocks {
		blk := entry
		if i > 0 {
			blk = &engine.Block{Index: i}
		}
		for _, instr := range b.Instrs {
			lo.lowerInstr(instr, b, blk)
		}
		out.Blocks = append(out.Blocks, blk)
	}
	out.Index()
	return out
}

// assignIDs numbers the modeled values and returns the constant-binding
// prologue for the entry block.
func (lo *lowerer) assignIDs(fn *ssa.Function) []engine.Instr {
	var consts []engine.Instr
	seen := make(map[*ssa.Const]struct{}, 8)

	bindConst := func(v ssa.Value) {
		c, ok := v.(*ssa.Const)
		if !ok {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		n, ok := constValue(c)
		if !ok {
			return
		}
		consts = append(consts, engine.Instr{
			ID:    lo.define(c),
			Kind:  engine.OpConst,
			Const: n,
			Span:  lo.span(c.Pos()),
			Text:  c.Name(),
		})
	}

	var operands []*ssa.Value
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ssa.Alloc, *ssa.Call, *ssa.FieldAddr, *ssa.IndexAddr:
				lo.define(v.(ssa.Value))
			case *ssa.UnOp:
				if v.Op == token.MUL {
					lo.define(v)
				}
			case *ssa.BinOp:
				if _, ok := opOf(v.Op); ok {
					lo.define(v)
				}
			}
			operands = instr.Operands(operands[:0])
			for _, op := range operands {
				if op != nil && *op != nil {
					bindConst(*op)
				}
			}
		}
	}
	return consts
}

func (lo *lowerer) lowerInstr(instr ssa.Instruction, b *ssa.BasicBlock, blk *engine.Block) {
	switch v := instr.(type) {
	case *ssa.Alloc:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.use(v),
			Kind: engine.OpAlloc,
			Var:  v.Name(),
			Span: lo.span(v.Pos()),
			Text: v.Comment,
		})

	case *ssa.UnOp:
		if v.Op != token.MUL {
			return
		}
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.use(v),
			Kind: engine.OpLoad,
			X:    lo.use(v.X),
			Span: lo.span(v.Pos()),
			Text: "*" + v.X.Name(),
		})

	case *ssa.Store:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.fresh(),
			Kind: engine.OpStore,
			X:    lo.use(v.Addr),
			Y:    lo.use(v.Val),
			Span: lo.span(v.Pos()),
			Text: "*" + v.Addr.Name() + " = " + v.Val.Name(),
		})

	case *ssa.BinOp:
		op, ok := opOf(v.Op)
		if !ok {
			return
		}
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.use(v),
			Kind: engine.OpBinOp,
			Op:   op,
			X:    lo.use(v.X),
			Y:    lo.use(v.Y),
			Span: lo.span(v.Pos()),
			Text: v.X.Name() + " " + v.Op.String() + " " + v.Y.Name(),
		})

	case *ssa.Call:
		common := v.Common()
		in := engine.Instr{
			ID:     lo.use(v),
			Kind:   engine.OpCall,
			Callee: calleeName(common),
			Span:   lo.span(v.Pos()),
			Text:   calleeName(common) + "(...)",
		}
		for _, a := range common.Args {
			in.Args = append(in.Args, lo.use(a))
		}
		blk.Instrs = append(blk.Instrs, in)

	case *ssa.FieldAddr:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.use(v),
			Kind: engine.OpField,
			X:    lo.use(v.X),
			Var:  fieldName(v),
			Span: lo.span(v.Pos()),
			Text: "&" + v.X.Name() + "." + fieldName(v),
		})

	case *ssa.IndexAddr:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.use(v),
			Kind: engine.OpIndex,
			X:    lo.use(v.X),
			Y:    lo.use(v.Index),
			Span: lo.span(v.Pos()),
			Text: "&" + v.X.Name() + "[" + v.Index.Name() + "]",
		})

	case *ssa.If:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:    lo.fresh(),
			Kind:  engine.OpBranch,
			X:     lo.use(v.Cond),
			True:  b.Succs[0].Index,
			False: b.Succs[1].Index,
			Span:  lo.span(v.Pos()),
			Text:  condText(v.Cond),
		})

	case *ssa.Jump:
		blk.Instrs = append(blk.Instrs, engine.Instr{
			ID:   lo.fresh(),
			Kind: engine.OpJump,
			True: b.Succs[0].Index,
		})

	case *ssa.Return:
		in := engine.Instr{
			ID:   lo.fresh(),
			Kind: engine.OpRet,
			Span: lo.span(v.Pos()),
		}
		if len(v.Results) > 0 {
			in.X = lo.use(v.Results[0])
		}
		blk.Instrs = append(blk.Instrs, in)
	}
}

func condText(v ssa.Value) string {
	if b, ok := v.(*ssa.BinOp); ok {
		return b.X.Name() + " " + b.Op.String() + " " + b.Y.Name()
	}
	return v.Name()
}

// constValue models the constants the engine understands: integers,
// booleans, and nil pointers (as zero).
func constValue(c *ssa.Const) (int64, bool) {
	if c.Value == nil {
		return 0, true
	}
	switch c.Value.Kind() {
	case constant.Int:
		if n, exact := constant.Int64Val(c.Value); exact {
			return n, true
		}
	case constant.Bool:
		if constant.BoolVal(c.Value) {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func opOf(t token.Token) (sym.Op, bool) {
	switch t {
	case token.ADD:
		return sym.OpAdd, true
	case token.SUB:
		return sym.OpSub, true
	case token.MUL:
		return sym.OpMul, true
	case token.EQL:
		return sym.OpEQ, true
	case token.NEQ:
		return sym.OpNE, true
	case token.LSS:
		return sym.OpLT, true
	case token.LEQ:
		return sym.OpLE, true
	case token.GTR:
		return sym.OpGT, true
	case token.GEQ:
		return sym.OpGE, true
	default:
		return sym.OpInvalid, false
	}
}

// calleeName identifies a call target for source/sink matching. Dynamic
// calls resolve to the interface method or function value name.
func calleeName(common *ssa.CallCommon) string {
	if callee := common.StaticCallee(); callee != nil {
		return callee.String()
	}
	if common.IsInvoke() {
		return common.Method.FullName()
	}
	if b, ok := common.Value.(*ssa.Builtin); ok {
		return b.Name()
	}
	return common.Value.Name()
}

func fieldName(v *ssa.FieldAddr) string {
	ptr, ok := v.X.Type().Underlying().(*types.Pointer)
	if !ok {
		return ""
	}
	st, ok := ptr.Elem().Underlying().(*types.Struct)
	if !ok {
		return ""
	}
	return st.Field(v.Field).Name()
}

func (lo *lowerer) span(pos token.Pos) source.Span {
	if !pos.IsValid() {
		return source.Span{}
	}
	p := lo.fset.Position(pos)
	id, ok := lo.fileID(p.Filename)
	if !ok {
		return source.Span{}
	}
	off := uint32(p.Offset)
	return source.Span{File: id, Start: off, End: off + 1}
}

func (lo *lowerer) fileOf(pos token.Pos) (source.FileID, bool) {
	if !pos.IsValid() {
		return 0, false
	}
	return lo.fileID(lo.fset.Position(pos).Filename)
}

func (lo *lowerer) fileID(path string) (source.FileID, bool) {
	if path == "" {
		return 0, false
	}
	if f, ok := lo.files.ByPath(path); ok {
		return f.ID, true
	}
	id, err := lo.files.Load(path)
	if err != nil {
		return 0, false
	}
	return id, true
}
