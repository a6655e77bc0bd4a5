package sym

import "fmt"

// ValKind discriminates the variants of SVal.
type ValKind uint8

const (
	// ValUnknown is the zero value: nothing is known about the value.
	ValUnknown ValKind = iota
	// ValUndef marks a read of uninitialized storage.
	ValUndef
	ValInt
	ValBool
	ValSym
	ValRegion
)

// SVal is an abstract value: either a known constant, a symbol, a pointer
// to a region, or one of the two "no information" variants.
type SVal struct {
	Kind ValKind
	Int  int64
	Bit  bool
	Sym  SymbolID
	Reg  RegionID
}

// UnknownVal returns the most conservative value.
func UnknownVal() SVal { return SVal{} }

// UndefVal marks uninitialized storage.
func UndefVal() SVal { return SVal{Kind: ValUndef} }

// IntVal wraps a concrete integer.
func IntVal(n int64) SVal { return SVal{Kind: ValInt, Int: n} }

// BoolVal wraps a concrete truth value.
func BoolVal(b bool) SVal { return SVal{Kind: ValBool, Bit: b} }

// SymVal wraps a symbol.
func SymVal(id SymbolID) SVal {
	if id == NoSymbolID {
		return UnknownVal()
	}
	return SVal{Kind: ValSym, Sym: id}
}

// RegionVal wraps a pointer to a region.
func RegionVal(id RegionID) SVal {
	if id == NoRegionID {
		return UnknownVal()
	}
	return SVal{Kind: ValRegion, Reg: id}
}

func (v SVal) IsUnknown() bool { return v.Kind == ValUnknown }

func (v SVal) IsUndef() bool { return v.Kind == ValUndef }

// IsUnknownOrUndef reports whether the value carries no information.
func (v SVal) IsUnknownOrUndef() bool {
	return v.Kind == ValUnknown || v.Kind == ValUndef
}

// AsSymbol returns the underlying symbol, if any.
func (v SVal) AsSymbol() (SymbolID, bool) {
	if v.Kind == ValSym {
		return v.Sym, true
	}
	return NoSymbolID, false
}

// AsRegion returns the pointed-to region, if any.
func (v SVal) AsRegion() (RegionID, bool) {
	if v.Kind == ValRegion {
		return v.Reg, true
	}
	return NoRegionID, false
}

// AsInt returns the concrete integer, if any.
func (v SVal) AsInt() (int64, bool) {
	if v.Kind == ValInt {
		return v.Int, true
	}
	return 0, false
}

func (v SVal) String() string {
	switch v.Kind {
	case ValUnknown:
		return "unknown"
	case ValUndef:
		return "undef"
	case ValInt:
		return fmt.Sprintf("%d", v.Int)
	case ValBool:
		return fmt.Sprintf("%t", v.Bit)
	case ValSym:
		return fmt.Sprintf("sym#%d", v.Sym)
	case ValRegion:
		return fmt.Sprintf("&reg#%d", v.Reg)
	default:
		return fmt.Sprintf("SVal(%d)", v.Kind)
	}
}
