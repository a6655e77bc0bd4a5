package sym

import "fmt"

// RegionID uniquely identifies a memory region inside a Table.
type RegionID uint32

// NoRegionID marks the absence of a region.
const NoRegionID RegionID = 0

// RegionKind enumerates the supported kinds of memory regions.
type RegionKind uint8

const (
	RegionInvalid RegionKind = iota
	// RegionVar is a local variable or parameter slot in a stack frame.
	RegionVar
	// RegionGlobal is package-level storage.
	RegionGlobal
	// RegionField is a named field of a parent region.
	RegionField
	// RegionElem is an indexed element of a parent region.
	RegionElem
	// RegionHeap is an allocation site; every allocation is distinct.
	RegionHeap
)

func (k RegionKind) String() string {
	switch k {
	case RegionVar:
		return "var"
	case RegionGlobal:
		return "global"
	case RegionField:
		return "field"
	case RegionElem:
		return "elem"
	case RegionHeap:
		return "heap"
	default:
		return fmt.Sprintf("RegionKind(%d)", k)
	}
}

// Region is a compact descriptor for a memory region. Descriptors are
// comparable values; structurally equal descriptors intern to one ID.
type Region struct {
	Kind   RegionKind
	Parent RegionID
	Name   string // var/global/field name
	Frame  uint32 // owning stack frame (RegionVar)
	Origin uint32 // allocation node (RegionHeap)
	Seq    uint32 // allocation counter (RegionHeap)
	Index  SVal   // element index (RegionElem)
}
