package constraint

import (
	"fmt"
	"math"

	"strata/internal/sym"
)

// Range is an inclusive interval of possible integer values.
type Range struct {
	Lo, Hi int64
}

// FullRange covers every representable value.
func FullRange() Range {
	return Range{Lo: math.MinInt64, Hi: math.MaxInt64}
}

// PointRange covers exactly one value.
func PointRange(n int64) Range {
	return Range{Lo: n, Hi: n}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Lo, r.Hi)
}

// Contains reports whether n lies in the range.
func (r Range) Contains(n int64) bool {
	return r.Lo <= n && n <= r.Hi
}

// Point returns the single value of a one-element range.
func (r Range) Point() (int64, bool) {
	if r.Lo == r.Hi {
		return r.Lo, true
	}
	return 0, false
}

// Intersect narrows r by other. The second result is false when the
// intersection is empty.
func (r Range) Intersect(other Range) (Range, bool) {
	if other.Lo > r.Lo {
		r.Lo = other.Lo
	}
	if other.Hi < r.Hi {
		r.Hi = other.Hi
	}
	if r.Lo > r.Hi {
		return Range{}, false
	}
	return r, true
}

// opRange translates "value op rhs" being true into an interval.
// The second result is false when the comparison admits no value.
func opRange(op sym.Op, rhs int64) (Range, bool) {
	switch op {
	case sym.OpEQ:
		return PointRange(rhs), true
	case sym.OpLT:
		if rhs == math.MinInt64 {
			return Range{}, false
		}
		return Range{Lo: math.MinInt64, Hi: rhs - 1}, true
	case sym.OpLE:
		return Range{Lo: math.MinInt64, Hi: rhs}, true
	case sym.OpGT:
		if rhs == math.MaxInt64 {
			return Range{}, false
		}
		return Range{Lo: rhs + 1, Hi: math.MaxInt64}, true
	case sym.OpGE:
		return Range{Lo: rhs, Hi: math.MaxInt64}, true
	default:
		// OpNE and non-comparisons have no single-interval form.
		return FullRange(), true
	}
}

// EvalOp evaluates a concrete comparison. The second result is false for
// non-comparison operators.
func EvalOp(lhs int64, op sym.Op, rhs int64) (bool, bool) {
	switch op {
	case sym.OpEQ:
		return lhs == rhs, true
	case sym.OpNE:
		return lhs != rhs, true
	case sym.OpLT:
		return lhs < rhs, true
	case sym.OpLE:
		return lhs <= rhs, true
	case sym.OpGT:
		return lhs > rhs, true
	case sym.OpGE:
		return lhs >= rhs, true
	default:
		return false, false
	}
}
