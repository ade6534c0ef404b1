package internal

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/lychee-technology/strata"
)

// Lane widths for the vectorized filter path, fixed once at process start
// from the CPU feature set: with 256-bit registers a vector holds 8 32-bit
// or 4 64-bit lanes, otherwise 4 and 2.
var (
	laneWidth32 = 4
	laneWidth64 = 2
)

func init() {
	if cpuid.CPU.Supports(cpuid.AVX2) {
		laneWidth32 = 8
		laneWidth64 = 4
	}
}

// LaneWidths reports the active lane widths for 32-bit and 64-bit elements.
func LaneWidths() (int, int) {
	return laneWidth32, laneWidth64
}

// blockEvaluator produces the predicate mask for rows [base, base+n),
// n <= 64, as a 64-bit block. Bit i corresponds to row base+i.
type blockEvaluator func(base, n int) uint64

// maskFixedBlock evaluates one comparison over a fixed-width value buffer in
// lane-sized groups, packing lane results into the block mask.
func maskFixedBlock[T PrimitiveValue](values []T, op strata.CompareOp, literal T, lanes, base, n int) uint64 {
	var mask uint64
	row := 0
	for ; row+lanes <= n; row += lanes {
		for lane := 0; lane < lanes; lane++ {
			if strata.CompareOrdered(values[base+row+lane], literal, op) {
				mask |= 1 << uint(row+lane)
			}
		}
	}
	for ; row < n; row++ {
		if strata.CompareOrdered(values[base+row], literal, op) {
			mask |= 1 << uint(row)
		}
	}
	return mask
}

// validityMask returns the valid-row mask for rows [base, base+n). A nil
// bitmap means every row is valid.
func validityMask(validity *Bitmap, base, n int) uint64 {
	full := ^uint64(0)
	if n < 64 {
		full = (1 << uint(n)) - 1
	}
	if validity == nil {
		return full
	}
	// base is always block-aligned in kernel iteration.
	return validity.Block(base/bitmapBlockBits) & full
}

// compileBlockEvaluator lowers one predicate to a block evaluator over the
// store's raw buffers. The bool result reports whether the predicate has a
// vectorizable form; callers fall back to row-wise evaluation otherwise.
func compileBlockEvaluator(store *Store, p strata.Predicate) (blockEvaluator, bool) {
	switch pred := p.(type) {
	case *strata.Comparison[int32]:
		col := store.ColumnByName(pred.Field)
		switch c := col.(type) {
		case *PrimitiveColumn[int32]:
			values, validity := c.Values(), c.Validity()
			return func(base, n int) uint64 {
				return maskFixedBlock(values, pred.Op, pred.Literal, laneWidth32, base, n) &
					validityMask(validity, base, n)
			}, true
		case *DictionaryColumn:
			if d, ok := c.Dict().(*PrimitiveColumn[int32]); ok {
				table := make([]bool, d.Len())
				for i, v := range d.Values() {
					table[i] = strata.CompareOrdered(v, pred.Literal, pred.Op)
				}
				return dictionaryBlockEvaluator(c, table), true
			}
		}
	case *strata.Comparison[float64]:
		col := store.ColumnByName(pred.Field)
		switch c := col.(type) {
		case *PrimitiveColumn[float64]:
			values, validity := c.Values(), c.Validity()
			return func(base, n int) uint64 {
				return maskFixedBlock(values, pred.Op, pred.Literal, laneWidth64, base, n) &
					validityMask(validity, base, n)
			}, true
		case *DictionaryColumn:
			if d, ok := c.Dict().(*PrimitiveColumn[float64]); ok {
				table := make([]bool, d.Len())
				for i, v := range d.Values() {
					table[i] = strata.CompareOrdered(v, pred.Literal, pred.Op)
				}
				return dictionaryBlockEvaluator(c, table), true
			}
		}
	case *strata.Comparison[string]:
		col := store.ColumnByName(pred.Field)
		if c, ok := col.(*DictionaryColumn); ok {
			if d, ok := c.Dict().(*StringColumn); ok {
				table := make([]bool, d.Len())
				for i := 0; i < d.Len(); i++ {
					v, _ := d.At(i)
					table[i] = strata.CompareOrdered(v, pred.Literal, pred.Op)
				}
				return dictionaryBlockEvaluator(c, table), true
			}
		}
	case *strata.NullCheck:
		col := store.ColumnByName(pred.Field)
		if col == nil {
			break
		}
		validity := col.Validity()
		negate := pred.Negate
		return func(base, n int) uint64 {
			valid := validityMask(validity, base, n)
			full := ^uint64(0)
			if n < 64 {
				full = (1 << uint(n)) - 1
			}
			if negate {
				return valid
			}
			return ^valid & full
		}, true
	}
	return nil, false
}

// dictionaryBlockEvaluator maps per-row dictionary indices through a
// precomputed per-entry predicate table. Evaluating the predicate once per
// distinct value makes the per-row work a single table load.
func dictionaryBlockEvaluator(c *DictionaryColumn, table []bool) blockEvaluator {
	validity := c.Validity()
	return func(base, n int) uint64 {
		var mask uint64
		for row := 0; row < n; row++ {
			if table[c.IndexAt(base+row)] {
				mask |= 1 << uint(row)
			}
		}
		return mask & validityMask(validity, base, n)
	}
}
