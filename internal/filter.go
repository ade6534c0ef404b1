package internal

import (
	"context"
	"runtime"

	"github.com/lychee-technology/strata"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkRows is the parallel partition size. It is a multiple of 64 so
// partitions land on bitmap block boundaries.
const DefaultChunkRows = 65536

// cancelCheckRows is how often the sequential paths consult the
// cancellation token.
const cancelCheckRows = 16384

// ApplyFilter evaluates the predicate conjunction over the store under the
// given strategy and returns the selection bitmap. All strategies produce
// bit-identical output; an empty predicate list selects every row.
func ApplyFilter(ctx context.Context, store *Store, predicates []strata.Predicate, strategy strata.Strategy, chunkRows int) (*Bitmap, error) {
	n := store.NumRows()
	sel := NewBitmap(n)
	if len(predicates) == 0 {
		sel.SetAll()
		return sel, nil
	}
	switch strategy {
	case strata.StrategySIMD:
		if err := filterBlocks(ctx, store, predicates, sel, 0, n); err != nil {
			return nil, err
		}
	case strata.StrategyParallel:
		if err := filterParallel(ctx, store, predicates, sel, chunkRows); err != nil {
			return nil, err
		}
	default:
		if err := filterSequential(ctx, store, predicates, sel, 0, n); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

// filterSequential applies the conjunction row by row over [from, to).
func filterSequential(ctx context.Context, store *Store, predicates []strata.Predicate, sel *Bitmap, from, to int) error {
	evals := make([]func(row int) strata.Truth, len(predicates))
	for i, p := range predicates {
		evals[i] = compileRowEvaluator(store, p)
	}
	for row := from; row < to; row++ {
		if row%cancelCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return strata.NewCancelledError(err)
			}
		}
		selected := true
		for _, eval := range evals {
			if eval(row) != strata.TruthTrue {
				selected = false
				break
			}
		}
		if selected {
			sel.Set(row)
		}
	}
	return nil
}

// filterBlocks applies the conjunction 64 rows at a time over [from, to),
// which must be block-aligned at `from`. Each predicate yields a lane mask
// block; blocks are combined with AND and stored whole.
func filterBlocks(ctx context.Context, store *Store, predicates []strata.Predicate, sel *Bitmap, from, to int) error {
	evals := make([]blockEvaluator, len(predicates))
	for i, p := range predicates {
		if be, ok := compileBlockEvaluator(store, p); ok {
			evals[i] = be
			continue
		}
		evals[i] = rowFallbackEvaluator(store, p)
	}
	for base := from; base < to; base += bitmapBlockBits {
		if (base-from)%cancelCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return strata.NewCancelledError(err)
			}
		}
		n := to - base
		if n > bitmapBlockBits {
			n = bitmapBlockBits
		}
		mask := evals[0](base, n)
		for _, eval := range evals[1:] {
			if mask == 0 {
				break
			}
			mask &= eval(base, n)
		}
		sel.SetBlock(base/bitmapBlockBits, mask)
	}
	return nil
}

// filterParallel partitions the row range into block-aligned chunks and
// evaluates each on a worker. Partitions write disjoint block ranges of the
// shared bitmap, so no synchronization beyond the join is needed.
func filterParallel(ctx context.Context, store *Store, predicates []strata.Predicate, sel *Bitmap, chunkRows int) error {
	n := store.NumRows()
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	// Align chunks to bitmap blocks so partitions never share a block.
	if rem := chunkRows % bitmapBlockBits; rem != 0 {
		chunkRows += bitmapBlockBits - rem
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for from := 0; from < n; from += chunkRows {
		from := from
		to := from + chunkRows
		if to > n {
			to = n
		}
		g.Go(func() error {
			return filterBlocks(gctx, store, predicates, sel, from, to)
		})
	}
	return g.Wait()
}

// rowFallbackEvaluator adapts a row-wise evaluator to the block interface
// for predicates without a vectorizable form.
func rowFallbackEvaluator(store *Store, p strata.Predicate) blockEvaluator {
	eval := compileRowEvaluator(store, p)
	return func(base, n int) uint64 {
		var mask uint64
		for row := 0; row < n; row++ {
			if eval(base+row) == strata.TruthTrue {
				mask |= 1 << uint(row)
			}
		}
		return mask
	}
}

// compileRowEvaluator binds a predicate to the store's columns once so the
// per-row path avoids repeated field lookups. Unknown predicate forms fall
// back to the predicate's own Evaluate.
func compileRowEvaluator(store *Store, p strata.Predicate) func(row int) strata.Truth {
	switch pred := p.(type) {
	case *strata.Comparison[int32]:
		col := store.ColumnIndex(pred.Field)
		return func(row int) strata.Truth {
			v, ok := store.Int32At(col, row)
			if !ok {
				return strata.TruthNull
			}
			if strata.CompareOrdered(v, pred.Literal, pred.Op) {
				return strata.TruthTrue
			}
			return strata.TruthFalse
		}
	case *strata.Comparison[float64]:
		col := store.ColumnIndex(pred.Field)
		return func(row int) strata.Truth {
			v, ok := store.Float64At(col, row)
			if !ok {
				return strata.TruthNull
			}
			if strata.CompareOrdered(v, pred.Literal, pred.Op) {
				return strata.TruthTrue
			}
			return strata.TruthFalse
		}
	case *strata.Comparison[string]:
		col := store.ColumnIndex(pred.Field)
		return func(row int) strata.Truth {
			v, ok := store.StringAt(col, row)
			if !ok {
				return strata.TruthNull
			}
			if strata.CompareOrdered(v, pred.Literal, pred.Op) {
				return strata.TruthTrue
			}
			return strata.TruthFalse
		}
	default:
		return func(row int) strata.Truth {
			return p.Evaluate(store, row)
		}
	}
}

// ValidatePredicates checks every predicate against the scan schema before
// execution: referenced fields must exist and comparison literals must match
// the column type. Violations are fatal planning errors.
func ValidatePredicates(store *Store, predicates []strata.Predicate) error {
	for _, p := range predicates {
		if err := validatePredicate(store, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicate(store *Store, p strata.Predicate) error {
	switch pred := p.(type) {
	case *strata.Conjunction:
		return ValidatePredicates(store, pred.Predicates)
	case *strata.Disjunction:
		return ValidatePredicates(store, pred.Predicates)
	case *strata.NullCheck:
		if store.ColumnIndex(pred.Field) < 0 {
			return strata.NewUnknownFieldError(pred.Field)
		}
		return nil
	}
	field := p.FieldName()
	col := store.ColumnIndex(field)
	if col < 0 {
		return strata.NewUnknownFieldError(field)
	}
	want := store.Schema().Field(col).Type
	type literalTyped interface{ LiteralType() strata.LogicalType }
	if lt, ok := p.(literalTyped); ok {
		if got := lt.LiteralType(); got != want {
			return strata.NewTypeMismatchError(field, want, got)
		}
	}
	return nil
}
