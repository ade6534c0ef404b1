package internal

import (
	"context"
	"math/bits"
	"runtime"

	"github.com/lychee-technology/strata"
	"golang.org/x/sync/errgroup"
)

// aggState is one partial aggregate fold. The in-scope aggregates are
// associative and commutative, so partials from disjoint partitions merge in
// any order.
type aggState struct {
	sum   float64
	count int
	min   float64
	max   float64
	seen  bool
}

func (a *aggState) add(v float64) {
	a.sum += v
	a.count++
	if !a.seen || v < a.min {
		a.min = v
	}
	if !a.seen || v > a.max {
		a.max = v
	}
	a.seen = true
}

func (a *aggState) merge(b aggState) {
	if !b.seen {
		return
	}
	if !a.seen {
		*a = b
		return
	}
	a.sum += b.sum
	a.count += b.count
	if b.min < a.min {
		a.min = b.min
	}
	if b.max > a.max {
		a.max = b.max
	}
}

// numericReader compiles a float64 view over a numeric column. Returns nil
// for non-numeric columns.
func numericReader(store *Store, col int) func(row int) (float64, bool) {
	switch c := store.Column(col).(type) {
	case *PrimitiveColumn[float64]:
		return func(row int) (float64, bool) { return c.At(row) }
	case *PrimitiveColumn[int32]:
		return func(row int) (float64, bool) {
			v, ok := c.At(row)
			return float64(v), ok
		}
	case *DictionaryColumn:
		switch c.Dict().(type) {
		case *PrimitiveColumn[float64], *PrimitiveColumn[int32]:
			return func(row int) (float64, bool) {
				if c.Validity() != nil && !c.Validity().Get(row) {
					return 0, false
				}
				switch d := c.Dict().(type) {
				case *PrimitiveColumn[float64]:
					return d.Values()[c.IndexAt(row)], true
				case *PrimitiveColumn[int32]:
					return float64(d.Values()[c.IndexAt(row)]), true
				}
				return 0, false
			}
		}
	}
	return nil
}

// foldBlocks folds the selected rows of block range [fromBlock, toBlock)
// into a partial state. Cost is proportional to set bits: zero blocks are
// skipped whole and set bits are extracted by trailing-zero count.
func foldBlocks(sel *Bitmap, read func(row int) (float64, bool), fromBlock, toBlock int) aggState {
	var state aggState
	for i := fromBlock; i < toBlock; i++ {
		blk := sel.Block(i)
		if blk == 0 {
			continue
		}
		base := i * bitmapBlockBits
		for blk != 0 {
			row := base + bits.TrailingZeros64(blk)
			blk &= blk - 1
			if v, ok := read(row); ok {
				state.add(v)
			}
		}
	}
	return state
}

// ComputeAggregate folds the selected rows with the given aggregate. For
// count without a field the result is the selection cardinality; for count
// with a field, null rows are excluded. Returns the aggregate value and the
// number of rows that contributed.
func ComputeAggregate(ctx context.Context, store *Store, sel *Bitmap, kind strata.AggregateKind, field string, strategy strata.Strategy, chunkRows int) (float64, int, error) {
	if kind == strata.AggregateCount && field == "" {
		n := sel.Count()
		return float64(n), n, nil
	}
	col := store.ColumnIndex(field)
	if col < 0 {
		return 0, 0, strata.NewUnknownFieldError(field)
	}
	if kind == strata.AggregateCount {
		state, err := foldSelection(ctx, store, sel, func(row int) (float64, bool) {
			if store.IsValid(col, row) {
				return 0, true
			}
			return 0, false
		}, strategy, chunkRows)
		if err != nil {
			return 0, 0, err
		}
		return float64(state.count), state.count, nil
	}

	read := numericReader(store, col)
	if read == nil {
		return 0, 0, strata.NewTypeMismatchError(field, store.Schema().Field(col).Type, strata.TypeFloat64)
	}
	state, err := foldSelection(ctx, store, sel, read, strategy, chunkRows)
	if err != nil {
		return 0, 0, err
	}
	if state.count == 0 {
		return 0, 0, nil
	}
	switch kind {
	case strata.AggregateSum:
		return state.sum, state.count, nil
	case strata.AggregateAvg:
		return state.sum / float64(state.count), state.count, nil
	case strata.AggregateMin:
		return state.min, state.count, nil
	case strata.AggregateMax:
		return state.max, state.count, nil
	}
	return 0, 0, strata.NewUnsupportedOperationError(string(kind), "unknown aggregate kind")
}

// foldSelection folds sequentially or across parallel partitions. Partition
// boundaries are block-aligned; partials are merged in partition order.
func foldSelection(ctx context.Context, store *Store, sel *Bitmap, read func(row int) (float64, bool), strategy strata.Strategy, chunkRows int) (aggState, error) {
	blocks := sel.NumBlocks()
	if strategy != strata.StrategyParallel || blocks < 2 {
		if err := ctx.Err(); err != nil {
			return aggState{}, strata.NewCancelledError(err)
		}
		return foldBlocks(sel, read, 0, blocks), nil
	}

	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}
	chunkBlocks := (chunkRows + bitmapBlockBits - 1) / bitmapBlockBits
	workers := (blocks + chunkBlocks - 1) / chunkBlocks
	partials := make([]aggState, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for w := 0; w < workers; w++ {
		w := w
		from := w * chunkBlocks
		to := from + chunkBlocks
		if to > blocks {
			to = blocks
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return strata.NewCancelledError(err)
			}
			partials[w] = foldBlocks(sel, read, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return aggState{}, err
	}
	var state aggState
	for _, p := range partials {
		state.merge(p)
	}
	return state, nil
}
