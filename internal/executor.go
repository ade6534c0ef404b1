package internal

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// defaultPredicateSelectivity is the per-predicate estimate used when no
// statistics narrow it down.
const defaultPredicateSelectivity = 0.5

// minSelectivityEstimate floors the stacked estimate so deep predicate
// stacks never round to zero rows.
const minSelectivityEstimate = 0.01

// QueryEngine executes queries against one sealed store. The engine is safe
// for concurrent use: the store is read-only, options arrive by value, and
// the adaptive tracker synchronizes internally.
type QueryEngine struct {
	store   *Store
	tracker *AdaptiveTracker
	logger  *zap.Logger
	cores   int
}

// NewQueryEngine wires a sealed store to an adaptive tracker. A nil tracker
// disables adaptive execution; a nil logger disables query logging.
func NewQueryEngine(store *Store, tracker *AdaptiveTracker, logger *zap.Logger) *QueryEngine {
	if tracker == nil {
		tracker = NewAdaptiveTracker(false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEngine{
		store:   store,
		tracker: tracker,
		logger:  logger,
		cores:   runtime.NumCPU(),
	}
}

// Store returns the engine's sealed store.
func (e *QueryEngine) Store() *Store { return e.store }

// Tracker returns the engine's adaptive tracker.
func (e *QueryEngine) Tracker() *AdaptiveTracker { return e.tracker }

// NumRows returns the store row count.
func (e *QueryEngine) NumRows() int { return e.store.NumRows() }

// Schema returns the store schema.
func (e *QueryEngine) Schema() *strata.Schema { return e.store.Schema() }

// ToRecords materializes the whole store.
func (e *QueryEngine) ToRecords() []strata.Record { return e.store.ToRecords() }

// Statistics returns the store's build statistics.
func (e *QueryEngine) Statistics() *strata.BuildStatistics { return e.store.Statistics() }

// Join always fails: join execution is outside the engine's domain.
func (e *QueryEngine) Join(ctx context.Context) error {
	return strata.NewUnsupportedOperationError("Join",
		"relational joins are not part of the columnar query core")
}

// GroupJoin always fails: group-join execution is outside the engine's domain.
func (e *QueryEngine) GroupJoin(ctx context.Context) error {
	return strata.NewUnsupportedOperationError("GroupJoin",
		"relational joins are not part of the columnar query core")
}

// ExportColumn hands a column's buffers to the IPC collaborator, optionally
// compressed through the process-wide codec handle.
func (e *QueryEngine) ExportColumn(field string, compress bool) (*strata.ColumnBuffers, error) {
	var codec *CompressionCodec
	if compress {
		c, err := OpenCodecRegistry()
		if err != nil {
			return nil, err
		}
		codec = c
	}
	return e.store.ExportColumn(field, codec)
}

// Recommendations returns the adaptive advisor output.
func (e *QueryEngine) Recommendations() []strata.Recommendation {
	return e.tracker.Recommendations()
}

// Plan lowers a query to its logical tree.
func (e *QueryEngine) Plan(q *strata.Query) *LogicalPlan {
	plan := NewScanPlan(e.store)
	if len(q.Predicates) > 0 {
		plan = NewFilterPlan(plan, q.Predicates, estimateSelectivity(q.Predicates))
	}
	if q.Distinct {
		plan = NewDistinctPlan(plan)
	}
	if len(q.Projection) > 0 {
		plan = NewProjectPlan(plan, q.Projection)
	}
	if q.Aggregate != strata.AggregateNone {
		plan = NewAggregatePlan(plan, q.Aggregate, q.AggregateField)
	}
	if len(q.SortKeys) > 0 {
		plan = NewSortPlan(plan, q.SortKeys)
	}
	if q.Limit > 0 {
		plan = NewLimitPlan(plan, q.Limit)
	}
	return plan
}

// estimateSelectivity stacks the default per-predicate selectivity.
func estimateSelectivity(predicates []strata.Predicate) float64 {
	s := 1.0
	for range predicates {
		s *= defaultPredicateSelectivity
	}
	if s < minSelectivityEstimate {
		s = minSelectivityEstimate
	}
	return s
}

// Execute runs a query under the given per-query options and returns the
// result with execution telemetry. Execution errors discard any partial
// output.
func (e *QueryEngine) Execute(ctx context.Context, q *strata.Query, opts strata.QueryOptions) (*strata.QueryResult, error) {
	start := time.Now()
	if err := ValidatePredicates(e.store, q.Predicates); err != nil {
		return nil, err
	}
	if opts.ParallelChunkRows <= 0 {
		opts.ParallelChunkRows = DefaultChunkRows
	}

	logical := e.Plan(q)
	physical := CreatePhysicalPlan(logical, e.cores)
	fingerprint := physical.Fingerprint()

	strategy := e.resolveStrategy(physical, fingerprint, q, opts)

	var result *strata.QueryResult
	var err error
	if opts.UseLogicalPlanExecution {
		result, err = e.executePlanned(ctx, q, strategy, opts)
	} else {
		result, err = e.executeNaive(ctx, q)
		strategy = strata.StrategySequential
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	result.ExecutionTime = elapsed
	result.Context = strata.QueryExecutionContext{
		QueryID:        uuid.New(),
		Fingerprint:    fingerprint,
		Strategy:       strategy,
		ElapsedMS:      float64(elapsed.Microseconds()) / 1000.0,
		RowCount:       result.Count,
		PredicateCount: len(q.Predicates),
	}

	if opts.UseAdaptiveExecution {
		e.tracker.RecordExecution(fingerprint, ExecutionSample{
			Strategy:       strategy,
			ElapsedMS:      result.Context.ElapsedMS,
			RowCount:       result.Count,
			PredicateCount: len(q.Predicates),
		})
	}

	EmitQueryLatency(ctx, string(strategy), result.Context.ElapsedMS)
	EmitRowCount(ctx, string(strategy), int64(result.Count))
	e.logger.Debug("query executed",
		zap.String("strategy", string(strategy)),
		zap.Uint64("fingerprint", fingerprint),
		zap.Int("rows", result.Count),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// resolveStrategy picks the execution strategy: an explicit override wins,
// then learned history when adaptive execution is on, then the cost-based
// tag. Parallel execution is gated by the per-query option.
func (e *QueryEngine) resolveStrategy(physical *PhysicalPlan, fingerprint uint64, q *strata.Query, opts strata.QueryOptions) strata.Strategy {
	var strategy strata.Strategy
	switch {
	case opts.StrategyOverride != nil:
		return *opts.StrategyOverride
	case opts.UseAdaptiveExecution:
		strategy = e.tracker.SuggestStrategy(fingerprint, e.store.NumRows(), len(q.Predicates))
	default:
		strategy = physical.FilterStrategy()
	}
	if strategy == strata.StrategyParallel && !opts.EnableParallel {
		strategy = strata.StrategySIMD
	}
	return strategy
}

// executePlanned runs the kernel pipeline: filter to a selection bitmap,
// then aggregate or materialize.
func (e *QueryEngine) executePlanned(ctx context.Context, q *strata.Query, strategy strata.Strategy, opts strata.QueryOptions) (*strata.QueryResult, error) {
	sel, err := ApplyFilter(ctx, e.store, q.Predicates, strategy, opts.ParallelChunkRows)
	if err != nil {
		return nil, err
	}

	if q.Aggregate != strata.AggregateNone {
		aggStrategy := strata.StrategySequential
		if strategy == strata.StrategyParallel {
			aggStrategy = strata.StrategyParallel
		}
		value, rows, err := ComputeAggregate(ctx, e.store, sel, q.Aggregate, q.AggregateField, aggStrategy, opts.ParallelChunkRows)
		if err != nil {
			return nil, err
		}
		return &strata.QueryResult{Aggregate: &value, Count: rows}, nil
	}

	records, err := e.materialize(ctx, sel, q)
	if err != nil {
		return nil, err
	}
	return &strata.QueryResult{Records: records, Count: len(records)}, nil
}

// materialize turns the selection bitmap into output records, applying
// projection, distinct, sort and limit.
func (e *QueryEngine) materialize(ctx context.Context, sel *Bitmap, q *strata.Query) ([]strata.Record, error) {
	cols := e.projectionColumns(q.Projection)
	var records []strata.Record
	var seen map[string]struct{}
	if q.Distinct {
		seen = make(map[string]struct{})
	}
	// A limit without sort can stop materialization early.
	earlyLimit := q.Limit > 0 && len(q.SortKeys) == 0

	var iterErr error
	sel.ForEachSet(func(row int) bool {
		if row%cancelCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				iterErr = strata.NewCancelledError(err)
				return false
			}
		}
		rec := make(strata.Record, len(cols))
		for i, col := range cols {
			v, ok := e.store.Column(col).Value(row)
			if ok {
				rec[i] = v
			}
		}
		if seen != nil {
			key := recordKey(rec)
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
		}
		records = append(records, rec)
		return !(earlyLimit && len(records) >= q.Limit)
	})
	if iterErr != nil {
		return nil, iterErr
	}

	if len(q.SortKeys) > 0 {
		outSchema := e.store.Schema()
		if len(q.Projection) > 0 {
			outSchema = outSchema.Select(q.Projection)
		}
		if err := sortRecords(records, outSchema, q.SortKeys); err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(records) > q.Limit {
			records = records[:q.Limit]
		}
	}
	return records, nil
}

// projectionColumns resolves the projected field list, defaulting to every
// column in schema order.
func (e *QueryEngine) projectionColumns(fields []string) []int {
	if len(fields) == 0 {
		cols := make([]int, e.store.Schema().Len())
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	cols := make([]int, 0, len(fields))
	for _, f := range fields {
		if i := e.store.ColumnIndex(f); i >= 0 {
			cols = append(cols, i)
		}
	}
	return cols
}

// recordKey renders a record into a distinct key. The 0x1f separator keeps
// adjacent string values from colliding.
func recordKey(rec strata.Record) string {
	var b strings.Builder
	for _, v := range rec {
		switch t := v.(type) {
		case nil:
			b.WriteString("\x00")
		case int32:
			b.WriteString(strconv.FormatInt(int64(t), 10))
		case float64:
			b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		case string:
			b.WriteString(t)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// sortRecords orders records by the sort keys in place.
func sortRecords(records []strata.Record, schema *strata.Schema, keys []strata.SortKey) error {
	type boundKey struct {
		col  int
		desc bool
	}
	bound := make([]boundKey, 0, len(keys))
	for _, k := range keys {
		col := schema.FieldIndex(k.Field)
		if col < 0 {
			return strata.NewUnknownFieldError(k.Field)
		}
		bound = append(bound, boundKey{col: col, desc: k.Order == strata.SortOrderDesc})
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range bound {
			c := compareValues(records[i][k.col], records[j][k.col])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// compareValues orders two record values of the same logical type. Nulls
// order first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case int32:
		bv := b.(int32)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

// executeNaive is the row-wise reference interpreter retained for parity
// testing. It evaluates predicates through their generic form and folds
// aggregates directly, without bitmaps or plan lowering.
func (e *QueryEngine) executeNaive(ctx context.Context, q *strata.Query) (*strata.QueryResult, error) {
	n := e.store.NumRows()
	var selected []int
	for row := 0; row < n; row++ {
		if row%cancelCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, strata.NewCancelledError(err)
			}
		}
		match := true
		for _, p := range q.Predicates {
			if p.Evaluate(e.store, row) != strata.TruthTrue {
				match = false
				break
			}
		}
		if match {
			selected = append(selected, row)
		}
	}

	if q.Aggregate != strata.AggregateNone {
		sel := NewBitmap(n)
		for _, row := range selected {
			sel.Set(row)
		}
		value, rows, err := ComputeAggregate(ctx, e.store, sel, q.Aggregate, q.AggregateField, strata.StrategySequential, DefaultChunkRows)
		if err != nil {
			return nil, err
		}
		return &strata.QueryResult{Aggregate: &value, Count: rows}, nil
	}

	sel := NewBitmap(n)
	for _, row := range selected {
		sel.Set(row)
	}
	records, err := e.materialize(ctx, sel, q)
	if err != nil {
		return nil, err
	}
	return &strata.QueryResult{Records: records, Count: len(records)}, nil
}
