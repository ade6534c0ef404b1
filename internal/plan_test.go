package internal

import (
	"strings"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanFixture(t *testing.T, rows int) *LogicalPlan {
	t.Helper()
	store := buildPayrollStore(t, rows, 1)
	return NewScanPlan(store)
}

func TestLogicalPlanRowEstimates(t *testing.T) {
	scan := scanFixture(t, 1000)
	assert.Equal(t, 1000.0, scan.EstimatedRowCount())

	filter := NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5)
	assert.Equal(t, 500.0, filter.EstimatedRowCount())

	distinct := NewDistinctPlan(filter)
	assert.InDelta(t, 150.0, distinct.EstimatedRowCount(), 1e-9)

	limit := NewLimitPlan(filter, 100)
	assert.Equal(t, 100.0, limit.EstimatedRowCount())

	limitAbove := NewLimitPlan(filter, 10000)
	assert.Equal(t, 500.0, limitAbove.EstimatedRowCount())
}

func TestLogicalPlanOutputSchema(t *testing.T) {
	scan := scanFixture(t, 100)
	project := NewProjectPlan(scan, []string{"Age"})
	require.Equal(t, 1, project.OutputSchema().Len())
	assert.Equal(t, "Age", project.OutputSchema().Field(0).Name)

	agg := NewAggregatePlan(scan, strata.AggregateSum, "Salary")
	require.Equal(t, 1, agg.OutputSchema().Len())
	assert.Equal(t, strata.TypeFloat64, agg.OutputSchema().Field(0).Type)
}

func TestLogicalPlanWalk(t *testing.T) {
	scan := scanFixture(t, 100)
	filter := NewFilterPlan(scan, nil, 0.5)
	sortNode := NewSortPlan(filter, []strata.SortKey{{Field: "Age"}})

	var kinds []PlanKind
	sortNode.Walk(func(p *LogicalPlan) bool {
		kinds = append(kinds, p.Kind)
		return true
	})
	assert.Equal(t, []PlanKind{KindSort, KindFilter, KindScan}, kinds)

	kinds = nil
	sortNode.Walk(func(p *LogicalPlan) bool {
		kinds = append(kinds, p.Kind)
		return p.Kind != KindFilter
	})
	assert.Equal(t, []PlanKind{KindSort, KindFilter}, kinds)
}

// TestCostOrdering pins the cost-model invariants: for equal inputs the
// SIMD filter costs less than Sequential, and Parallel costs less than
// Sequential on any multi-core machine.
func TestCostOrdering(t *testing.T) {
	scan := scanFixture(t, 100000)
	filter := NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5)

	cost := func(s strata.Strategy, cores int) float64 {
		node := &PhysicalPlan{Kind: KindFilter, Rows: 100000, Selectivity: 0.5, Strategy: s}
		return node.SelfCost(cores)
	}
	for _, cores := range []int{2, 4, 16} {
		assert.Less(t, cost(strata.StrategySIMD, cores), cost(strata.StrategySequential, cores))
		assert.Less(t, cost(strata.StrategyParallel, cores), cost(strata.StrategySequential, cores))
	}
	// parallel factor floors at 0.15 regardless of core count
	assert.Equal(t, cost(strata.StrategyParallel, 1000), cost(strata.StrategyParallel, 7))

	physical := CreatePhysicalPlan(filter, 4)
	assert.Greater(t, physical.Cost(4), 0.0)
	assert.Equal(t, physical.Cost(4), physical.SelfCost(4)+physical.Input.SelfCost(4))
}

func TestCreatePhysicalPlanStrategySelection(t *testing.T) {
	scan := scanFixture(t, 10000)
	filter := NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5)

	// with 4 cores the parallel factor (0.25) beats SIMD (0.35)
	physical := CreatePhysicalPlan(filter, 4)
	assert.Equal(t, strata.StrategyParallel, physical.FilterStrategy())

	// with 2 cores SIMD (0.35) beats parallel (0.5)
	physical = CreatePhysicalPlan(filter, 2)
	assert.Equal(t, strata.StrategySIMD, physical.FilterStrategy())
}

func TestChooseBetterPlan(t *testing.T) {
	scan := scanFixture(t, 10000)
	filter := NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5)

	a := CreatePhysicalPlan(filter, 4)
	b := CreatePhysicalPlan(filter, 4)
	b.Strategy = strata.StrategySequential
	assert.Same(t, a, ChooseBetterPlan(a, b, 4))
	assert.Same(t, a, ChooseBetterPlan(b, a, 4))

	// equal cost and equal strategy rank: the first argument is kept
	c := CreatePhysicalPlan(filter, 4)
	c.Strategy = strata.StrategySIMD
	d := CreatePhysicalPlan(filter, 4)
	d.Strategy = strata.StrategySIMD
	d.Input = c.Input
	assert.Same(t, c, ChooseBetterPlan(c, d, 4))

	assert.Same(t, a, ChooseBetterPlan(a, nil, 4))
	assert.Same(t, a, ChooseBetterPlan(nil, a, 4))
}

// TestFingerprintLiteralStability pins the adaptive contract: queries that
// differ only in literal constants share a fingerprint; different shapes do
// not.
func TestFingerprintLiteralStability(t *testing.T) {
	scan := scanFixture(t, 1000)

	plan := func(preds ...strata.Predicate) *PhysicalPlan {
		return CreatePhysicalPlan(NewFilterPlan(scan, preds, 0.5), 4)
	}

	a := plan(strata.NewComparison("Age", strata.OpGreater, int32(40)))
	b := plan(strata.NewComparison("Age", strata.OpGreater, int32(63)))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	differentField := plan(strata.NewComparison("Salary", strata.OpGreater, 40.0))
	assert.NotEqual(t, a.Fingerprint(), differentField.Fingerprint())

	differentOp := plan(strata.NewComparison("Age", strata.OpLessThan, int32(40)))
	assert.NotEqual(t, a.Fingerprint(), differentOp.Fingerprint())

	morePreds := plan(
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
		strata.NewIsNotNull("Salary"),
	)
	assert.NotEqual(t, a.Fingerprint(), morePreds.Fingerprint())

	// row count does not shape the fingerprint
	smallScan := scanFixture(t, 10)
	small := CreatePhysicalPlan(NewFilterPlan(smallScan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5), 4)
	assert.Equal(t, a.Fingerprint(), small.Fingerprint())

	// aggregates extend the shape
	agg := CreatePhysicalPlan(NewAggregatePlan(NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5), strata.AggregateSum, "Salary"), 4)
	assert.NotEqual(t, a.Fingerprint(), agg.Fingerprint())
}

func TestExplainRendering(t *testing.T) {
	scan := scanFixture(t, 1000)
	filter := NewFilterPlan(scan, []strata.Predicate{
		strata.NewComparison("Age", strata.OpGreater, int32(40)),
	}, 0.5)
	agg := NewAggregatePlan(filter, strata.AggregateSum, "Salary")

	logical, err := ExplainLogical(agg)
	require.NoError(t, err)
	assert.Contains(t, logical, `"kind": "aggregate"`)
	assert.Contains(t, logical, `"Age gt"`)

	physical := CreatePhysicalPlan(agg, 4)
	rendered, err := ExplainPhysical(physical, 4)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"strategy"`)
	assert.Contains(t, rendered, `"cost"`)

	text := ExplainText(physical, 4)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "aggregate")
	assert.Contains(t, lines[2], "scan")
}
