package internal

import (
	"encoding/binary"
	"runtime"

	"github.com/lychee-technology/strata"
	"github.com/zeebo/xxh3"
)

// Cost model constants. The cost unit is dimensionless; only relative order
// matters. These are contracts pinned by tests.
const (
	costScanDivisor      = 1000.0
	costAggregateDivisor = 5000.0
	factorSequential     = 1.0
	factorSIMD           = 0.35
	factorParallelFloor  = 0.15
)

// strategyFactor returns the cost factor of a filter strategy on a machine
// with the given core count.
func strategyFactor(s strata.Strategy, cores int) float64 {
	switch s {
	case strata.StrategySIMD:
		return factorSIMD
	case strata.StrategyParallel:
		f := 1.0 / float64(cores)
		if f < factorParallelFloor {
			f = factorParallelFloor
		}
		return f
	default:
		return factorSequential
	}
}

// strategyRank orders strategies for cost ties: SIMD > Parallel > Sequential.
func strategyRank(s strata.Strategy) int {
	switch s {
	case strata.StrategySIMD:
		return 2
	case strata.StrategyParallel:
		return 1
	default:
		return 0
	}
}

// PhysicalPlan mirrors a logical node with an explicit strategy tag and a
// cost. Only Scan, Filter and Aggregate carry costs; the remaining operators
// ride along untagged.
type PhysicalPlan struct {
	Kind  PlanKind
	Input *PhysicalPlan

	Rows        float64
	Selectivity float64
	Strategy    strata.Strategy

	Predicates     []strata.Predicate
	Aggregate      strata.AggregateKind
	AggregateField string
	Fields         []string
	Limit          int
	SortKeys       []strata.SortKey
}

// SelfCost returns the node's own cost, excluding children.
func (p *PhysicalPlan) SelfCost(cores int) float64 {
	switch p.Kind {
	case KindScan:
		return p.Rows / costScanDivisor
	case KindFilter:
		return (p.Rows / costScanDivisor) * strategyFactor(p.Strategy, cores) * (0.5 + 0.5*p.Selectivity)
	case KindAggregate:
		return (p.Rows / costAggregateDivisor) * strategyFactor(p.Strategy, cores)
	default:
		return 0
	}
}

// Cost returns the total cost of the subtree.
func (p *PhysicalPlan) Cost(cores int) float64 {
	total := p.SelfCost(cores)
	if p.Input != nil {
		total += p.Input.Cost(cores)
	}
	return total
}

// FilterStrategy returns the strategy tag of the first filter on the spine,
// or Sequential when the plan has no filter.
func (p *PhysicalPlan) FilterStrategy() strata.Strategy {
	for node := p; node != nil; node = node.Input {
		if node.Kind == KindFilter {
			return node.Strategy
		}
	}
	return strata.StrategySequential
}

// filterStrategies and aggregateStrategies enumerate the candidate tags.
var filterStrategies = []strata.Strategy{
	strata.StrategySequential, strata.StrategySIMD, strata.StrategyParallel,
}

var aggregateStrategies = []strata.Strategy{
	strata.StrategySequential, strata.StrategyParallel,
}

// CreatePhysicalPlan materializes the lowest-cost tagged physical tree for a
// logical plan, greedily picking each tagged node's strategy. Ties break in
// favor of SIMD, then Parallel, then Sequential.
func CreatePhysicalPlan(lp *LogicalPlan, cores int) *PhysicalPlan {
	if lp == nil {
		return nil
	}
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	var input *PhysicalPlan
	if lp.Input != nil {
		input = CreatePhysicalPlan(lp.Input, cores)
	}
	node := &PhysicalPlan{
		Kind:           lp.Kind,
		Input:          input,
		Rows:           lp.EstimatedRowCount(),
		Selectivity:    lp.Selectivity,
		Predicates:     lp.Predicates,
		Aggregate:      lp.Aggregate,
		AggregateField: lp.AggregateField,
		Fields:         lp.Fields,
		Limit:          lp.Limit,
		SortKeys:       lp.SortKeys,
	}
	switch lp.Kind {
	case KindFilter:
		// Cost the filter at its input cardinality.
		node.Rows = lp.Input.EstimatedRowCount()
		node.Strategy = cheapestStrategy(node, filterStrategies, cores)
	case KindAggregate:
		node.Rows = lp.Input.EstimatedRowCount()
		node.Strategy = cheapestStrategy(node, aggregateStrategies, cores)
	case KindScan:
		node.Strategy = strata.StrategySequential
	}
	return node
}

// cheapestStrategy evaluates the node's self cost under each candidate tag.
func cheapestStrategy(node *PhysicalPlan, candidates []strata.Strategy, cores int) strata.Strategy {
	best := candidates[0]
	node.Strategy = best
	bestCost := node.SelfCost(cores)
	for _, s := range candidates[1:] {
		node.Strategy = s
		cost := node.SelfCost(cores)
		if cost < bestCost || (cost == bestCost && strategyRank(s) > strategyRank(best)) {
			best, bestCost = s, cost
		}
	}
	node.Strategy = best
	return best
}

// ChooseBetterPlan returns the plan with the lower total cost. Ties break in
// favor of the higher-ranked filter strategy: SIMD > Parallel > Sequential.
func ChooseBetterPlan(a, b *PhysicalPlan, cores int) *PhysicalPlan {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	ca, cb := a.Cost(cores), b.Cost(cores)
	if ca < cb {
		return a
	}
	if cb < ca {
		return b
	}
	if strategyRank(b.FilterStrategy()) > strategyRank(a.FilterStrategy()) {
		return b
	}
	return a
}

// Fingerprint hashes the plan's structural shape: node kinds, field names
// and operator codes — never literal constants or row counts. Queries that
// differ only in literals share a fingerprint.
func (p *PhysicalPlan) Fingerprint() uint64 {
	h := xxh3.New()
	for node := p; node != nil; node = node.Input {
		_, _ = h.WriteString(string(node.Kind))
		switch node.Kind {
		case KindFilter:
			for _, pred := range node.Predicates {
				writeFingerprintPredicate(h, pred)
			}
		case KindAggregate:
			_, _ = h.WriteString(string(node.Aggregate))
			_, _ = h.WriteString(node.AggregateField)
		case KindProject:
			for _, f := range node.Fields {
				_, _ = h.WriteString(f)
			}
		case KindSort:
			for _, k := range node.SortKeys {
				_, _ = h.WriteString(k.Field)
				_, _ = h.WriteString(string(k.Order))
			}
		case KindLimit:
			// k is a literal; excluded from the shape.
		}
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func writeFingerprintPredicate(h *xxh3.Hasher, p strata.Predicate) {
	_, _ = h.WriteString(p.OpCode())
	_, _ = h.WriteString(p.FieldName())
	switch pred := p.(type) {
	case *strata.Conjunction:
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(pred.Predicates)))
		_, _ = h.Write(count[:])
		for _, child := range pred.Predicates {
			writeFingerprintPredicate(h, child)
		}
	case *strata.Disjunction:
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(pred.Predicates)))
		_, _ = h.Write(count[:])
		for _, child := range pred.Predicates {
			writeFingerprintPredicate(h, child)
		}
	}
}
