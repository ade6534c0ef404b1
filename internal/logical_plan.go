package internal

import (
	"github.com/lychee-technology/strata"
)

// PlanKind identifies a plan node. Plans are a sum type over kinds with a
// match on traversal rather than a visitor hierarchy.
type PlanKind string

const (
	KindScan      PlanKind = "scan"
	KindFilter    PlanKind = "filter"
	KindProject   PlanKind = "project"
	KindAggregate PlanKind = "aggregate"
	KindDistinct  PlanKind = "distinct"
	KindLimit     PlanKind = "limit"
	KindSort      PlanKind = "sort"
)

// Row-estimate constants. Only relative order matters downstream, but the
// distinct reduction factor is pinned by tests.
const distinctReductionFactor = 0.3

// LogicalPlan is one node of a logical query tree. Kind decides which fields
// are meaningful; Input is nil only for Scan.
type LogicalPlan struct {
	Kind  PlanKind
	Input *LogicalPlan

	// Scan
	Source *Store
	Schema *strata.Schema

	// Filter
	Predicates  []strata.Predicate
	Selectivity float64

	// Project
	Fields []string

	// Aggregate
	Aggregate      strata.AggregateKind
	AggregateField string

	// Limit
	Limit int

	// Sort
	SortKeys []strata.SortKey
}

// NewScanPlan creates a scan over a sealed store. The store handle carries
// its own schema; no erased references.
func NewScanPlan(source *Store) *LogicalPlan {
	return &LogicalPlan{Kind: KindScan, Source: source, Schema: source.Schema()}
}

// NewFilterPlan stacks a filter on input. Selectivity is the estimated
// fraction of rows that pass.
func NewFilterPlan(input *LogicalPlan, predicates []strata.Predicate, selectivity float64) *LogicalPlan {
	return &LogicalPlan{Kind: KindFilter, Input: input, Predicates: predicates, Selectivity: selectivity}
}

// NewProjectPlan narrows input to the named fields.
func NewProjectPlan(input *LogicalPlan, fields []string) *LogicalPlan {
	return &LogicalPlan{Kind: KindProject, Input: input, Fields: fields}
}

// NewAggregatePlan folds input with the given aggregate.
func NewAggregatePlan(input *LogicalPlan, kind strata.AggregateKind, field string) *LogicalPlan {
	return &LogicalPlan{Kind: KindAggregate, Input: input, Aggregate: kind, AggregateField: field}
}

// NewDistinctPlan deduplicates input rows.
func NewDistinctPlan(input *LogicalPlan) *LogicalPlan {
	return &LogicalPlan{Kind: KindDistinct, Input: input}
}

// NewLimitPlan truncates input to k rows.
func NewLimitPlan(input *LogicalPlan, k int) *LogicalPlan {
	return &LogicalPlan{Kind: KindLimit, Input: input, Limit: k}
}

// NewSortPlan orders input by the given keys.
func NewSortPlan(input *LogicalPlan, keys []strata.SortKey) *LogicalPlan {
	return &LogicalPlan{Kind: KindSort, Input: input, SortKeys: keys}
}

// EstimatedRowCount reports the node's cardinality estimate.
func (p *LogicalPlan) EstimatedRowCount() float64 {
	switch p.Kind {
	case KindScan:
		return float64(p.Source.NumRows())
	case KindFilter:
		return p.Input.EstimatedRowCount() * p.Selectivity
	case KindDistinct:
		return p.Input.EstimatedRowCount() * distinctReductionFactor
	case KindLimit:
		in := p.Input.EstimatedRowCount()
		if k := float64(p.Limit); k < in {
			return k
		}
		return in
	default:
		return p.Input.EstimatedRowCount()
	}
}

// OutputSchema reports the node's output schema.
func (p *LogicalPlan) OutputSchema() *strata.Schema {
	switch p.Kind {
	case KindScan:
		return p.Schema
	case KindProject:
		return p.Input.OutputSchema().Select(p.Fields)
	case KindAggregate:
		return strata.NewSchema(strata.Field{Name: string(p.Aggregate), Type: strata.TypeFloat64})
	default:
		return p.Input.OutputSchema()
	}
}

// Walk traverses the tree top-down, calling fn at every node. Returning
// false prunes the subtree. This is the hook optimizer passes (predicate and
// projection push-down) attach to.
func (p *LogicalPlan) Walk(fn func(*LogicalPlan) bool) {
	if p == nil || !fn(p) {
		return
	}
	p.Input.Walk(fn)
}

// leafStore returns the scan source at the bottom of the tree.
func (p *LogicalPlan) leafStore() *Store {
	node := p
	for node.Input != nil {
		node = node.Input
	}
	return node.Source
}

// collectPredicates gathers all filter predicates along the spine, outermost
// first. Stacked filters combine as a conjunction.
func (p *LogicalPlan) collectPredicates() []strata.Predicate {
	var out []strata.Predicate
	p.Walk(func(node *LogicalPlan) bool {
		if node.Kind == KindFilter {
			out = append(out, node.Predicates...)
		}
		return true
	})
	return out
}
