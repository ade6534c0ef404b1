package internal

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/lychee-technology/strata"
)

// explainNode is the serialized form of one plan node.
type explainNode struct {
	Kind        string          `json:"kind"`
	Strategy    strata.Strategy `json:"strategy,omitempty"`
	Rows        float64         `json:"estimated_rows"`
	Cost        float64         `json:"cost,omitempty"`
	Selectivity float64         `json:"selectivity,omitempty"`
	Predicates  []string        `json:"predicates,omitempty"`
	Aggregate   string          `json:"aggregate,omitempty"`
	Fields      []string        `json:"fields,omitempty"`
	Input       *explainNode    `json:"input,omitempty"`
}

func explainPredicates(predicates []strata.Predicate) []string {
	out := make([]string, 0, len(predicates))
	for _, p := range predicates {
		if f := p.FieldName(); f != "" {
			out = append(out, f+" "+p.OpCode())
			continue
		}
		out = append(out, p.OpCode())
	}
	return out
}

// ExplainLogical renders a logical plan as indented JSON.
func ExplainLogical(p *LogicalPlan) (string, error) {
	node := logicalExplainNode(p)
	data, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return "", strata.NewInternalError("explain render", err)
	}
	return string(data), nil
}

func logicalExplainNode(p *LogicalPlan) *explainNode {
	if p == nil {
		return nil
	}
	node := &explainNode{
		Kind:        string(p.Kind),
		Rows:        p.EstimatedRowCount(),
		Selectivity: p.Selectivity,
		Predicates:  explainPredicates(p.Predicates),
		Fields:      p.Fields,
		Input:       logicalExplainNode(p.Input),
	}
	if p.Aggregate != strata.AggregateNone {
		node.Aggregate = string(p.Aggregate)
	}
	return node
}

// ExplainPhysical renders a physical plan as indented JSON, including
// per-node strategies and costs.
func ExplainPhysical(p *PhysicalPlan, cores int) (string, error) {
	node := physicalExplainNode(p, cores)
	data, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return "", strata.NewInternalError("explain render", err)
	}
	return string(data), nil
}

func physicalExplainNode(p *PhysicalPlan, cores int) *explainNode {
	if p == nil {
		return nil
	}
	node := &explainNode{
		Kind:        string(p.Kind),
		Strategy:    p.Strategy,
		Rows:        p.Rows,
		Cost:        p.SelfCost(cores),
		Selectivity: p.Selectivity,
		Predicates:  explainPredicates(p.Predicates),
		Fields:      p.Fields,
		Input:       physicalExplainNode(p.Input, cores),
	}
	if p.Aggregate != strata.AggregateNone {
		node.Aggregate = string(p.Aggregate)
	}
	return node
}

// ExplainText renders a physical plan as a compact one-line-per-node text
// tree for log output.
func ExplainText(p *PhysicalPlan, cores int) string {
	var b strings.Builder
	depth := 0
	for node := p; node != nil; node = node.Input {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(string(node.Kind))
		if node.Strategy != "" {
			fmt.Fprintf(&b, " [%s]", node.Strategy)
		}
		fmt.Fprintf(&b, " rows=%.0f cost=%.3f", node.Rows, node.SelfCost(cores))
		b.WriteString("\n")
		depth++
	}
	return b.String()
}
