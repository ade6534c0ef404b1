package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/factory"
)

var names = []string{"Engineering", "Sales", "Support", "Marketing", "Finance"}

func main() {
	rows := flag.Int("rows", 100000, "Number of rows to generate")
	seed := flag.Int64("seed", 42, "Random seed for data generation")
	strategy := flag.String("strategy", "", "Force a strategy (sequential|simd|parallel)")
	adaptive := flag.Bool("adaptive", false, "Enable adaptive execution")
	repeat := flag.Int("repeat", 5, "How many times to run each query")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")

	flag.Parse()

	schema := strata.NewSchema(
		strata.Field{Name: "Department", Type: strata.TypeString},
		strata.Field{Name: "Age", Type: strata.TypeInt32},
		strata.Field{Name: "Salary", Type: strata.TypeFloat64, Nullable: true},
	)

	rng := rand.New(rand.NewSource(*seed))
	records := make([]strata.Record, *rows)
	for i := range records {
		var salary any = 30000.0 + rng.Float64()*90000.0
		if rng.Intn(50) == 0 {
			salary = nil
		}
		records[i] = strata.Record{
			names[rng.Intn(len(names))],
			int32(20 + rng.Intn(45)),
			salary,
		}
	}

	config := strata.DefaultConfig()
	config.Execution.EnableParallel = true
	config.Adaptive.Enabled = *adaptive
	if !*verbose {
		config.Logging.Level = "warn"
	}

	engine, err := factory.NewEngineWithConfig(config, schema, records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to build engine: %v\n", err)
		os.Exit(1)
	}

	stats := engine.Statistics()
	for _, col := range stats.Columns {
		fmt.Printf("column %-12s distinct=%-6d nulls=%-5d encoding=%-10s saved=%d bytes\n",
			col.FieldName, col.DistinctCount, col.NullCount, col.RecommendedEncoding, col.EstimatedBytesSaved)
	}
	fmt.Printf("estimated store savings: %d bytes\n\n", stats.EstimateMemorySavings())

	query := &strata.Query{
		Predicates: []strata.Predicate{
			strata.NewComparison("Age", strata.OpGreater, int32(40)),
			strata.NewComparison("Department", strata.OpEquals, "Engineering"),
		},
		Aggregate:      strata.AggregateSum,
		AggregateField: "Salary",
	}

	opts := config.QueryOptions()
	if *strategy != "" {
		s := strata.Strategy(*strategy)
		opts.StrategyOverride = &s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < *repeat; i++ {
		result, err := engine.Execute(ctx, query, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: query failed: %v\n", err)
			os.Exit(1)
		}
		payload, _ := json.Marshal(result.Context)
		fmt.Printf("run %d: sum=%.2f rows=%d telemetry=%s\n", i+1, *result.Aggregate, result.Count, payload)
	}

	if err := engine.Join(ctx); err != nil {
		fmt.Printf("\njoin probe: %v\n", err)
	}

	if recs := engine.Recommendations(); len(recs) > 0 {
		fmt.Println("\nadaptive recommendations:")
		for _, r := range recs {
			fmt.Printf("  [%s] %016x %s\n", r.Impact, r.Fingerprint, r.Description)
		}
	}
}
