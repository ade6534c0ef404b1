package strata

import (
	"time"

	"github.com/google/uuid"
)

// LogicalType identifies the value domain of a field.
type LogicalType string

const (
	TypeInt32   LogicalType = "int32"
	TypeFloat64 LogicalType = "float64"
	TypeString  LogicalType = "string"
)

// FixedWidth returns the in-memory width of a primitive value of this type,
// or 0 for variable-width types.
func (t LogicalType) FixedWidth() int {
	switch t {
	case TypeInt32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 0
	}
}

// Field describes a single column of a record schema.
type Field struct {
	Name     string      `json:"name"`
	Type     LogicalType `json:"type"`
	Nullable bool        `json:"nullable,omitempty"`
}

// Schema is an ordered list of fields, fixed at build time.
type Schema struct {
	Fields []Field `json:"fields"`
}

// NewSchema creates a schema from the given fields.
func NewSchema(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// FieldIndex returns the position of the named field, or -1 when absent.
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the field at position i.
func (s *Schema) Field(i int) Field {
	return s.Fields[i]
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.Fields)
}

// Select returns a new schema containing only the named fields, in the
// given order. Unknown names are skipped.
func (s *Schema) Select(names []string) *Schema {
	out := &Schema{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		if i := s.FieldIndex(name); i >= 0 {
			out.Fields = append(out.Fields, s.Fields[i])
		}
	}
	return out
}

// Record holds one row's values in schema field order. A nil element is a
// null. Int32 fields carry int32, Float64 fields carry float64, String
// fields carry string.
type Record []any

// Strategy selects the execution mode of a kernel.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategySIMD       Strategy = "simd"
	StrategyParallel   Strategy = "parallel"
)

// AggregateKind identifies an aggregate fold.
type AggregateKind string

const (
	AggregateNone  AggregateKind = ""
	AggregateSum   AggregateKind = "sum"
	AggregateCount AggregateKind = "count"
	AggregateAvg   AggregateKind = "avg"
	AggregateMin   AggregateKind = "min"
	AggregateMax   AggregateKind = "max"
)

// CompareOp identifies a comparison operator.
type CompareOp string

const (
	OpEquals    CompareOp = "eq"
	OpNotEquals CompareOp = "neq"
	OpLessThan  CompareOp = "lt"
	OpLessEq    CompareOp = "lte"
	OpGreater   CompareOp = "gt"
	OpGreaterEq CompareOp = "gte"
)

// SortOrder defines sort direction.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortKey names a sort column and direction.
type SortKey struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order,omitempty"`
}

// Encoding identifies the physical representation chosen for a column.
type Encoding string

const (
	EncodingPrimitive  Encoding = "primitive"
	EncodingDictionary Encoding = "dictionary"
)

// ColumnStatistics carries the build-time statistics of one column.
type ColumnStatistics struct {
	FieldName           string   `json:"field_name"`
	TotalCount          int      `json:"total_count"`
	DistinctCount       int      `json:"distinct_count"`
	NullCount           int      `json:"null_count"`
	RecommendedEncoding Encoding `json:"recommended_encoding"`
	EstimatedBytesSaved int64    `json:"estimated_bytes_saved"`
}

// BuildStatistics aggregates per-column statistics for a sealed store.
type BuildStatistics struct {
	Columns []ColumnStatistics `json:"columns"`
}

// ColumnByName returns the statistics for the named column, or nil.
func (b *BuildStatistics) ColumnByName(name string) *ColumnStatistics {
	for i := range b.Columns {
		if b.Columns[i].FieldName == name {
			return &b.Columns[i]
		}
	}
	return nil
}

// EstimateMemorySavings sums the estimated savings of the columns whose
// recommended encoding is dictionary and whose estimate is non-negative.
// String and fixed-width columns follow the same rule: a column recommended
// as primitive, or with a negative estimate, contributes nothing.
func (b *BuildStatistics) EstimateMemorySavings() int64 {
	var total int64
	for _, c := range b.Columns {
		if c.RecommendedEncoding != EncodingDictionary {
			continue
		}
		if c.EstimatedBytesSaved < 0 {
			continue
		}
		total += c.EstimatedBytesSaved
	}
	return total
}

// QueryOptions carries per-query execution settings. Options are passed by
// value into every execution; a query never mutates engine state.
type QueryOptions struct {
	EnableParallel          bool      `json:"enable_parallel"`
	ParallelChunkRows       int       `json:"parallel_chunk_rows"`
	StrategyOverride        *Strategy `json:"strategy_override,omitempty"`
	UseLogicalPlanExecution bool      `json:"use_logical_plan_execution"`
	UseAdaptiveExecution    bool      `json:"use_adaptive_execution"`
}

// DefaultQueryOptions returns the documented option defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		EnableParallel:          false,
		ParallelChunkRows:       65536,
		UseLogicalPlanExecution: true,
		UseAdaptiveExecution:    false,
	}
}

// Query describes one execution against a sealed store. Predicates are
// combined with AND. An empty predicate list selects every row.
type Query struct {
	Predicates     []Predicate   `json:"-"`
	Aggregate      AggregateKind `json:"aggregate,omitempty"`
	AggregateField string        `json:"aggregate_field,omitempty"`
	Projection     []string      `json:"projection,omitempty"`
	Distinct       bool          `json:"distinct,omitempty"`
	Limit          int           `json:"limit,omitempty"`
	SortKeys       []SortKey     `json:"sort_keys,omitempty"`
}

// QueryExecutionContext is the telemetry record returned with each query.
type QueryExecutionContext struct {
	QueryID        uuid.UUID `json:"query_id"`
	Fingerprint    uint64    `json:"fingerprint"`
	Strategy       Strategy  `json:"strategy"`
	ElapsedMS      float64   `json:"elapsed_ms"`
	RowCount       int       `json:"row_count"`
	PredicateCount int       `json:"predicate_count"`
}

// QueryResult carries the output of a query: either materialized records or
// an aggregate value, plus execution telemetry.
type QueryResult struct {
	Records       []Record              `json:"records,omitempty"`
	Aggregate     *float64              `json:"aggregate,omitempty"`
	Count         int                   `json:"count"`
	ExecutionTime time.Duration         `json:"execution_time"`
	Context       QueryExecutionContext `json:"context"`
}

// Impact grades an adaptive recommendation.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Recommendation is an advisory record produced by the adaptive tracker.
type Recommendation struct {
	Fingerprint uint64 `json:"fingerprint"`
	Description string `json:"description"`
	Impact      Impact `json:"impact"`
}

// ColumnBuffers is the raw buffer exchange format used at the IPC
// collaborator boundary. Buffers are copies; the store retains ownership of
// its own memory.
type ColumnBuffers struct {
	FieldName  string      `json:"field_name"`
	Type       LogicalType `json:"type"`
	NumRows    int         `json:"num_rows"`
	Values     []byte      `json:"values"`
	Offsets    []byte      `json:"offsets,omitempty"`
	Validity   []byte      `json:"validity,omitempty"`
	Compressed bool        `json:"compressed,omitempty"`
}
