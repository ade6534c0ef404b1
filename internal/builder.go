package internal

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// StoreBuilder buffers records for a fixed schema and seals them into an
// immutable columnar store. Build is deterministic for a given input order;
// dictionary tables reflect first-occurrence order.
type StoreBuilder struct {
	schema *strata.Schema
	logger *zap.Logger
	cols   []*columnIntake
	rows   int
}

// columnIntake accumulates one column's values and running statistics
// during record intake.
type columnIntake struct {
	field strata.Field

	int32s []int32
	f64s   []float64
	strs   []string
	valid  []bool

	nullCount int

	// seen tracks distinct non-null values by 64-bit digest. For the
	// fixed-width types the digest is the value's own bit pattern, so the
	// count is exact; for strings it is an xxhash digest, which the build
	// contract allows to be approximate.
	seen              *Set[uint64]
	dataBytes         int64
	distinctDataBytes int64
}

// NewStoreBuilder creates a builder for the given schema. A nil logger
// disables build logging.
func NewStoreBuilder(schema *strata.Schema, logger *zap.Logger) (*StoreBuilder, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, strata.NewBuildFailedError("schema must declare at least one field", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &StoreBuilder{
		schema: schema,
		logger: logger,
		cols:   make([]*columnIntake, schema.Len()),
	}
	for i, f := range schema.Fields {
		switch f.Type {
		case strata.TypeInt32, strata.TypeFloat64, strata.TypeString:
		default:
			return nil, strata.NewUnsupportedTypeError(f.Name, f.Type)
		}
		b.cols[i] = &columnIntake{field: f, seen: NewSet[uint64]()}
	}
	return b, nil
}

// Append buffers one record. The record must carry one value per schema
// field, typed to the field's logical type; nil is a null and requires a
// nullable field.
func (b *StoreBuilder) Append(rec strata.Record) error {
	if len(rec) != b.schema.Len() {
		return strata.NewSchemaMismatchError(
			fmt.Sprintf("record has %d values, schema has %d fields", len(rec), b.schema.Len()))
	}
	for i, col := range b.cols {
		if err := col.append(rec[i]); err != nil {
			return err
		}
	}
	b.rows++
	return nil
}

// AppendAll buffers a record sequence, stopping at the first malformed record.
func (b *StoreBuilder) AppendAll(records []strata.Record) error {
	for _, rec := range records {
		if err := b.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *columnIntake) append(v any) error {
	if v == nil {
		if !c.field.Nullable {
			return strata.NewSchemaMismatchError("null value for non-nullable field").WithField(c.field.Name)
		}
		c.nullCount++
		c.valid = append(c.valid, false)
		switch c.field.Type {
		case strata.TypeInt32:
			c.int32s = append(c.int32s, 0)
		case strata.TypeFloat64:
			c.f64s = append(c.f64s, 0)
		default:
			c.strs = append(c.strs, "")
		}
		return nil
	}
	switch c.field.Type {
	case strata.TypeInt32:
		iv, ok := v.(int32)
		if !ok {
			return strata.NewSchemaMismatchError(
				fmt.Sprintf("expected int32, got %T", v)).WithField(c.field.Name)
		}
		c.int32s = append(c.int32s, iv)
		c.seen.Add(uint64(uint32(iv)))
	case strata.TypeFloat64:
		fv, ok := v.(float64)
		if !ok {
			return strata.NewSchemaMismatchError(
				fmt.Sprintf("expected float64, got %T", v)).WithField(c.field.Name)
		}
		c.f64s = append(c.f64s, fv)
		c.seen.Add(math.Float64bits(fv))
	case strata.TypeString:
		sv, ok := v.(string)
		if !ok {
			return strata.NewSchemaMismatchError(
				fmt.Sprintf("expected string, got %T", v)).WithField(c.field.Name)
		}
		c.strs = append(c.strs, sv)
		digest := xxhash.Sum64String(sv)
		if !c.seen.Contains(digest) {
			c.seen.Add(digest)
			c.distinctDataBytes += int64(len(sv))
		}
		c.dataBytes += int64(len(sv))
	}
	c.valid = append(c.valid, true)
	return nil
}

// Build seals the buffered records into a store. The builder must not be
// reused afterwards.
func (b *StoreBuilder) Build() (*Store, error) {
	columns := make([]Column, len(b.cols))
	stats := &strata.BuildStatistics{Columns: make([]strata.ColumnStatistics, len(b.cols))}
	fieldIndex := make(map[string]int, len(b.cols))

	dictionaries := 0
	for i, col := range b.cols {
		built, cs, err := col.seal(b.rows)
		if err != nil {
			return nil, err
		}
		columns[i] = built
		stats.Columns[i] = cs
		fieldIndex[col.field.Name] = i
		if cs.RecommendedEncoding == strata.EncodingDictionary {
			dictionaries++
		}
	}

	b.logger.Info("store sealed",
		zap.Int("rows", b.rows),
		zap.Int("columns", len(columns)),
		zap.Int("dictionary_columns", dictionaries),
		zap.Int64("estimated_bytes_saved", stats.EstimateMemorySavings()),
	)

	return &Store{
		schema:     b.schema,
		numRows:    b.rows,
		columns:    columns,
		fieldIndex: fieldIndex,
		stats:      stats,
	}, nil
}

// seal freezes one column, deciding its encoding from the intake statistics.
func (c *columnIntake) seal(rows int) (Column, strata.ColumnStatistics, error) {
	distinct := c.seen.Size()
	encoding := RecommendEncoding(distinct, rows)

	cs := strata.ColumnStatistics{
		FieldName:           c.field.Name,
		TotalCount:          rows,
		DistinctCount:       distinct,
		NullCount:           c.nullCount,
		RecommendedEncoding: encoding,
	}

	var validity *Bitmap
	if c.nullCount > 0 {
		validity = NewBitmap(rows)
		for row, ok := range c.valid {
			if ok {
				validity.Set(row)
			}
		}
	}

	switch c.field.Type {
	case strata.TypeInt32:
		cs.EstimatedBytesSaved = EstimateSavingsFixed(distinct, rows, 4)
		if encoding == strata.EncodingDictionary {
			return sealDictionaryFixed(c.int32s, validity, strata.TypeInt32), cs, nil
		}
		return newPrimitiveColumn(c.int32s, validity, strata.TypeInt32), cs, nil

	case strata.TypeFloat64:
		cs.EstimatedBytesSaved = EstimateSavingsFixed(distinct, rows, 8)
		if encoding == strata.EncodingDictionary {
			return sealDictionaryFixed(c.f64s, validity, strata.TypeFloat64), cs, nil
		}
		return newPrimitiveColumn(c.f64s, validity, strata.TypeFloat64), cs, nil

	default:
		cs.EstimatedBytesSaved = EstimateSavingsString(distinct, rows, c.dataBytes, c.distinctDataBytes)
		if c.dataBytes > math.MaxInt32 {
			return nil, cs, strata.NewOffsetOverflowError(c.field.Name, c.dataBytes)
		}
		if encoding == strata.EncodingDictionary {
			return sealDictionaryString(c.strs, validity), cs, nil
		}
		return sealStringColumn(c.strs, validity), cs, nil
	}
}

// sealStringColumn emits the offsets and byte buffers of a string-primitive
// column. Null rows occupy zero bytes.
func sealStringColumn(values []string, validity *Bitmap) *StringColumn {
	offsets := make([]int32, len(values)+1)
	var total int32
	for _, v := range values {
		total += int32(len(v))
	}
	data := make([]byte, 0, total)
	for i, v := range values {
		if validity == nil || validity.Get(i) {
			data = append(data, v...)
		}
		offsets[i+1] = int32(len(data))
	}
	return newStringColumn(offsets, data, validity)
}

// sealDictionaryFixed builds a dictionary column over a fixed-width value
// buffer. The distinct table is insertion-ordered; null rows map to index 0.
func sealDictionaryFixed[T PrimitiveValue](values []T, validity *Bitmap, t strata.LogicalType) *DictionaryColumn {
	index := make(map[T]int)
	var dict []T
	for row, v := range values {
		if validity != nil && !validity.Get(row) {
			continue
		}
		if _, ok := index[v]; !ok {
			index[v] = len(dict)
			dict = append(dict, v)
		}
	}
	indices := newIndexBuffer(IndexWidthFor(len(dict)), len(values))
	for row, v := range values {
		if validity != nil && !validity.Get(row) {
			indices.set(row, 0)
			continue
		}
		indices.set(row, index[v])
	}
	return &DictionaryColumn{
		dict:     newPrimitiveColumn(dict, nil, t),
		indices:  indices,
		validity: validity,
	}
}

// sealDictionaryString builds a dictionary column over string values.
func sealDictionaryString(values []string, validity *Bitmap) *DictionaryColumn {
	index := make(map[string]int)
	var dict []string
	for row, v := range values {
		if validity != nil && !validity.Get(row) {
			continue
		}
		if _, ok := index[v]; !ok {
			index[v] = len(dict)
			dict = append(dict, v)
		}
	}
	indices := newIndexBuffer(IndexWidthFor(len(dict)), len(values))
	for row, v := range values {
		if validity != nil && !validity.Get(row) {
			indices.set(row, 0)
			continue
		}
		indices.set(row, index[v])
	}
	return &DictionaryColumn{
		dict:     sealStringColumn(dict, nil),
		indices:  indices,
		validity: validity,
	}
}

// BuildStore is a convenience wrapper: buffer all records and seal.
func BuildStore(schema *strata.Schema, records []strata.Record, logger *zap.Logger) (*Store, error) {
	b, err := NewStoreBuilder(schema, logger)
	if err != nil {
		return nil, err
	}
	if err := b.AppendAll(records); err != nil {
		return nil, err
	}
	return b.Build()
}
