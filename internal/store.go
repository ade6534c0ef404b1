package internal

import (
	"github.com/lychee-technology/strata"
)

// Store is a sealed columnar dataset. It is immutable after build: query
// operators borrow it read-only and may execute concurrently without
// locking.
type Store struct {
	schema     *strata.Schema
	numRows    int
	columns    []Column
	fieldIndex map[string]int
	stats      *strata.BuildStatistics
}

// Schema returns the record schema the store was built from.
func (s *Store) Schema() *strata.Schema { return s.schema }

// NumRows returns the row count.
func (s *Store) NumRows() int { return s.numRows }

// Statistics returns the build-time statistics.
func (s *Store) Statistics() *strata.BuildStatistics { return s.stats }

// ColumnIndex returns the position of the named field, or -1.
func (s *Store) ColumnIndex(name string) int {
	if i, ok := s.fieldIndex[name]; ok {
		return i
	}
	return -1
}

// Column returns the whole-column read view at position col.
func (s *Store) Column(col int) Column { return s.columns[col] }

// ColumnByName returns the whole-column read view for the named field, or nil.
func (s *Store) ColumnByName(name string) Column {
	i := s.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	return s.columns[i]
}

// Int32At returns the int32 value at (col, row) with validity.
func (s *Store) Int32At(col, row int) (int32, bool) {
	switch c := s.columns[col].(type) {
	case *PrimitiveColumn[int32]:
		return c.At(row)
	case *DictionaryColumn:
		if c.validity != nil && !c.validity.Get(row) {
			return 0, false
		}
		if d, ok := c.dict.(*PrimitiveColumn[int32]); ok {
			return d.values[c.indices.get(row)], true
		}
	}
	return 0, false
}

// Float64At returns the float64 value at (col, row) with validity.
func (s *Store) Float64At(col, row int) (float64, bool) {
	switch c := s.columns[col].(type) {
	case *PrimitiveColumn[float64]:
		return c.At(row)
	case *DictionaryColumn:
		if c.validity != nil && !c.validity.Get(row) {
			return 0, false
		}
		if d, ok := c.dict.(*PrimitiveColumn[float64]); ok {
			return d.values[c.indices.get(row)], true
		}
	}
	return 0, false
}

// StringAt returns the string value at (col, row) with validity.
func (s *Store) StringAt(col, row int) (string, bool) {
	switch c := s.columns[col].(type) {
	case *StringColumn:
		return c.At(row)
	case *DictionaryColumn:
		if c.validity != nil && !c.validity.Get(row) {
			return "", false
		}
		if d, ok := c.dict.(*StringColumn); ok {
			v, _ := d.At(c.indices.get(row))
			return v, true
		}
	}
	return "", false
}

// IsValid reports whether the value at (col, row) is non-null.
func (s *Store) IsValid(col, row int) bool {
	v := s.columns[col].Validity()
	return v == nil || v.Get(row)
}

// CheckRow validates a row index against the store length.
func (s *Store) CheckRow(row int) error {
	if row < 0 || row >= s.numRows {
		return strata.NewIndexOutOfRangeError(row, s.numRows)
	}
	return nil
}

// Record materializes one row in schema field order. Null values are nil.
func (s *Store) Record(row int) (strata.Record, error) {
	if err := s.CheckRow(row); err != nil {
		return nil, err
	}
	rec := make(strata.Record, len(s.columns))
	for i, c := range s.columns {
		v, ok := c.Value(row)
		if !ok {
			rec[i] = nil
			continue
		}
		rec[i] = v
	}
	return rec, nil
}

// ToRecords materializes every row. The output is element-wise equal to the
// build input.
func (s *Store) ToRecords() []strata.Record {
	out := make([]strata.Record, s.numRows)
	for row := 0; row < s.numRows; row++ {
		rec, _ := s.Record(row)
		out[row] = rec
	}
	return out
}
