package internal

import (
	"fmt"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func employeeSchema() *strata.Schema {
	return strata.NewSchema(
		strata.Field{Name: "Name", Type: strata.TypeString, Nullable: true},
		strata.Field{Name: "Age", Type: strata.TypeInt32},
		strata.Field{Name: "Score", Type: strata.TypeFloat64, Nullable: true},
	)
}

// TestBuildLowCardinalityStrings builds 10000 rows whose Name cycles through
// three values and expects dictionary encoding plus round-trip equality.
func TestBuildLowCardinalityStrings(t *testing.T) {
	names := []string{"A", "B", "C"}
	records := make([]strata.Record, 10000)
	for i := range records {
		records[i] = strata.Record{names[i%3], int32(i), float64(i) / 2}
	}

	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	cs := store.Statistics().ColumnByName("Name")
	require.NotNil(t, cs)
	assert.Equal(t, 3, cs.DistinctCount)
	assert.Equal(t, 10000, cs.TotalCount)
	assert.Equal(t, strata.EncodingDictionary, cs.RecommendedEncoding)
	assert.Positive(t, cs.EstimatedBytesSaved)

	dict, ok := store.ColumnByName("Name").(*DictionaryColumn)
	require.True(t, ok, "Name should seal as a dictionary column")
	assert.Equal(t, 3, dict.DictLen())
	assert.Equal(t, IndexWidth8, dict.Width())

	assert.Equal(t, records, store.ToRecords())
}

// TestBuildHighCardinalityStrings builds 1000 unique strings and expects the
// primitive encoding.
func TestBuildHighCardinalityStrings(t *testing.T) {
	records := make([]strata.Record, 1000)
	for i := range records {
		records[i] = strata.Record{fmt.Sprintf("UniqueValue_%d", i), int32(i), float64(i)}
	}

	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	cs := store.Statistics().ColumnByName("Name")
	require.NotNil(t, cs)
	assert.Equal(t, 1000, cs.DistinctCount)
	assert.Equal(t, strata.EncodingPrimitive, cs.RecommendedEncoding)

	_, ok := store.ColumnByName("Name").(*StringColumn)
	assert.True(t, ok, "Name should seal as a string-primitive column")

	v, valid := store.StringAt(store.ColumnIndex("Name"), 500)
	assert.True(t, valid)
	assert.Equal(t, "UniqueValue_500", v)
}

// TestDictionaryFirstOccurrenceOrder pins the deterministic insertion order
// of distinct tables.
func TestDictionaryFirstOccurrenceOrder(t *testing.T) {
	records := make([]strata.Record, 300)
	order := []string{"zeta", "alpha", "mid"}
	for i := range records {
		records[i] = strata.Record{order[i%3], int32(0), 0.0}
	}
	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	dict := store.ColumnByName("Name").(*DictionaryColumn)
	table := dict.Dict().(*StringColumn)
	for i, want := range order {
		got, _ := table.At(i)
		assert.Equal(t, want, got)
	}
}

// TestDictionaryCorrectness checks distinct[indices[i]] == original[i] for
// every row.
func TestDictionaryCorrectness(t *testing.T) {
	records := make([]strata.Record, 2000)
	for i := range records {
		records[i] = strata.Record{fmt.Sprintf("v%d", i%17), int32(i % 11), float64(i % 5)}
	}
	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	for _, name := range []string{"Name", "Age", "Score"} {
		col := store.ColumnByName(name)
		dict, ok := col.(*DictionaryColumn)
		require.True(t, ok, "column %s should be dictionary encoded", name)
		for row := 0; row < 2000; row++ {
			fromDict, _ := dict.Dict().Value(dict.IndexAt(row))
			direct, _ := col.Value(row)
			assert.Equal(t, direct, fromDict)
		}
	}
}

func TestBuildNullHandling(t *testing.T) {
	records := []strata.Record{
		{"Alice", int32(30), 95.5},
		{"Bob", int32(25), nil},
		{nil, int32(40), 87.0},
	}
	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, store.NumRows())
	assert.Equal(t, records, store.ToRecords())

	nameCol := store.ColumnIndex("Name")
	scoreCol := store.ColumnIndex("Score")
	assert.True(t, store.IsValid(nameCol, 0))
	assert.False(t, store.IsValid(nameCol, 2))
	assert.False(t, store.IsValid(scoreCol, 1))

	cs := store.Statistics().ColumnByName("Score")
	assert.Equal(t, 1, cs.NullCount)
	assert.Equal(t, 2, cs.DistinctCount)
}

// TestBuildNoNullsOmitsValidity pins "absent bitmap means no nulls".
func TestBuildNoNullsOmitsValidity(t *testing.T) {
	records := []strata.Record{
		{"a", int32(1), 1.0},
		{"b", int32(2), 2.0},
	}
	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)
	for i := 0; i < store.Schema().Len(); i++ {
		assert.Nil(t, store.Column(i).Validity())
	}
}

func TestStringOffsetsInvariant(t *testing.T) {
	records := []strata.Record{
		{"hello", int32(1), 1.0},
		{nil, int32(2), 2.0},
		{"world!", int32(3), 3.0},
	}
	store, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	col := store.ColumnByName("Name").(*StringColumn)
	offsets := col.Offsets()
	require.Len(t, offsets, 4)
	for i := 1; i < len(offsets); i++ {
		assert.LessOrEqual(t, offsets[i-1], offsets[i])
	}
	assert.Equal(t, int32(len(col.Bytes())), offsets[len(offsets)-1])
	// the null row occupies zero bytes
	assert.Equal(t, offsets[1], offsets[2])
}

func TestBuildErrors(t *testing.T) {
	schema := employeeSchema()

	t.Run("wrong arity", func(t *testing.T) {
		_, err := BuildStore(schema, []strata.Record{{"a", int32(1)}}, nil)
		require.Error(t, err)
		assert.True(t, strata.IsValidationError(err))
	})

	t.Run("wrong value type", func(t *testing.T) {
		_, err := BuildStore(schema, []strata.Record{{"a", "not an int", 1.0}}, nil)
		require.Error(t, err)
		assert.True(t, strata.IsValidationError(err))
	})

	t.Run("null in non-nullable field", func(t *testing.T) {
		_, err := BuildStore(schema, []strata.Record{{"a", nil, 1.0}}, nil)
		require.Error(t, err)
	})

	t.Run("unsupported field type", func(t *testing.T) {
		bad := strata.NewSchema(strata.Field{Name: "x", Type: "bool"})
		_, err := NewStoreBuilder(bad, nil)
		require.Error(t, err)
	})

	t.Run("empty schema", func(t *testing.T) {
		_, err := NewStoreBuilder(strata.NewSchema(), nil)
		require.Error(t, err)
		assert.True(t, strata.IsBuildError(err))
	})
}

// TestBuildDeterminism builds the same input twice and compares statistics
// and round-trip output.
func TestBuildDeterminism(t *testing.T) {
	records := make([]strata.Record, 500)
	for i := range records {
		records[i] = strata.Record{fmt.Sprintf("g%d", i%7), int32(i % 13), float64(i % 3)}
	}
	a, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)
	b, err := BuildStore(employeeSchema(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Statistics(), b.Statistics())
	assert.Equal(t, a.ToRecords(), b.ToRecords())
}

func TestStoreRecordOutOfRange(t *testing.T) {
	store, err := BuildStore(employeeSchema(), []strata.Record{{"a", int32(1), 1.0}}, nil)
	require.NoError(t, err)
	_, err = store.Record(5)
	require.Error(t, err)
	se, ok := err.(*strata.StrataError)
	require.True(t, ok)
	assert.Equal(t, strata.ErrCodeIndexOutOfRange, se.Code)
}
