package factory

import (
	"context"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *strata.Schema {
	return strata.NewSchema(
		strata.Field{Name: "Name", Type: strata.TypeString},
		strata.Field{Name: "Age", Type: strata.TypeInt32},
	)
}

func TestNewEngineWithConfig(t *testing.T) {
	records := []strata.Record{
		{"alice", int32(30)},
		{"bob", int32(17)},
		{"carol", int32(45)},
	}
	config := strata.DefaultConfig()
	config.Logging.EnableStructured = false

	engine, err := NewEngineWithConfig(config, testSchema(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, engine.NumRows())
	assert.Equal(t, records, engine.ToRecords())

	result, err := engine.Execute(context.Background(), &strata.Query{
		Predicates: []strata.Predicate{
			strata.NewComparison("Age", strata.OpGreaterEq, int32(18)),
		},
	}, config.QueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
}

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine(testSchema(), []strata.Record{{"a", int32(1)}})
	require.NoError(t, err)
	require.NotNil(t, engine.Statistics())
	assert.Len(t, engine.Statistics().Columns, 2)
}

func TestNewEngineBuildFailure(t *testing.T) {
	_, err := NewEngine(testSchema(), []strata.Record{{"a"}})
	require.Error(t, err)
}

func TestEngineExportColumn(t *testing.T) {
	engine, err := NewEngine(testSchema(), []strata.Record{{"abc", int32(7)}})
	require.NoError(t, err)

	buffers, err := engine.ExportColumn("Name", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), buffers.Values)
	assert.False(t, buffers.Compressed)

	compressed, err := engine.ExportColumn("Name", true)
	require.NoError(t, err)
	assert.True(t, compressed.Compressed)
}
