package internal

import (
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
)

// TestRecommendEncoding pins the contract thresholds: dictionary iff
// distinct <= max(16, total/10) and total >= 100.
func TestRecommendEncoding(t *testing.T) {
	tests := []struct {
		name     string
		distinct int
		total    int
		want     strata.Encoding
	}{
		{"too few rows", 2, 99, strata.EncodingPrimitive},
		{"minimum rows low cardinality", 10, 100, strata.EncodingDictionary},
		{"floor threshold applies", 16, 100, strata.EncodingDictionary},
		{"just above floor", 17, 100, strata.EncodingPrimitive},
		{"ratio threshold", 100, 1000, strata.EncodingDictionary},
		{"above ratio", 101, 1000, strata.EncodingPrimitive},
		{"high cardinality", 1000, 1000, strata.EncodingPrimitive},
		{"large low cardinality", 3, 10000, strata.EncodingDictionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendEncoding(tt.distinct, tt.total))
		})
	}
}

// TestIndexWidthFor pins the 8/16/32-bit width ladder.
func TestIndexWidthFor(t *testing.T) {
	assert.Equal(t, IndexWidth8, IndexWidthFor(1))
	assert.Equal(t, IndexWidth8, IndexWidthFor(256))
	assert.Equal(t, IndexWidth16, IndexWidthFor(257))
	assert.Equal(t, IndexWidth16, IndexWidthFor(65536))
	assert.Equal(t, IndexWidth32, IndexWidthFor(65537))
}

func TestEstimateSavingsFixed(t *testing.T) {
	// 10000 int32 rows, 3 distinct: 40000 - (12 + 10000) = 29988
	assert.Equal(t, int64(29988), EstimateSavingsFixed(3, 10000, 4))
	// dictionary larger than primitive: negative savings
	assert.Negative(t, EstimateSavingsFixed(250, 300, 4))
}

func TestEstimateSavingsString(t *testing.T) {
	// 1000 rows of 10-byte strings, 3 distinct of 10 bytes each:
	// primitive = 10000 + 1001*4 = 14004
	// dict      = 30 + 4*4 + 1000*1 = 1046
	assert.Equal(t, int64(14004-1046), EstimateSavingsString(3, 1000, 10000, 30))
}

func TestEstimateMemorySavingsSkipsNegativeFixed(t *testing.T) {
	stats := &strata.BuildStatistics{Columns: []strata.ColumnStatistics{
		{FieldName: "a", RecommendedEncoding: strata.EncodingDictionary, EstimatedBytesSaved: 100},
		{FieldName: "b", RecommendedEncoding: strata.EncodingDictionary, EstimatedBytesSaved: -40},
		{FieldName: "c", RecommendedEncoding: strata.EncodingPrimitive, EstimatedBytesSaved: 999},
	}}
	assert.Equal(t, int64(100), stats.EstimateMemorySavings())
}
