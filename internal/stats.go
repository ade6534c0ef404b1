package internal

import (
	"github.com/lychee-technology/strata"
)

// Encoding recommendation thresholds. These are contracts pinned by tests,
// not tuning knobs.
const (
	dictionaryMinRows      = 100
	dictionaryMinThreshold = 16
	dictionaryRatioDivisor = 10
)

// RecommendEncoding decides between primitive and dictionary encoding from
// the observed cardinality: dictionary iff
// distinct <= max(16, total/10) and total >= 100.
func RecommendEncoding(distinct, total int) strata.Encoding {
	if total < dictionaryMinRows {
		return strata.EncodingPrimitive
	}
	threshold := total / dictionaryRatioDivisor
	if threshold < dictionaryMinThreshold {
		threshold = dictionaryMinThreshold
	}
	if distinct <= threshold {
		return strata.EncodingDictionary
	}
	return strata.EncodingPrimitive
}

// primitiveBytesFixed is the size of a primitive rendering of a fixed-width
// column.
func primitiveBytesFixed(total, width int) int64 {
	return int64(total) * int64(width)
}

// primitiveBytesString is the size of a string-primitive rendering: the byte
// buffer plus total+1 32-bit offsets.
func primitiveBytesString(total int, dataBytes int64) int64 {
	return dataBytes + int64(total+1)*4
}

// dictBytesFixed is the size of a dictionary rendering of a fixed-width
// column: the distinct table plus one index per row.
func dictBytesFixed(distinct, total, width int) int64 {
	return int64(distinct)*int64(width) + int64(total)*int64(IndexWidthFor(distinct))
}

// dictBytesString is the size of a dictionary rendering of a string column:
// the distinct values as a string-primitive plus one index per row.
func dictBytesString(distinct, total int, distinctDataBytes int64) int64 {
	return primitiveBytesString(distinct, distinctDataBytes) +
		int64(total)*int64(IndexWidthFor(distinct))
}

// EstimateSavingsFixed returns the estimated bytes saved by dictionary
// encoding a fixed-width column.
func EstimateSavingsFixed(distinct, total, width int) int64 {
	return primitiveBytesFixed(total, width) - dictBytesFixed(distinct, total, width)
}

// EstimateSavingsString returns the estimated bytes saved by dictionary
// encoding a string column. dataBytes is the total byte length of all
// non-null values, distinctDataBytes the byte length of the distinct set.
func EstimateSavingsString(distinct, total int, dataBytes, distinctDataBytes int64) int64 {
	return primitiveBytesString(total, dataBytes) - dictBytesString(distinct, total, distinctDataBytes)
}
