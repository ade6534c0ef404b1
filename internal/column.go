package internal

import (
	"encoding/binary"
	"math"

	"github.com/lychee-technology/strata"
)

// PrimitiveValue constrains the fixed-width value domain of primitive columns.
type PrimitiveValue interface {
	~int32 | ~float64
}

// Column is a sealed, read-only column of a store. All columns of a store
// share the same length.
type Column interface {
	Len() int
	Type() strata.LogicalType
	// Validity returns the validity bitmap, or nil when the column has no
	// nulls.
	Validity() *Bitmap
	// Value returns the row's value boxed as any, with validity.
	Value(row int) (any, bool)
}

// PrimitiveColumn is a contiguous buffer of fixed-width values.
type PrimitiveColumn[T PrimitiveValue] struct {
	values   []T
	validity *Bitmap
	logical  strata.LogicalType
}

func newPrimitiveColumn[T PrimitiveValue](values []T, validity *Bitmap, t strata.LogicalType) *PrimitiveColumn[T] {
	return &PrimitiveColumn[T]{values: values, validity: validity, logical: t}
}

func (c *PrimitiveColumn[T]) Len() int                 { return len(c.values) }
func (c *PrimitiveColumn[T]) Type() strata.LogicalType { return c.logical }
func (c *PrimitiveColumn[T]) Validity() *Bitmap        { return c.validity }

// At returns the value at row with validity.
func (c *PrimitiveColumn[T]) At(row int) (T, bool) {
	if c.validity != nil && !c.validity.Get(row) {
		var zero T
		return zero, false
	}
	return c.values[row], true
}

func (c *PrimitiveColumn[T]) Value(row int) (any, bool) {
	v, ok := c.At(row)
	return v, ok
}

// Values exposes the raw value buffer for kernel use. Kernels must treat it
// as read-only.
func (c *PrimitiveColumn[T]) Values() []T { return c.values }

// StringColumn stores UTF-8 values as an offsets buffer plus a byte buffer.
// offsets has Len()+1 non-decreasing entries and offsets[Len()] equals the
// byte buffer length.
type StringColumn struct {
	offsets  []int32
	bytes    []byte
	validity *Bitmap
}

func newStringColumn(offsets []int32, data []byte, validity *Bitmap) *StringColumn {
	return &StringColumn{offsets: offsets, bytes: data, validity: validity}
}

func (c *StringColumn) Len() int                 { return len(c.offsets) - 1 }
func (c *StringColumn) Type() strata.LogicalType { return strata.TypeString }
func (c *StringColumn) Validity() *Bitmap        { return c.validity }

// At returns the value at row with validity.
func (c *StringColumn) At(row int) (string, bool) {
	if c.validity != nil && !c.validity.Get(row) {
		return "", false
	}
	return string(c.bytes[c.offsets[row]:c.offsets[row+1]]), true
}

func (c *StringColumn) Value(row int) (any, bool) {
	v, ok := c.At(row)
	return v, ok
}

// Offsets exposes the raw offsets buffer for kernel and export use.
func (c *StringColumn) Offsets() []int32 { return c.offsets }

// Bytes exposes the raw byte buffer for kernel and export use.
func (c *StringColumn) Bytes() []byte { return c.bytes }

// IndexWidth is the byte width of a dictionary index buffer, chosen as the
// narrowest width that can address the distinct table.
type IndexWidth int

const (
	IndexWidth8  IndexWidth = 1
	IndexWidth16 IndexWidth = 2
	IndexWidth32 IndexWidth = 4
)

// IndexWidthFor returns the narrowest index width for a distinct count.
func IndexWidthFor(distinct int) IndexWidth {
	switch {
	case distinct <= 256:
		return IndexWidth8
	case distinct <= 65536:
		return IndexWidth16
	default:
		return IndexWidth32
	}
}

// indexBuffer holds dictionary indices at the chosen width. Exactly one of
// the slices is populated.
type indexBuffer struct {
	width IndexWidth
	u8    []uint8
	u16   []uint16
	u32   []uint32
}

func newIndexBuffer(width IndexWidth, length int) *indexBuffer {
	ib := &indexBuffer{width: width}
	switch width {
	case IndexWidth8:
		ib.u8 = make([]uint8, length)
	case IndexWidth16:
		ib.u16 = make([]uint16, length)
	default:
		ib.u32 = make([]uint32, length)
	}
	return ib
}

func (ib *indexBuffer) set(row, index int) {
	switch ib.width {
	case IndexWidth8:
		ib.u8[row] = uint8(index)
	case IndexWidth16:
		ib.u16[row] = uint16(index)
	default:
		ib.u32[row] = uint32(index)
	}
}

func (ib *indexBuffer) get(row int) int {
	switch ib.width {
	case IndexWidth8:
		return int(ib.u8[row])
	case IndexWidth16:
		return int(ib.u16[row])
	default:
		return int(ib.u32[row])
	}
}

func (ib *indexBuffer) len() int {
	switch ib.width {
	case IndexWidth8:
		return len(ib.u8)
	case IndexWidth16:
		return len(ib.u16)
	default:
		return len(ib.u32)
	}
}

func (ib *indexBuffer) toBytes() []byte {
	out := make([]byte, ib.len()*int(ib.width))
	switch ib.width {
	case IndexWidth8:
		copy(out, ib.u8)
	case IndexWidth16:
		for i, v := range ib.u16 {
			binary.LittleEndian.PutUint16(out[i*2:], v)
		}
	default:
		for i, v := range ib.u32 {
			binary.LittleEndian.PutUint32(out[i*4:], v)
		}
	}
	return out
}

// DictionaryColumn represents a low-cardinality column as a distinct-values
// table plus a per-row index buffer. Null rows carry index 0 and a cleared
// validity bit.
type DictionaryColumn struct {
	dict     Column
	indices  *indexBuffer
	validity *Bitmap
}

func (c *DictionaryColumn) Len() int                 { return c.indices.len() }
func (c *DictionaryColumn) Type() strata.LogicalType { return c.dict.Type() }
func (c *DictionaryColumn) Validity() *Bitmap        { return c.validity }

// DictLen returns the size of the distinct-values table.
func (c *DictionaryColumn) DictLen() int { return c.dict.Len() }

// Dict returns the distinct-values table.
func (c *DictionaryColumn) Dict() Column { return c.dict }

// IndexAt returns the dictionary index of a row, ignoring validity.
func (c *DictionaryColumn) IndexAt(row int) int { return c.indices.get(row) }

// Width returns the index buffer width.
func (c *DictionaryColumn) Width() IndexWidth { return c.indices.width }

func (c *DictionaryColumn) Value(row int) (any, bool) {
	if c.validity != nil && !c.validity.Get(row) {
		return nil, false
	}
	return c.dict.Value(c.indices.get(row))
}

// primitiveToBytes serializes a fixed-width value buffer little-endian.
func primitiveToBytes[T PrimitiveValue](values []T) []byte {
	switch vs := any(values).(type) {
	case []int32:
		out := make([]byte, len(vs)*4)
		for i, v := range vs {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
		return out
	case []float64:
		out := make([]byte, len(vs)*8)
		for i, v := range vs {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
		return out
	}
	return nil
}

// offsetsToBytes serializes a string offsets buffer little-endian.
func offsetsToBytes(offsets []int32) []byte {
	out := make([]byte, len(offsets)*4)
	for i, v := range offsets {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}
