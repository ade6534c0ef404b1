package internal

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/lychee-technology/strata"
)

// CompressionCodec compresses column buffers for the IPC collaborator
// boundary. Registration is process-wide and idempotent: OpenCodecRegistry
// initializes the codec once and hands back the same handle on every call.
// Callers pass the handle explicitly; there is no ambient singleton beyond
// the once-guarded construction.
type CompressionCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	codecOnce   sync.Once
	codecHandle *CompressionCodec
	codecErr    error
)

// OpenCodecRegistry returns the process-wide compression codec handle,
// initializing it on first use.
func OpenCodecRegistry() (*CompressionCodec, error) {
	codecOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			codecErr = strata.NewCodecError("zstd encoder init", err)
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			codecErr = strata.NewCodecError("zstd decoder init", err)
			return
		}
		codecHandle = &CompressionCodec{enc: enc, dec: dec}
	})
	return codecHandle, codecErr
}

// Compress encodes a buffer. Empty buffers pass through untouched.
func (c *CompressionCodec) Compress(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	return c.enc.EncodeAll(data, nil)
}

// Decompress decodes a buffer produced by Compress.
func (c *CompressionCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, strata.NewCodecError("zstd decode", err)
	}
	return out, nil
}

// ExportColumn copies a column's raw buffers into the exchange format,
// optionally compressed through the given codec. Dictionary columns export
// their decoded primitive rendering: the exchange format carries whole
// columns, not encodings.
func (s *Store) ExportColumn(field string, codec *CompressionCodec) (*strata.ColumnBuffers, error) {
	col := s.ColumnByName(field)
	if col == nil {
		return nil, strata.NewUnknownFieldError(field)
	}
	out := &strata.ColumnBuffers{
		FieldName: field,
		Type:      col.Type(),
		NumRows:   col.Len(),
	}
	if v := col.Validity(); v != nil {
		out.Validity = v.ToBytes()
	}

	switch c := col.(type) {
	case *PrimitiveColumn[int32]:
		out.Values = primitiveToBytes(c.Values())
	case *PrimitiveColumn[float64]:
		out.Values = primitiveToBytes(c.Values())
	case *StringColumn:
		out.Offsets = offsetsToBytes(c.Offsets())
		out.Values = append([]byte(nil), c.Bytes()...)
	case *DictionaryColumn:
		decoded, err := decodeDictionary(c)
		if err != nil {
			return nil, err
		}
		out.Values = decoded.Values
		out.Offsets = decoded.Offsets
	}

	if codec != nil {
		out.Values = codec.Compress(out.Values)
		out.Offsets = codec.Compress(out.Offsets)
		out.Compressed = true
	}
	return out, nil
}

// ImportColumnBuffers rebuilds a sealed column from the exchange format.
// Compressed buffers require the codec handle they were exported with.
func ImportColumnBuffers(buffers *strata.ColumnBuffers, codec *CompressionCodec) (Column, error) {
	values := buffers.Values
	offsets := buffers.Offsets
	if buffers.Compressed {
		if codec == nil {
			return nil, strata.NewCodecError("compressed buffers require a codec handle", nil)
		}
		var err error
		if values, err = codec.Decompress(values); err != nil {
			return nil, err
		}
		if offsets, err = codec.Decompress(offsets); err != nil {
			return nil, err
		}
	}

	var validity *Bitmap
	if len(buffers.Validity) > 0 {
		validity = BitmapFromBytes(buffers.Validity, buffers.NumRows)
	}

	switch buffers.Type {
	case strata.TypeInt32:
		if len(values) != buffers.NumRows*4 {
			return nil, strata.NewBuildFailedError("int32 buffer length disagrees with row count", nil)
		}
		vs := make([]int32, buffers.NumRows)
		for i := range vs {
			vs[i] = int32(binary.LittleEndian.Uint32(values[i*4:]))
		}
		return newPrimitiveColumn(vs, validity, strata.TypeInt32), nil
	case strata.TypeFloat64:
		if len(values) != buffers.NumRows*8 {
			return nil, strata.NewBuildFailedError("float64 buffer length disagrees with row count", nil)
		}
		vs := make([]float64, buffers.NumRows)
		for i := range vs {
			vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(values[i*8:]))
		}
		return newPrimitiveColumn(vs, validity, strata.TypeFloat64), nil
	case strata.TypeString:
		if len(offsets) != (buffers.NumRows+1)*4 {
			return nil, strata.NewBuildFailedError("offsets buffer length disagrees with row count", nil)
		}
		os := make([]int32, buffers.NumRows+1)
		for i := range os {
			os[i] = int32(binary.LittleEndian.Uint32(offsets[i*4:]))
		}
		if int(os[buffers.NumRows]) != len(values) {
			return nil, strata.NewBuildFailedError("final offset disagrees with byte buffer length", nil)
		}
		return newStringColumn(os, values, validity), nil
	}
	return nil, strata.NewUnsupportedTypeError(buffers.FieldName, buffers.Type)
}

// decodeDictionary materializes a dictionary column's primitive rendering.
func decodeDictionary(c *DictionaryColumn) (*strata.ColumnBuffers, error) {
	n := c.Len()
	out := &strata.ColumnBuffers{NumRows: n}
	switch d := c.Dict().(type) {
	case *PrimitiveColumn[int32]:
		values := make([]int32, n)
		for row := 0; row < n; row++ {
			values[row] = d.Values()[c.IndexAt(row)]
		}
		out.Values = primitiveToBytes(values)
	case *PrimitiveColumn[float64]:
		values := make([]float64, n)
		for row := 0; row < n; row++ {
			values[row] = d.Values()[c.IndexAt(row)]
		}
		out.Values = primitiveToBytes(values)
	case *StringColumn:
		values := make([]string, n)
		for row := 0; row < n; row++ {
			if c.Validity() == nil || c.Validity().Get(row) {
				values[row], _ = d.At(c.IndexAt(row))
			}
		}
		col := sealStringColumn(values, c.Validity())
		out.Offsets = offsetsToBytes(col.Offsets())
		out.Values = append([]byte(nil), col.Bytes()...)
	default:
		return nil, strata.NewInternalError("unknown dictionary value column", nil)
	}
	return out, nil
}
