// Package toonnx contains the layout and attribute conversions between the
// host's column-major, first-axis-fastest conventions and ONNX's row-major,
// reversed axis order.
//
// The load-bearing identity: a column-major buffer with host dims
// (d1, ..., dk) is byte-for-byte a row-major buffer with dims (dk, ..., d1).
// So dims lists and per-axis attributes are reversed on export while data
// buffers usually pass through untouched; only recurrent weights (transposed)
// and convolution kernels (spatially flipped) need their buffers rewritten.
package toonnx

import (
	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/nn"
)

// Reverse returns a reversed copy of the slice.
func Reverse[S ~[]E, E any](s S) S {
	out := make(S, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// Dims converts host dims to ONNX dims: reversed axis order, widened to int64.
func Dims(hostDims []int) []int64 {
	out := make([]int64, len(hostDims))
	for i, d := range hostDims {
		out[len(hostDims)-1-i] = int64(d)
	}
	return out
}

// Ints widens a host per-axis attribute list without reordering.
func Ints(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}

// Axis remaps a host axis index (1-based, host order) to the ONNX axis index
// (0-based, reversed order) for a value of the given rank.
func Axis(hostAxis, rank int) int64 {
	if hostAxis < 1 || hostAxis > rank {
		exceptions.Panicf("axis %d out of range for rank %d", hostAxis, rank)
	}
	return int64(rank - hostAxis)
}

// Pads converts host padding to the ONNX pads attribute: all "begin" values
// in reversed axis order followed by all "end" values in reversed axis order.
// The host gives either one symmetric value per spatial axis or a (lo, hi)
// pair per axis. A nil slice means no padding.
func Pads(pads []int, spatialRank int) []int64 {
	if len(pads) == 0 {
		return make([]int64, 2*spatialRank)
	}
	begins := make([]int64, spatialRank)
	ends := make([]int64, spatialRank)
	switch len(pads) {
	case spatialRank:
		for i, p := range pads {
			begins[i] = int64(p)
			ends[i] = int64(p)
		}
	case 2 * spatialRank:
		for i := 0; i < spatialRank; i++ {
			begins[i] = int64(pads[2*i])
			ends[i] = int64(pads[2*i+1])
		}
	default:
		exceptions.Panicf("padding %v has %d entries, want %d (symmetric) or %d (pairs) for %d spatial axes",
			pads, len(pads), spatialRank, 2*spatialRank, spatialRank)
	}
	return append(Reverse(begins), Reverse(ends)...)
}

// PadsPerAxis resolves host padding into (lo, hi) per spatial axis in host
// order, for shape arithmetic.
func PadsPerAxis(pads []int, spatialRank int) [][2]int {
	out := make([][2]int, spatialRank)
	switch len(pads) {
	case 0:
	case spatialRank:
		for i, p := range pads {
			out[i] = [2]int{p, p}
		}
	case 2 * spatialRank:
		for i := 0; i < spatialRank; i++ {
			out[i] = [2]int{pads[2*i], pads[2*i+1]}
		}
	default:
		exceptions.Panicf("padding %v has %d entries, want %d (symmetric) or %d (pairs) for %d spatial axes",
			pads, len(pads), spatialRank, 2*spatialRank, spatialRank)
	}
	return out
}

// RowMajor2D rewrites a column-major (rows, cols) buffer into row-major
// order, i.e. transposes the memory layout while keeping the logical shape.
func RowMajor2D(data []float32, rows, cols int) []float32 {
	if len(data) != rows*cols {
		exceptions.Panicf("RowMajor2D: buffer has %d elements, want %d*%d", len(data), rows, cols)
	}
	out := make([]float32, len(data))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = data[c*rows+r]
		}
	}
	return out
}

// FlipSpatial reverses every contiguous block of blockSize elements. With
// blockSize = prod(spatial dims) this flips a convolution kernel's taps along
// every spatial axis, converting the host's true convolution to ONNX's
// cross-correlation.
func FlipSpatial(data []float32, blockSize int) []float32 {
	if blockSize <= 0 || len(data)%blockSize != 0 {
		exceptions.Panicf("FlipSpatial: buffer of %d elements not divisible into blocks of %d", len(data), blockSize)
	}
	out := make([]float32, len(data))
	for base := 0; base < len(data); base += blockSize {
		for i := 0; i < blockSize; i++ {
			out[base+i] = data[base+blockSize-1-i]
		}
	}
	return out
}

// Tensor builds a float TensorProto, enforcing that the buffer length matches
// the dimensions.
func Tensor(name string, dims []int64, data []float32) *protos.TensorProto {
	size := int64(1)
	for _, d := range dims {
		size *= d
	}
	if int64(len(data)) != size {
		exceptions.Panicf("tensor %q: %d data elements for dims %v (want %d)", name, len(data), dims, size)
	}
	return &protos.TensorProto{
		Name:      name,
		DataType:  int32(protos.TensorProto_FLOAT),
		Dims:      dims,
		FloatData: data,
	}
}

// Int64Tensor builds an int64 TensorProto (shape tensors).
func Int64Tensor(name string, dims []int64, data []int64) *protos.TensorProto {
	size := int64(1)
	for _, d := range dims {
		size *= d
	}
	if int64(len(data)) != size {
		exceptions.Panicf("tensor %q: %d data elements for dims %v (want %d)", name, len(data), dims, size)
	}
	return &protos.TensorProto{
		Name:      name,
		DataType:  int32(protos.TensorProto_INT64),
		Dims:      dims,
		Int64Data: data,
	}
}

// FromHost converts a host tensor: dims reversed, buffer reused as-is (the
// column-major/row-major identity above).
func FromHost(name string, t *nn.Tensor) *protos.TensorProto {
	return Tensor(name, Dims(t.Dims), t.Data)
}
