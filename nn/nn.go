// Package nn defines the host-side layer parameter bundles the exporter
// translates. The exporter only reads them; there is no forward pass here.
//
// Host conventions, which the exporter converts away from:
//   - Tensor buffers are column-major (first axis varies fastest) and Dims
//     are given in host axis order.
//   - Spatial data is laid out (width, height, ..., channels, batch).
//   - Sequence data is laid out (features, batch, seq).
//   - Axes are numbered starting at 1 in the host order.
package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"
)

// Tensor is a column-major constant tensor with dims in host axis order.
type Tensor struct {
	Dims []int
	Data []float32
}

// NewTensor wraps data as a tensor. The buffer length must match the product
// of dims.
func NewTensor(data []float32, dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("nn.NewTensor: invalid dimension %d in %v", d, dims))
		}
		size *= d
	}
	if len(data) != size {
		panic(fmt.Sprintf("nn.NewTensor: data has %d elements, dims %v require %d", len(data), dims, size))
	}
	return &Tensor{Dims: dims, Data: data}
}

// Zeros returns a zero-filled tensor.
func Zeros(dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		size *= d
	}
	return NewTensor(make([]float32, size), dims...)
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, d := range t.Dims {
		size *= d
	}
	return size
}

// glorot fills a tensor with Glorot-uniform values for the given fan-in and
// fan-out.
func glorot(fanIn, fanOut int, dims ...int) *Tensor {
	t := Zeros(dims...)
	limit := math32.Sqrt(6 / float32(fanIn+fanOut))
	for i := range t.Data {
		t.Data[i] = (2*rand.Float32() - 1) * limit
	}
	return t
}

// Activation identifies one of the host's activation functions.
type Activation int

const (
	None Activation = iota
	ReLU
	Sigmoid
	Tanh
	LeakyReLU
	ELU
	Softmax
)

// String implements fmt.Stringer.
func (a Activation) String() string {
	switch a {
	case None:
		return "none"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	case Tanh:
		return "tanh"
	case LeakyReLU:
		return "leakyrelu"
	case ELU:
		return "elu"
	case Softmax:
		return "softmax"
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// Reshape markers: dimensions in a Reshape spec may be positive literals,
// InferDim (derive this axis from the element count) or KeepDim (copy the
// corresponding input axis).
const (
	InferDim = -1
	KeepDim  = -2
)

// Dense is a fully-connected layer. W is (in, out), B is (out).
type Dense struct {
	W   *Tensor
	B   *Tensor
	Act Activation
}

// NewDense builds a dense layer with Glorot-initialized weights.
func NewDense(in, out int, act Activation) *Dense {
	return &Dense{
		W:   glorot(in, out, in, out),
		B:   Zeros(out),
		Act: act,
	}
}

// Conv is an N-dimensional convolution (a true convolution, not a
// cross-correlation). W is (k1, ..., kN, cIn/groups, cOut), B is (cOut) and
// may be nil. Stride, Dilation and Pad are per spatial axis in host order;
// Pad holds either one symmetric value per axis or (lo, hi) pairs per axis.
type Conv struct {
	W        *Tensor
	B        *Tensor
	Stride   []int
	Dilation []int
	Pad      []int
	Groups   int
	Act      Activation
}

// NewConv2D builds a 2-D convolution with a (kw, kh) kernel, unit stride and
// dilation and no padding.
func NewConv2D(kw, kh, cin, cout int, act Activation) *Conv {
	fan := kw * kh
	return &Conv{
		W:      glorot(fan*cin, fan*cout, kw, kh, cin, cout),
		B:      Zeros(cout),
		Stride: []int{1, 1},
		Act:    act,
	}
}

// MaxPool is a max pooling window. Fields are per spatial axis in host order;
// Pad follows the same one-or-pairs convention as Conv.
type MaxPool struct {
	Window []int
	Stride []int
	Pad    []int
}

// MeanPool is an average pooling window with the same conventions as MaxPool.
type MeanPool struct {
	Window []int
	Stride []int
	Pad    []int
}

// GlobalMaxPool reduces all spatial axes to 1 by max.
type GlobalMaxPool struct{}

// GlobalMeanPool reduces all spatial axes to 1 by mean.
type GlobalMeanPool struct{}

// BatchNorm normalizes over the channel axis (second-to-last host axis).
// All four parameter tensors have length C.
type BatchNorm struct {
	Scale    *Tensor
	Bias     *Tensor
	Mean     *Tensor
	Variance *Tensor
	Epsilon  float32
	Momentum float32
	Act      Activation
}

// NewBatchNorm builds a batch normalization layer with identity parameters.
func NewBatchNorm(c int, act Activation) *BatchNorm {
	scale := Zeros(c)
	variance := Zeros(c)
	for i := 0; i < c; i++ {
		scale.Data[i] = 1
		variance.Data[i] = 1
	}
	return &BatchNorm{
		Scale:    scale,
		Bias:     Zeros(c),
		Mean:     Zeros(c),
		Variance: variance,
		Epsilon:  1e-5,
		Momentum: 0.9,
		Act:      act,
	}
}

// Dropout drops activations with probability Ratio during host training.
type Dropout struct {
	Ratio float32
}

// RNNCell is a single-direction vanilla recurrent cell. Wi is
// (hidden, input), Wh is (hidden, hidden) and B is (hidden).
//
// B is the combined bias: the host does not model a separate recurrent bias,
// so the exporter zero-fills the recurrent half of the ONNX bias. Revisit if
// a split bias is ever introduced here.
type RNNCell struct {
	Wi  *Tensor
	Wh  *Tensor
	B   *Tensor
	Act Activation
}

// NewRNNCell builds a tanh recurrent cell.
func NewRNNCell(in, hidden int) *RNNCell {
	return &RNNCell{
		Wi:  glorot(in, hidden, hidden, in),
		Wh:  glorot(hidden, hidden, hidden, hidden),
		B:   Zeros(hidden),
		Act: Tanh,
	}
}

// LSTMCell is a single-direction LSTM cell. Gate blocks are stored stacked in
// i, o, f, c order (rows of Wi/Wh, entries of B): Wi is (4*hidden, input),
// Wh is (4*hidden, hidden), B is (4*hidden). The same combined-bias note as
// RNNCell.B applies.
type LSTMCell struct {
	Wi *Tensor
	Wh *Tensor
	B  *Tensor
	// GateAct applies to the input/output/forget gates, CellAct to the cell
	// candidate, OutAct to the hidden state.
	GateAct Activation
	CellAct Activation
	OutAct  Activation
}

// NewLSTMCell builds a standard sigmoid/tanh LSTM cell.
func NewLSTMCell(in, hidden int) *LSTMCell {
	return &LSTMCell{
		Wi:      glorot(in, hidden, 4*hidden, in),
		Wh:      glorot(hidden, hidden, 4*hidden, hidden),
		B:       Zeros(4 * hidden),
		GateAct: Sigmoid,
		CellAct: Tanh,
		OutAct:  Tanh,
	}
}

// Reshape reinterprets its input with a new shape in host axis order. Entries
// are positive literals, InferDim or KeepDim.
type Reshape struct {
	Shape []int
}

// Chain applies its layers in sequence.
type Chain []any
