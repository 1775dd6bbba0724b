package onnx

import (
	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/internal/toonnx"
	"github.com/tensorkit/onnx-export/nn"
)

// Recurrent cells. The target stores weights as [directions, H*, input] in
// row-major order, so the host's column-major (H*, input) buffers are
// transposed and given a leading directions axis of 1 (bidirectional cells
// are not modeled). The target splits the bias into input and recurrent
// halves and sums them internally; the host carries a single bias, so the
// recurrent half is zero-filled -- the exact identity for the sum.
//
// The cell's output grows a directions axis (trailing-but-one in host order)
// which is squeezed away immediately under a scoped name: the
// single-direction case should look to downstream operators as if the axis
// never existed.

// applyRNN translates a vanilla recurrent cell.
func applyRNN(l *nn.RNNCell, x *Probe) *Probe {
	if len(l.Wi.Dims) != 2 {
		exceptions.Panicf("RNNCell input weight must be (hidden, input), got %v", l.Wi.Dims)
	}
	hidden, in := l.Wi.Dims[0], l.Wi.Dims[1]
	if len(l.Wh.Dims) != 2 || l.Wh.Dims[0] != hidden || l.Wh.Dims[1] != hidden {
		exceptions.Panicf("RNNCell recurrent weight must be (hidden, hidden)=(%d, %d), got %v", hidden, hidden, l.Wh.Dims)
	}
	if len(l.B.Dims) != 1 || l.B.Dims[0] != hidden {
		exceptions.Panicf("RNNCell bias must be (hidden)=(%d), got %v", hidden, l.B.Dims)
	}
	checkSequenceInput("RNNCell", x, in)

	name := x.nextName("rnn")
	b := x.graph
	b.addInitializer(toonnx.Tensor(name+"_W", []int64{1, int64(hidden), int64(in)},
		toonnx.RowMajor2D(l.Wi.Data, hidden, in)))
	b.addInitializer(toonnx.Tensor(name+"_R", []int64{1, int64(hidden), int64(hidden)},
		toonnx.RowMajor2D(l.Wh.Data, hidden, hidden)))
	b.addInitializer(toonnx.Tensor(name+"_B", []int64{1, int64(2 * hidden)}, zeroPadBias(l.B.Data)))

	b.addNode(&protos.NodeProto{
		Name:   name,
		OpType: "RNN",
		Input:  []string{x.name, name + "_W", name + "_R", name + "_B"},
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrInt("hidden_size", int64(hidden)),
			attrStrings("activations", []string{rnnActivationName(l.Act)}),
		},
	}, recurrentOutputShape(x.shape, hidden))
	return squeezeDirections(x, name, hidden)
}

// applyLSTM translates an LSTM cell. Gate blocks are stacked in the target's
// i, o, f, c order (see nn.LSTMCell), so the whole (4H, input) block
// transposes as one unit.
func applyLSTM(l *nn.LSTMCell, x *Probe) *Probe {
	if len(l.Wi.Dims) != 2 || l.Wi.Dims[0]%4 != 0 {
		exceptions.Panicf("LSTMCell input weight must be (4*hidden, input), got %v", l.Wi.Dims)
	}
	hidden, in := l.Wi.Dims[0]/4, l.Wi.Dims[1]
	if len(l.Wh.Dims) != 2 || l.Wh.Dims[0] != 4*hidden || l.Wh.Dims[1] != hidden {
		exceptions.Panicf("LSTMCell recurrent weight must be (4*hidden, hidden)=(%d, %d), got %v", 4*hidden, hidden, l.Wh.Dims)
	}
	if len(l.B.Dims) != 1 || l.B.Dims[0] != 4*hidden {
		exceptions.Panicf("LSTMCell bias must be (4*hidden)=(%d), got %v", 4*hidden, l.B.Dims)
	}
	checkSequenceInput("LSTMCell", x, in)

	name := x.nextName("lstm")
	b := x.graph
	b.addInitializer(toonnx.Tensor(name+"_W", []int64{1, int64(4 * hidden), int64(in)},
		toonnx.RowMajor2D(l.Wi.Data, 4*hidden, in)))
	b.addInitializer(toonnx.Tensor(name+"_R", []int64{1, int64(4 * hidden), int64(hidden)},
		toonnx.RowMajor2D(l.Wh.Data, 4*hidden, hidden)))
	b.addInitializer(toonnx.Tensor(name+"_B", []int64{1, int64(8 * hidden)}, zeroPadBias(l.B.Data)))

	b.addNode(&protos.NodeProto{
		Name:   name,
		OpType: "LSTM",
		Input:  []string{x.name, name + "_W", name + "_R", name + "_B"},
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrInt("hidden_size", int64(hidden)),
			attrStrings("activations", []string{
				rnnActivationName(l.GateAct),
				rnnActivationName(l.CellAct),
				rnnActivationName(l.OutAct),
			}),
		},
	}, recurrentOutputShape(x.shape, hidden))
	return squeezeDirections(x, name, hidden)
}

// checkSequenceInput validates a recurrent input: host layout
// (features, batch, seq).
func checkSequenceInput(kind string, x *Probe, in int) {
	if x.shape == nil {
		return
	}
	if x.shape.Rank() != 3 {
		exceptions.Panicf("%s input must be rank 3 (features, batch, seq), got %s", kind, x.shape)
	}
	if x.shape[0] != DimUnknown && x.shape[0] != in {
		exceptions.Panicf("%s expects %d input features, input %q has %d", kind, in, x.name, x.shape[0])
	}
}

// recurrentOutputShape is the host-order shape of the cell's full sequence
// output: (hidden, batch, directions=1, seq). The rank is known even when the
// input shape is not.
func recurrentOutputShape(in Shape, hidden int) Shape {
	batch, seq := DimUnknown, DimUnknown
	if in.Rank() == 3 {
		batch, seq = in[1], in[2]
	}
	return Shape{hidden, batch, 1, seq}
}

// squeezeDirections removes the directions axis from the cell's output under
// a naming scope derived from the cell node, restoring the outer strategy.
func squeezeDirections(x *Probe, cellName string, hidden int) *Probe {
	cellOut := x.derived(cellName, recurrentOutputShape(x.shape, hidden))
	scoped := cellOut.WithNaming(scopedTo(cellName))
	squeezed := Squeeze(scoped, 3)
	return squeezed.WithNaming(x.nextName)
}

// zeroPadBias concatenates the host bias with an equal-sized zero block.
func zeroPadBias(bias []float32) []float32 {
	out := make([]float32, 2*len(bias))
	copy(out, bias)
	return out
}
