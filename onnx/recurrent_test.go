package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorkit/onnx-export/nn"
)

func TestExportRNNCell(t *testing.T) {
	cell := nn.NewRNNCell(4, 8)
	model, err := Export("rnn",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(4, DimUnknown, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.Len(t, g.Node, 2)
	rnn := g.Node[0]
	assert.Equal(t, "RNN", rnn.OpType)
	assert.Equal(t, []string{"data_0", "rnn_0_W", "rnn_0_R", "rnn_0_B"}, rnn.Input)

	inits := make(map[string][]int64, 3)
	for _, init := range g.Initializer {
		inits[init.Name] = init.Dims
	}
	assert.Equal(t, []int64{1, 8, 4}, inits["rnn_0_W"])
	assert.Equal(t, []int64{1, 8, 8}, inits["rnn_0_R"])
	assert.Equal(t, []int64{1, 16}, inits["rnn_0_B"])

	var sawHidden, sawActivations bool
	for _, a := range rnn.Attribute {
		switch a.Name {
		case "hidden_size":
			sawHidden = true
			assert.EqualValues(t, 8, a.I)
		case "activations":
			sawActivations = true
			require.Len(t, a.Strings, 1)
			assert.Equal(t, "Tanh", string(a.Strings[0]))
		}
	}
	assert.True(t, sawHidden)
	assert.True(t, sawActivations)

	// The directions axis is squeezed right away under the cell's scope.
	squeeze := g.Node[1]
	assert.Equal(t, "Squeeze", squeeze.OpType)
	assert.Equal(t, "rnn_0_squeeze", squeeze.Name)
	assert.Equal(t, []int64{1}, squeeze.Attribute[0].Ints)

	// Final output in host order: (hidden, batch, seq).
	dims := g.Output[0].Type.TensorType.Shape.Dim
	require.Len(t, dims, 3)
	assert.NotEmpty(t, dims[0].DimParam)
	assert.NotEmpty(t, dims[1].DimParam)
	assert.EqualValues(t, 8, dims[2].DimValue)
}

// The cell bias is the combined input+recurrent bias: the host half leads,
// the recurrent half is zero.
func TestRNNBiasZeroPadded(t *testing.T) {
	cell := nn.NewRNNCell(3, 2)
	cell.B = nn.NewTensor([]float32{0.5, -0.5}, 2)
	model, err := Export("rnn",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(3, DimUnknown, DimUnknown)),
	)
	require.NoError(t, err)

	for _, init := range model.Proto.Graph.Initializer {
		if init.Name == "rnn_0_B" {
			assert.Equal(t, []float32{0.5, -0.5, 0, 0}, init.FloatData)
			return
		}
	}
	t.Fatal("bias initializer not found")
}

// Recurrent weights are the one case where the buffer itself is rewritten:
// column-major (rows, cols) becomes row-major.
func TestRNNWeightTransposed(t *testing.T) {
	cell := &nn.RNNCell{
		// Column-major (2, 3): logical [[1, 3, 5], [2, 4, 6]].
		Wi:  nn.NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		Wh:  nn.Zeros(2, 2),
		B:   nn.Zeros(2),
		Act: nn.Tanh,
	}
	model, err := Export("rnn",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(3, DimUnknown, DimUnknown)),
	)
	require.NoError(t, err)

	for _, init := range model.Proto.Graph.Initializer {
		if init.Name == "rnn_0_W" {
			assert.Equal(t, []int64{1, 2, 3}, init.Dims)
			assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, init.FloatData)
			return
		}
	}
	t.Fatal("weight initializer not found")
}

func TestExportLSTMCell(t *testing.T) {
	cell := nn.NewLSTMCell(4, 8)
	model, err := Export("lstm",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(4, DimUnknown, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.Len(t, g.Node, 2)
	lstm := g.Node[0]
	assert.Equal(t, "LSTM", lstm.OpType)

	inits := make(map[string][]int64, 3)
	for _, init := range g.Initializer {
		inits[init.Name] = init.Dims
	}
	assert.Equal(t, []int64{1, 32, 4}, inits["lstm_0_W"])
	assert.Equal(t, []int64{1, 32, 8}, inits["lstm_0_R"])
	assert.Equal(t, []int64{1, 64}, inits["lstm_0_B"])

	for _, a := range lstm.Attribute {
		if a.Name == "activations" {
			require.Len(t, a.Strings, 3)
			assert.Equal(t, "Sigmoid", string(a.Strings[0]))
			assert.Equal(t, "Tanh", string(a.Strings[1]))
			assert.Equal(t, "Tanh", string(a.Strings[2]))
		}
	}
	assert.Equal(t, "Squeeze", g.Node[1].OpType)
}

func TestRecurrentInputValidation(t *testing.T) {
	cell := nn.NewRNNCell(4, 8)

	_, err := Export("rnn",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(5, DimUnknown, DimUnknown)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input features")

	_, err = Export("rnn",
		func(x *Probe) *Probe { return Apply(cell, x) },
		WithInputShapes(MakeShape(4, DimUnknown)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank 3")

	bad := nn.NewRNNCell(4, 8)
	bad.Act = nn.Softmax
	_, err = Export("rnn",
		func(x *Probe) *Probe { return Apply(bad, x) },
		WithInputShapes(MakeShape(4, DimUnknown, DimUnknown)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recurrent cell")
}
