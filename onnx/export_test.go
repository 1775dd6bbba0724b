package onnx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorkit/onnx-export/nn"
)

// Two-layer network, the canonical smoke test: one convolution, one dense
// layer, input (width, height, channels) plus an open batch axis.
func TestExportConvDense(t *testing.T) {
	conv := nn.NewConv2D(3, 3, 1, 4, nn.None)
	dense := nn.NewDense(26*26*4, 10, nn.None)
	model, err := Export("mnist",
		func(x *Probe) *Probe {
			return Apply(nn.Chain{conv, dense}, x)
		},
		WithInputNames("image"),
		WithInputShapes(MakeShape(28, 28, 1, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.NotNil(t, g)
	require.Len(t, g.Node, 2)
	assert.Equal(t, "Conv", g.Node[0].OpType)
	assert.Equal(t, "Gemm", g.Node[1].OpType)
	require.Len(t, g.Initializer, 4)
	require.Len(t, g.Input, 1)
	assert.Equal(t, "image", g.Input[0].Name)
	require.Len(t, g.Output, 1)
	assert.Equal(t, "dense_1", g.Output[0].Name)

	// The conv output is the only intermediate value.
	require.Len(t, g.ValueInfo, 1)
	assert.Equal(t, "conv_0", g.ValueInfo[0].Name)

	assert.EqualValues(t, IRVersion, model.Proto.IrVersion)
	require.Len(t, model.Proto.OpsetImport, 1)
	assert.EqualValues(t, OpsetVersion, model.Proto.OpsetImport[0].Version)

	require.NoError(t, Check(model))
	assert.NotEmpty(t, model.Bytes())

	var buf bytes.Buffer
	require.NoError(t, model.Write(&buf))
	assert.Equal(t, model.Bytes(), buf.Bytes())
}

func TestExportConvAttributes(t *testing.T) {
	conv := &nn.Conv{
		W:        nn.Zeros(3, 5, 2, 4),
		Stride:   []int{2, 3},
		Dilation: []int{1, 2},
		Pad:      []int{1, 2},
	}
	model, err := Export("convnet",
		func(x *Probe) *Probe { return Apply(conv, x) },
		WithInputShapes(MakeShape(28, 28, 2, DimUnknown)),
	)
	require.NoError(t, err)

	node := model.Proto.Graph.Node[0]
	attrs := make(map[string][]int64)
	for _, a := range node.Attribute {
		attrs[a.Name] = a.Ints
	}
	// Per-axis attributes come out in reversed axis order.
	assert.Equal(t, []int64{5, 3}, attrs["kernel_shape"])
	assert.Equal(t, []int64{3, 2}, attrs["strides"])
	assert.Equal(t, []int64{2, 1}, attrs["dilations"])
	assert.Equal(t, []int64{2, 1, 2, 1}, attrs["pads"])

	// No bias: only the flipped kernel.
	require.Len(t, model.Proto.Graph.Initializer, 1)
	assert.Equal(t, []int64{4, 2, 5, 3}, model.Proto.Graph.Initializer[0].Dims)

	// Spatial shape transfer: ((28+2-3)/2)+1 = 14, ((28+4-9)/3)+1 = 8.
	out := model.Proto.Graph.Output[0]
	dims := out.Type.TensorType.Shape.Dim
	require.Len(t, dims, 4)
	assert.NotEmpty(t, dims[0].DimParam) // batch
	assert.EqualValues(t, 4, dims[1].DimValue)
	assert.EqualValues(t, 8, dims[2].DimValue)
	assert.EqualValues(t, 14, dims[3].DimValue)
}

// The layer's activation is traced as a separate node scoped under the parent
// name; the outer counter resumes afterwards.
func TestExportActivationNaming(t *testing.T) {
	model, err := Export("acts",
		func(x *Probe) *Probe {
			x = Apply(nn.NewDense(4, 4, nn.ReLU), x)
			return Apply(nn.NewDense(4, 2, nn.None), x)
		},
		WithInputShapes(MakeShape(4, DimUnknown)),
	)
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, n := range model.Proto.Graph.Node {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"dense_0", "dense_0_relu", "dense_1"}, names)
	assert.Equal(t, "dense_1", model.Proto.Graph.Output[0].Name)
}

// Sequence-batched dense input: a rank-3 value is collapsed to a matrix with
// an implicit Reshape. The feature axis must be pinned as the literal fan-in:
// the target's 0 marker is positional on the reversed axes, so on a rank
// change it would copy the wrong input axis.
func TestExportDenseCollapsesRank3(t *testing.T) {
	model, err := Export("seqdense",
		func(x *Probe) *Probe { return Apply(nn.NewDense(8, 2, nn.None), x) },
		WithInputShapes(MakeShape(8, DimUnknown, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.Len(t, g.Node, 2)
	assert.Equal(t, "Reshape", g.Node[0].OpType)
	assert.Equal(t, "Gemm", g.Node[1].OpType)

	var shapeTensor []int64
	for _, init := range g.Initializer {
		if strings.HasSuffix(init.Name, "_shape") {
			shapeTensor = init.Int64Data
		}
	}
	// Host (8, infer) reversed: [-1, 8]. A runtime applying this to the
	// reversed input [seq, batch, 8] yields [seq*batch, 8], matching the
	// Gemm weight [2, 8] with transB=1.
	assert.Equal(t, []int64{-1, 8}, shapeTensor)
}

// Fully known rank-3 input: the collapse and the following Gemm must agree on
// the feature extent end to end.
func TestExportDenseCollapseKnownDims(t *testing.T) {
	model, err := Export("seqdense",
		func(x *Probe) *Probe { return Apply(nn.NewDense(8, 2, nn.None), x) },
		WithInputShapes(MakeShape(8, 4, 5)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	var shapeTensor []int64
	for _, init := range g.Initializer {
		switch {
		case strings.HasSuffix(init.Name, "_shape"):
			shapeTensor = init.Int64Data
		case strings.HasSuffix(init.Name, "_weight"):
			assert.Equal(t, []int64{2, 8}, init.Dims)
		}
	}
	assert.Equal(t, []int64{-1, 8}, shapeTensor)

	// A rank-3 input whose feature axis contradicts the fan-in is rejected
	// before the collapse can hide it.
	_, err = Export("seqdense",
		func(x *Probe) *Probe { return Apply(nn.NewDense(8, 2, nn.None), x) },
		WithInputShapes(MakeShape(7, 4, 5)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fan-in")
}

func TestExportGlobalPoolComposite(t *testing.T) {
	model, err := Export("gap",
		func(x *Probe) *Probe { return Apply(nn.GlobalMeanPool{}, x) },
		WithInputShapes(MakeShape(7, 7, 32, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.Len(t, g.Node, 2)
	assert.Equal(t, "GlobalAveragePool", g.Node[0].OpType)
	assert.Equal(t, "Squeeze", g.Node[1].OpType)
	assert.Equal(t, "globalmeanpool_0_squeeze", g.Node[1].Name)

	// Output: spatial axes squeezed away, (32, batch) in host order.
	dims := g.Output[0].Type.TensorType.Shape.Dim
	require.Len(t, dims, 2)
	assert.NotEmpty(t, dims[0].DimParam)
	assert.EqualValues(t, 32, dims[1].DimValue)
}

func TestExportMultipleInputsAndOutputs(t *testing.T) {
	model, err := Export("siamese",
		func(a, b *Probe) (*Probe, *Probe) {
			sum := Add(a, b)
			return Relu(sum), Sigmoid(sum)
		},
		WithInputShapes(MakeShape(4, DimUnknown), MakeShape(4, DimUnknown)),
	)
	require.NoError(t, err)

	g := model.Proto.Graph
	require.Len(t, g.Input, 2)
	assert.Equal(t, "data_0", g.Input[0].Name)
	assert.Equal(t, "data_1", g.Input[1].Name)
	require.Len(t, g.Output, 2)
	require.NoError(t, Check(model))
}

func TestExportGraphFunc(t *testing.T) {
	var fn GraphFunc = func(inputs []*Probe) []*Probe {
		return []*Probe{Tanh(inputs[0])}
	}
	model, err := Export("gf", fn, WithInputShapes(MakeShape(3, DimUnknown)))
	require.NoError(t, err)
	assert.Len(t, model.Proto.Graph.Node, 1)

	// A GraphFunc carries no arity; without names or shapes the input count
	// is undecidable.
	_, err = Export("gf", fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input count")
}

func TestExportArgumentErrors(t *testing.T) {
	identity := func(x *Probe) *Probe { return x }

	_, err := Export("bad", 42)
	require.Error(t, err)

	_, err = Export("bad", func(x *Probe) int { return 0 })
	require.Error(t, err)

	_, err = Export("bad", identity, WithInputNames("a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 input names")

	_, err = Export("bad", identity,
		WithInputShapes(MakeShape(1), MakeShape(2)))
	require.Error(t, err)
}

// Trace-time failures surface as errors on Export, not panics.
func TestExportTraceErrors(t *testing.T) {
	type unknownLayer struct{}

	_, err := Export("bad",
		func(x *Probe) *Probe { return Apply(&unknownLayer{}, x) },
		WithInputShapes(MakeShape(4, DimUnknown)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no translator")

	_, err = Export("bad",
		func(x *Probe) *Probe { return Apply(nn.NewDense(8, 2, nn.None), x) },
		WithInputShapes(MakeShape(4, DimUnknown)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fan-in")

	_, err = Export("bad",
		func(a, b *Probe) *Probe { return Add(a, b) },
		WithInputNames("x", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared")
}

func TestExportCustomValidator(t *testing.T) {
	called := false
	_, err := Export("v",
		func(x *Probe) *Probe { return Relu(x) },
		WithInputShapes(MakeShape(2, DimUnknown)),
		WithValidator(func(m *Model) error { called = true; return nil }))
	require.NoError(t, err)
	assert.True(t, called)

	called = false
	_, err = Export("v",
		func(x *Probe) *Probe { return Relu(x) },
		WithInputShapes(MakeShape(2, DimUnknown)),
		WithValidator(func(m *Model) error { called = true; return nil }),
		WithoutValidation())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestExportProducerMetadata(t *testing.T) {
	model, err := Export("meta",
		func(x *Probe) *Probe { return Relu(x) },
		WithInputShapes(MakeShape(2, DimUnknown)))
	require.NoError(t, err)
	assert.Equal(t, "onnx-export", model.Proto.ProducerName)
	assert.Equal(t, Version, model.Proto.ProducerVersion)

	model, err = Export("meta",
		func(x *Probe) *Probe { return Relu(x) },
		WithInputShapes(MakeShape(2, DimUnknown)),
		WithProducer("trainer", "2.0"))
	require.NoError(t, err)
	assert.Equal(t, "trainer", model.Proto.ProducerName)
	assert.Equal(t, "2.0", model.Proto.ProducerVersion)

	s := model.String()
	assert.Contains(t, s, "trainer")
	assert.Contains(t, s, "Relu")
}

// Probe.WithNaming rescopes naming for one component mid-trace: operators
// derived from the rescoped probe use the new strategy, every other probe
// keeps the export-wide one.
func TestExportPerComponentNaming(t *testing.T) {
	model, err := Export("mixed",
		func(x *Probe) *Probe {
			x = Relu(x)
			y := Tanh(x.WithNaming(NameByHint()))
			z := Sigmoid(x)
			return Add(y, z)
		},
		WithInputShapes(MakeShape(4, DimUnknown)))
	require.NoError(t, err)

	names := make([]string, 0, 4)
	for _, n := range model.Proto.Graph.Node {
		names = append(names, n.Name)
	}
	// relu_0 and sigmoid_1 share the export-wide counter; tanh and the add
	// derived from it follow the swapped-in by-hint strategy.
	assert.Equal(t, []string{"relu_0", "tanh", "sigmoid_1", "add"}, names)
}

func TestExportNameByHint(t *testing.T) {
	model, err := Export("hints",
		func(x *Probe) *Probe {
			x = Apply(nn.NewDense(4, 4, nn.None), x)
			return Apply(nn.NewDense(4, 2, nn.None), x)
		},
		WithInputShapes(MakeShape(4, DimUnknown)),
		WithNamingStrategy(NameByHint()))
	require.NoError(t, err)
	assert.Equal(t, "dense", model.Proto.Graph.Node[0].Name)
	assert.Equal(t, "dense_1", model.Proto.Graph.Node[1].Name)
}

// The node sequence of any traced graph is a valid topological order.
func TestExportTopologicalOrder(t *testing.T) {
	model, err := Export("topo",
		func(a, b *Probe) *Probe {
			x := Apply(nn.NewDense(4, 4, nn.Tanh), a)
			y := Relu(b)
			return Mul(Add(x, y), y)
		},
		WithInputShapes(MakeShape(4, DimUnknown), MakeShape(4, DimUnknown)))
	require.NoError(t, err)

	defined := map[string]struct{}{"data_0": {}, "data_1": {}}
	for _, init := range model.Proto.Graph.Initializer {
		defined[init.Name] = struct{}{}
	}
	for _, n := range model.Proto.Graph.Node {
		for _, in := range n.Input {
			_, ok := defined[in]
			assert.True(t, ok, "node %q consumes %q before definition", n.Name, in)
		}
		for _, out := range n.Output {
			defined[out] = struct{}{}
		}
	}
}
