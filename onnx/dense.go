package onnx

import (
	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/internal/toonnx"
	"github.com/tensorkit/onnx-export/nn"
)

// applyDense translates a fully-connected layer to Gemm. The host weight is
// (in, out) column-major; emitted reversed as [out, in] the buffer is already
// the row-major transpose, so Gemm gets transB=1.
func applyDense(l *nn.Dense, x *Probe) *Probe {
	if l.W == nil || len(l.W.Dims) != 2 {
		exceptions.Panicf("Dense weight must be rank-2 (in, out)")
	}
	in, out := l.W.Dims[0], l.W.Dims[1]
	if r := x.shape.Rank(); (r == 2 || r == 3) && x.shape[0] != DimUnknown && x.shape[0] != in {
		exceptions.Panicf("Dense has fan-in %d but its input %q has %d features", in, x.name, x.shape[0])
	}
	x = collapseToMatrix(x, in)

	name := x.nextName("dense")
	b := x.graph
	weightName := name + "_weight"
	b.addInitializer(toonnx.FromHost(weightName, l.W))
	inputs := []string{x.name, weightName}
	if l.B != nil {
		if len(l.B.Dims) != 1 || l.B.Dims[0] != out {
			exceptions.Panicf("Dense bias must be (out)=(%d), got %v", out, l.B.Dims)
		}
		biasName := name + "_bias"
		b.addInitializer(toonnx.FromHost(biasName, l.B))
		inputs = append(inputs, biasName)
	}

	var outShape Shape
	if x.shape != nil {
		outShape = x.shape.Clone()
		outShape[0] = out
	}
	b.addNode(&protos.NodeProto{
		Name:   name,
		OpType: "Gemm",
		Input:  inputs,
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrFloat("alpha", 1),
			attrFloat("beta", 1),
			attrInt("transB", 1),
		},
	}, outShape)
	return traceActivation(l.Act, x.derived(name, outShape))
}

// collapseToMatrix adapts sequence-batched inputs for rank-2 operators: a
// rank-3 value (features, batch, seq) is reshaped to (features, batch*seq)
// before the weighted transform. Purely a shape adaptation. The feature axis
// is pinned to the literal fan-in: a keep marker would serialize as the
// target's positional zero, which reads the wrong input axis once the rank
// changes.
func collapseToMatrix(x *Probe, in int) *Probe {
	if x.shape.Rank() != 3 {
		return x
	}
	return Reshape(x, in, nn.InferDim)
}
