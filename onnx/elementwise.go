package onnx

import (
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/nn"
)

// activationSpec is the ONNX encoding of a host activation function. The
// registry below replaces the host's trick of probing activation functions
// with a sentinel argument: translators look metadata up here and never
// execute the activation itself.
type activationSpec struct {
	OpType   string
	Alpha    float32
	HasAlpha bool
	// RNNName is the entry used in recurrent "activations" attributes,
	// empty when the activation is not valid inside a cell.
	RNNName string
}

var activationTable = map[nn.Activation]activationSpec{
	nn.ReLU:      {OpType: "Relu", RNNName: "Relu"},
	nn.Sigmoid:   {OpType: "Sigmoid", RNNName: "Sigmoid"},
	nn.Tanh:      {OpType: "Tanh", RNNName: "Tanh"},
	nn.LeakyReLU: {OpType: "LeakyRelu", Alpha: 0.01, HasAlpha: true, RNNName: "LeakyRelu"},
	nn.ELU:       {OpType: "Elu", Alpha: 1.0, HasAlpha: true, RNNName: "Elu"},
	nn.Softmax:   {OpType: "Softmax"},
}

// rnnActivationName returns the name used in the RNN/LSTM "activations"
// attribute for a host activation.
func rnnActivationName(a nn.Activation) string {
	spec, ok := activationTable[a]
	if !ok || spec.RNNName == "" {
		exceptions.Panicf("activation %s cannot be used inside a recurrent cell", a)
	}
	return spec.RNNName
}

// traceActivation emits a layer's activation function as a nested trace:
// sub-operator names are scoped under the parent node's name, and the
// parent's naming strategy is restored on the returned probe.
func traceActivation(act nn.Activation, parent *Probe) *Probe {
	if act == nn.None {
		return parent
	}
	scoped := parent.WithNaming(scopedTo(parent.name))
	out := applyActivation(act, scoped)
	return out.WithNaming(parent.nextName)
}

func applyActivation(act nn.Activation, x *Probe) *Probe {
	spec, ok := activationTable[act]
	if !ok {
		exceptions.Panicf("unsupported activation %s", act)
	}
	var attrs []*protos.AttributeProto
	if spec.HasAlpha {
		attrs = append(attrs, attrFloat("alpha", spec.Alpha))
	}
	if act == nn.Softmax && x.shape.Rank() > 0 {
		// The host applies softmax along the leading (feature) axis.
		attrs = append(attrs, attrInt("axis", axisToONNX(1, x.shape.Rank())))
	}
	return emitUnary(x, spec.OpType, attrs...)
}

// emitUnary appends a single-input node with an identity shape transfer.
func emitUnary(x *Probe, opType string, attrs ...*protos.AttributeProto) *Probe {
	name := x.nextName(strings.ToLower(opType))
	x.graph.addNode(&protos.NodeProto{
		Name:      name,
		OpType:    opType,
		Input:     []string{x.name},
		Output:    []string{name},
		Attribute: attrs,
	}, x.shape.Clone())
	return x.derived(name, x.shape.Clone())
}

// Relu traces a rectified linear unit.
func Relu(x *Probe) *Probe { return applyActivation(nn.ReLU, x) }

// Sigmoid traces a logistic sigmoid.
func Sigmoid(x *Probe) *Probe { return applyActivation(nn.Sigmoid, x) }

// Tanh traces a hyperbolic tangent.
func Tanh(x *Probe) *Probe { return applyActivation(nn.Tanh, x) }

// Softmax traces a softmax along the host's leading (feature) axis.
func Softmax(x *Probe) *Probe { return applyActivation(nn.Softmax, x) }

// LeakyRelu traces a leaky ReLU with the given negative slope.
func LeakyRelu(x *Probe, alpha float32) *Probe {
	return emitUnary(x, "LeakyRelu", attrFloat("alpha", alpha))
}

// Elu traces an exponential linear unit with the given alpha.
func Elu(x *Probe, alpha float32) *Probe {
	return emitUnary(x, "Elu", attrFloat("alpha", alpha))
}

// Add traces an elementwise addition.
func Add(a, b *Probe) *Probe { return emitBinary("Add", a, b) }

// Sub traces an elementwise subtraction.
func Sub(a, b *Probe) *Probe { return emitBinary("Sub", a, b) }

// Mul traces an elementwise multiplication.
func Mul(a, b *Probe) *Probe { return emitBinary("Mul", a, b) }

// Div traces an elementwise division.
func Div(a, b *Probe) *Probe { return emitBinary("Div", a, b) }

func emitBinary(opType string, a, b *Probe) *Probe {
	g := sameGraph(a, b)
	shape := broadcastShape(a.shape, b.shape)
	name := a.nextName(strings.ToLower(opType))
	g.addNode(&protos.NodeProto{
		Name:   name,
		OpType: opType,
		Input:  []string{a.name, b.name},
		Output: []string{name},
	}, shape)
	return a.derived(name, shape)
}

// broadcastShape resolves the output shape of an elementwise binary op under
// size-1 broadcasting. Unknown dims stay unknown unless the other operand
// pins them.
func broadcastShape(a, b Shape) Shape {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	if len(a) != len(b) {
		exceptions.Panicf("elementwise operands have ranks %d and %d", len(a), len(b))
	}
	out := make(Shape, len(a))
	for i := range a {
		da, db := a[i], b[i]
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		case da == DimUnknown:
			out[i] = db
		case db == DimUnknown:
			out[i] = da
		default:
			exceptions.Panicf("elementwise operands have incompatible shapes %s and %s", a, b)
		}
	}
	return out
}

// ReduceMean traces a mean reduction along one host axis (1-based).
func ReduceMean(x *Probe, hostAxis int, keepDims bool) *Probe {
	return emitReduce("ReduceMean", x, hostAxis, keepDims)
}

// ReduceSum traces a sum reduction along one host axis (1-based).
func ReduceSum(x *Probe, hostAxis int, keepDims bool) *Probe {
	return emitReduce("ReduceSum", x, hostAxis, keepDims)
}

// ReduceMax traces a max reduction along one host axis (1-based).
func ReduceMax(x *Probe, hostAxis int, keepDims bool) *Probe {
	return emitReduce("ReduceMax", x, hostAxis, keepDims)
}

func emitReduce(opType string, x *Probe, hostAxis int, keepDims bool) *Probe {
	rank := x.shape.Rank()
	if rank == 0 {
		exceptions.Panicf("%s along axis %d requires a known input rank", opType, hostAxis)
	}
	targetAxis := axisToONNX(hostAxis, rank) // validates the axis
	var outShape Shape
	if keepDims {
		outShape = x.shape.Clone()
		outShape[hostAxis-1] = 1
	} else {
		outShape = make(Shape, 0, rank-1)
		for i, d := range x.shape {
			if i != hostAxis-1 {
				outShape = append(outShape, d)
			}
		}
	}
	keep := int64(0)
	if keepDims {
		keep = 1
	}
	name := x.nextName(strings.ToLower(opType))
	x.graph.addNode(&protos.NodeProto{
		Name:   name,
		OpType: opType,
		Input:  []string{x.name},
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrInts("axes", []int64{targetAxis}),
			attrInt("keepdims", keep),
		},
	}, outShape)
	return x.derived(name, outShape)
}
