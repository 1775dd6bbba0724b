package onnx

import (
	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/internal/toonnx"
	"github.com/tensorkit/onnx-export/nn"
)

// applyBatchNorm translates a batch normalization layer: always four
// parameter tensors (scale, bias, running mean, running variance) plus
// epsilon/momentum, followed by the layer's activation traced under a scoped
// naming strategy.
func applyBatchNorm(l *nn.BatchNorm, x *Probe) *Probe {
	c := channelCount(l)
	if rank := x.shape.Rank(); rank > 0 {
		if rank < 2 {
			exceptions.Panicf("BatchNorm input must have a channel axis, got %s", x.shape)
		}
		if ch := x.shape[rank-2]; ch != DimUnknown && ch != c {
			exceptions.Panicf("BatchNorm normalizes %d channels, input %q has %d", c, x.name, ch)
		}
	}

	name := x.nextName("batchnorm")
	b := x.graph
	params := []struct {
		suffix string
		t      *nn.Tensor
	}{
		{"_scale", l.Scale},
		{"_bias", l.Bias},
		{"_mean", l.Mean},
		{"_var", l.Variance},
	}
	inputs := []string{x.name}
	for _, p := range params {
		tensorName := name + p.suffix
		b.addInitializer(toonnx.FromHost(tensorName, p.t))
		inputs = append(inputs, tensorName)
	}

	outShape := x.shape.Clone()
	b.addNode(&protos.NodeProto{
		Name:   name,
		OpType: "BatchNormalization",
		Input:  inputs,
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrFloat("epsilon", l.Epsilon),
			attrFloat("momentum", l.Momentum),
		},
	}, outShape)
	return traceActivation(l.Act, x.derived(name, outShape))
}

func channelCount(l *nn.BatchNorm) int {
	for _, t := range []*nn.Tensor{l.Scale, l.Bias, l.Mean, l.Variance} {
		if t == nil || len(t.Dims) != 1 || t.Dims[0] != l.Scale.Dims[0] {
			exceptions.Panicf("BatchNorm parameters must all be rank-1 with the same length")
		}
	}
	return l.Scale.Dims[0]
}

// applyDropout translates a dropout layer; the ratio rides along as an
// attribute and the shape is unchanged.
func applyDropout(l *nn.Dropout, x *Probe) *Probe {
	if l.Ratio < 0 || l.Ratio >= 1 {
		exceptions.Panicf("Dropout ratio %v outside [0, 1)", l.Ratio)
	}
	return emitUnary(x, "Dropout", attrFloat("ratio", l.Ratio))
}
