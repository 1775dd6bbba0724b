package onnx

import (
	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/internal/toonnx"
	"github.com/tensorkit/onnx-export/nn"
)

// applyConv translates an N-dimensional convolution. The host kernel is
// (k..., cIn/groups, cOut) column-major with spatial-first layout; reversing
// the dims yields the target's [cOut, cIn/groups, k^rev...], and the taps of
// each (cIn, cOut) slice are flipped because the host convolves while the
// target cross-correlates.
func applyConv(l *nn.Conv, x *Probe) *Probe {
	dims := l.W.Dims
	if len(dims) < 3 {
		exceptions.Panicf("Conv weight must be (k..., cIn, cOut), got %v", dims)
	}
	sr := len(dims) - 2
	cin, cout := dims[sr], dims[sr+1]
	groups := l.Groups
	if groups == 0 {
		groups = 1
	}
	checkSpatialInput("Conv", x, sr, cin*groups)

	name := x.nextName("conv")
	b := x.graph
	spatialSize := 1
	for _, k := range dims[:sr] {
		spatialSize *= k
	}
	weightName := name + "_weight"
	b.addInitializer(toonnx.Tensor(weightName, toonnx.Dims(dims), toonnx.FlipSpatial(l.W.Data, spatialSize)))
	inputs := []string{x.name, weightName}
	if l.B != nil {
		if len(l.B.Dims) != 1 || l.B.Dims[0] != cout {
			exceptions.Panicf("Conv bias must be (cOut)=(%d), got %v", cout, l.B.Dims)
		}
		biasName := name + "_bias"
		b.addInitializer(toonnx.FromHost(biasName, l.B))
		inputs = append(inputs, biasName)
	}

	stride := perAxisOrDefault(l.Stride, sr, 1)
	dilation := perAxisOrDefault(l.Dilation, sr, 1)
	attrs := []*protos.AttributeProto{
		attrInts("kernel_shape", toonnx.Dims(dims[:sr])),
		attrInts("strides", toonnx.Reverse(toonnx.Ints(stride))),
		attrInts("dilations", toonnx.Reverse(toonnx.Ints(dilation))),
		attrInts("pads", toonnx.Pads(l.Pad, sr)),
	}
	if groups > 1 {
		attrs = append(attrs, attrInt("group", int64(groups)))
	}

	outShape := spatialOutputShape(x.shape, dims[:sr], stride, dilation, l.Pad, cout)
	b.addNode(&protos.NodeProto{
		Name:      name,
		OpType:    "Conv",
		Input:     inputs,
		Output:    []string{name},
		Attribute: attrs,
	}, outShape)
	return traceActivation(l.Act, x.derived(name, outShape))
}

// applyPool translates a max/average pooling window. A nil stride follows the
// host's pooling default, stride == window.
func applyPool(opType, hint string, window, stride, pad []int, x *Probe) *Probe {
	sr := len(window)
	if sr == 0 {
		exceptions.Panicf("%s needs a non-empty window", opType)
	}
	checkSpatialInput(opType, x, sr, 0)
	if stride == nil {
		stride = window
	}
	outChannels := 0 // unchanged
	outShape := spatialOutputShape(x.shape, window, perAxisOrDefault(stride, sr, 1), perAxisOrDefault(nil, sr, 1), pad, outChannels)

	name := x.nextName(hint)
	x.graph.addNode(&protos.NodeProto{
		Name:   name,
		OpType: opType,
		Input:  []string{x.name},
		Output: []string{name},
		Attribute: []*protos.AttributeProto{
			attrInts("kernel_shape", toonnx.Dims(window)),
			attrInts("strides", toonnx.Reverse(toonnx.Ints(perAxisOrDefault(stride, sr, 1)))),
			attrInts("pads", toonnx.Pads(pad, sr)),
		},
	}, outShape)
	return x.derived(name, outShape)
}

// applyGlobalPool translates a global pooling operator followed by the
// squeeze of the now size-1 spatial axes. The squeeze is named under a scope
// derived from the pool node, and the outer naming strategy is restored on
// the returned probe.
func applyGlobalPool(opType, hint string, x *Probe) *Probe {
	rank := x.shape.Rank()
	if rank < 3 {
		exceptions.Panicf("%s requires a known input rank of at least 3 (spatial..., channels, batch), got %s", opType, x.shape)
	}
	sr := rank - 2

	name := x.nextName(hint)
	outShape := x.shape.Clone()
	for i := 0; i < sr; i++ {
		outShape[i] = 1
	}
	x.graph.addNode(&protos.NodeProto{
		Name:   name,
		OpType: opType,
		Input:  []string{x.name},
		Output: []string{name},
	}, outShape)
	pooled := x.derived(name, outShape)

	scoped := pooled.WithNaming(scopedTo(name))
	spatialAxes := make([]int, sr)
	for i := range spatialAxes {
		spatialAxes[i] = i + 1
	}
	squeezed := Squeeze(scoped, spatialAxes...)
	return squeezed.WithNaming(x.nextName)
}

// checkSpatialInput validates the rank and, when known, the channel count of
// a spatial operator's input: host layout (spatial..., channels, batch).
func checkSpatialInput(opType string, x *Probe, sr, wantChannels int) {
	if x.shape == nil {
		return
	}
	if x.shape.Rank() != sr+2 {
		exceptions.Panicf("%s input must be rank %d (spatial..., channels, batch), got %s", opType, sr+2, x.shape)
	}
	if wantChannels > 0 && x.shape[sr] != DimUnknown && x.shape[sr] != wantChannels {
		exceptions.Panicf("%s expects %d input channels, input %q has %d", opType, wantChannels, x.name, x.shape[sr])
	}
}

// spatialOutputShape computes the host-order output shape of a windowed
// spatial operator. Unknown input extents stay unknown. cout == 0 keeps the
// channel count.
func spatialOutputShape(in Shape, window, stride, dilation, pad []int, cout int) Shape {
	if in == nil {
		return nil
	}
	sr := len(window)
	pads := toonnx.PadsPerAxis(pad, sr)
	out := in.Clone()
	for i := 0; i < sr; i++ {
		if in[i] == DimUnknown {
			continue
		}
		effective := dilation[i]*(window[i]-1) + 1
		extent := in[i] + pads[i][0] + pads[i][1] - effective
		if extent < 0 {
			exceptions.Panicf("window %v does not fit input %s at axis %d", window, in, i+1)
		}
		out[i] = extent/stride[i] + 1
	}
	if cout > 0 {
		out[sr] = cout
	}
	return out
}

func perAxisOrDefault(vals []int, n, def int) []int {
	if vals == nil {
		out := make([]int, n)
		for i := range out {
			out[i] = def
		}
		return out
	}
	if len(vals) != n {
		exceptions.Panicf("per-axis parameter %v must have %d entries", vals, n)
	}
	return vals
}
