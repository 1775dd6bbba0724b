package onnx

import (
	"slices"

	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/internal/protos"
	"github.com/tensorkit/onnx-export/internal/toonnx"
	"github.com/tensorkit/onnx-export/nn"
)

// axisToONNX remaps a host axis (1-based, host order) to the target axis
// (0-based, reversed order).
func axisToONNX(hostAxis, rank int) int64 { return toonnx.Axis(hostAxis, rank) }

// Reshape traces a reshape. The spec is in host axis order; entries are
// positive literals, nn.InferDim (derive from the element count, at most
// once) or nn.KeepDim (copy the input axis). The full shape is emitted as an
// int64 initializer in reversed axis order with InferDim mapped to the
// target's -1.
//
// KeepDim serializes as the target's 0 marker only when the spec has the
// input's rank: the 0 is positional on the reversed axes, so it reads the
// mirrored index and lines up with the host axis only at equal ranks. On a
// rank change a known input extent is pinned as a literal instead, and an
// unknown one is an error.
func Reshape(x *Probe, spec ...int) *Probe {
	if len(spec) == 0 {
		exceptions.Panicf("reshape of %q needs a non-empty shape", x.name)
	}
	sameRank := len(spec) == x.shape.Rank()
	mapped := make([]int64, len(spec))
	outShape := make(Shape, len(spec))
	inferred := false
	for i, d := range spec {
		switch {
		case d == nn.InferDim:
			if inferred {
				exceptions.Panicf("reshape of %q infers more than one axis: %v", x.name, spec)
			}
			inferred = true
			mapped[i] = -1
			outShape[i] = DimUnknown
		case d == nn.KeepDim:
			if i >= x.shape.Rank() {
				exceptions.Panicf("reshape of %q keeps axis %d but the input shape is %s", x.name, i+1, x.shape)
			}
			switch {
			case sameRank:
				mapped[i] = 0
			case x.shape[i] != DimUnknown:
				mapped[i] = int64(x.shape[i])
			default:
				exceptions.Panicf("reshape of %q keeps unknown axis %d while changing rank from %d to %d",
					x.name, i+1, x.shape.Rank(), len(spec))
			}
			outShape[i] = x.shape[i]
		case d > 0:
			mapped[i] = int64(d)
			outShape[i] = d
		default:
			exceptions.Panicf("reshape of %q has invalid entry %d at axis %d", x.name, d, i+1)
		}
	}
	name := x.nextName("reshape")
	shapeName := name + "_shape"
	x.graph.addInitializer(toonnx.Int64Tensor(shapeName, []int64{int64(len(spec))}, toonnx.Reverse(mapped)))
	x.graph.addNode(&protos.NodeProto{
		Name:   name,
		OpType: "Reshape",
		Input:  []string{x.name, shapeName},
		Output: []string{name},
	}, outShape)
	return x.derived(name, outShape)
}

// Concat traces a concatenation of probes along one host axis (1-based). All
// probes must come from the same export.
func Concat(hostAxis int, xs ...*Probe) *Probe {
	g := sameGraph(xs...)
	rank := 0
	for _, x := range xs {
		if r := x.shape.Rank(); r != 0 {
			if rank != 0 && r != rank {
				exceptions.Panicf("concat inputs have ranks %d and %d", rank, r)
			}
			rank = r
		}
	}
	if rank == 0 {
		exceptions.Panicf("concat along axis %d requires at least one input with a known rank", hostAxis)
	}
	outShape := make(Shape, rank)
	for i := range outShape {
		if i == hostAxis-1 {
			total := 0
			for _, x := range xs {
				if x.shape.Rank() == 0 || x.shape[i] == DimUnknown {
					total = DimUnknown
					break
				}
				total += x.shape[i]
			}
			outShape[i] = total
			continue
		}
		outShape[i] = DimUnknown
		for _, x := range xs {
			if x.shape.Rank() == 0 || x.shape[i] == DimUnknown {
				continue
			}
			if outShape[i] != DimUnknown && outShape[i] != x.shape[i] {
				exceptions.Panicf("concat inputs disagree on axis %d: %d vs %d", i+1, outShape[i], x.shape[i])
			}
			outShape[i] = x.shape[i]
		}
	}
	names := make([]string, len(xs))
	for i, x := range xs {
		names[i] = x.name
	}
	name := xs[0].nextName("concat")
	g.addNode(&protos.NodeProto{
		Name:      name,
		OpType:    "Concat",
		Input:     names,
		Output:    []string{name},
		Attribute: []*protos.AttributeProto{attrInt("axis", axisToONNX(hostAxis, rank))},
	}, outShape)
	return xs[0].derived(name, outShape)
}

// Squeeze traces the removal of size-1 host axes (1-based). With no axes
// given, every known size-1 axis is removed. A known axis with size other
// than 1 is an error; unknown axes may only be squeezed explicitly.
func Squeeze(x *Probe, hostAxes ...int) *Probe {
	rank := x.shape.Rank()
	if rank == 0 {
		exceptions.Panicf("squeeze of %q requires a known input rank", x.name)
	}
	if len(hostAxes) == 0 {
		for i, d := range x.shape {
			if d == 1 {
				hostAxes = append(hostAxes, i+1)
			}
		}
		if len(hostAxes) == 0 {
			exceptions.Panicf("squeeze of %q found no size-1 axes in %s", x.name, x.shape)
		}
	}
	drop := make(map[int]struct{}, len(hostAxes))
	targetAxes := make([]int64, 0, len(hostAxes))
	for _, a := range hostAxes {
		if a < 1 || a > rank {
			exceptions.Panicf("squeeze of %q: axis %d out of range for rank %d", x.name, a, rank)
		}
		if d := x.shape[a-1]; d != 1 && d != DimUnknown {
			exceptions.Panicf("squeeze of %q: axis %d has size %d", x.name, a, d)
		}
		drop[a-1] = struct{}{}
		targetAxes = append(targetAxes, axisToONNX(a, rank))
	}
	slices.Sort(targetAxes)
	outShape := make(Shape, 0, rank-len(drop))
	for i, d := range x.shape {
		if _, dropped := drop[i]; !dropped {
			outShape = append(outShape, d)
		}
	}
	return emitSqueeze(x, targetAxes, outShape)
}

func emitSqueeze(x *Probe, targetAxes []int64, outShape Shape) *Probe {
	name := x.nextName("squeeze")
	x.graph.addNode(&protos.NodeProto{
		Name:      name,
		OpType:    "Squeeze",
		Input:     []string{x.name},
		Output:    []string{name},
		Attribute: []*protos.AttributeProto{attrInts("axes", targetAxes)},
	}, outShape)
	return x.derived(name, outShape)
}
