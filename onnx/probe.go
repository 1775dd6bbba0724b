package onnx

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/tensorkit/onnx-export/internal/protos"
)

// Probe is the placeholder threaded through layer applications during
// tracing. It describes the traced value it stands for -- its name and shape
// -- and carries the active naming strategy plus a borrowed handle to the
// graph under construction. Probes are immutable snapshots: every operator
// translation consumes probes and returns a fresh one, and all mutation
// happens by appending to the shared builder.
type Probe struct {
	name     string
	shape    Shape
	nextName NamingStrategy
	graph    *graphBuilder
}

// Name returns the name of the traced value the probe stands for.
func (p *Probe) Name() string { return p.name }

// Shape returns the traced value's shape in host axis order.
func (p *Probe) Shape() Shape { return p.shape.Clone() }

// derived returns the probe for a new traced value on the same graph,
// keeping the naming strategy.
func (p *Probe) derived(name string, shape Shape) *Probe {
	return &Probe{name: name, shape: shape, nextName: p.nextName, graph: p.graph}
}

// WithNaming returns a copy of the probe whose subsequent operator
// translations use a different naming strategy. The traced value itself is
// unchanged; other probes keep their strategy.
func (p *Probe) WithNaming(s NamingStrategy) *Probe {
	return &Probe{name: p.name, shape: p.shape, nextName: s, graph: p.graph}
}

// sameGraph checks that all probes trace the same export and returns the
// shared builder.
func sameGraph(probes ...*Probe) *graphBuilder {
	if len(probes) == 0 {
		exceptions.Panicf("operation requires at least one input probe")
	}
	g := probes[0].graph
	for _, p := range probes[1:] {
		if p == nil || p.graph != g {
			exceptions.Panicf("input probes belong to different exports")
		}
	}
	return g
}

// valueShape pairs a traced value with its shape, for intermediate
// value_info emission at finalize time.
type valueShape struct {
	name  string
	shape Shape
}

// graphBuilder owns the graph under construction. It is created by the export
// driver, borrowed by probes for the duration of the trace, and only ever
// appended to -- never edited in place -- so insertion order is discovery
// order and the topological node-order invariant holds by construction.
type graphBuilder struct {
	proto     protos.GraphProto
	names     map[string]struct{} // every name defined so far, one namespace
	interim   []valueShape        // node primary outputs, emitted as value_info
	outputs   map[string]struct{}
	dimParams int
	frozen    bool
}

func newGraphBuilder(name string) *graphBuilder {
	return &graphBuilder{
		proto:   protos.GraphProto{Name: name},
		names:   make(map[string]struct{}),
		outputs: make(map[string]struct{}),
	}
}

// claimName registers a name in the graph namespace. Strategies guarantee
// uniqueness, so a collision is an invariant violation and fatal.
func (b *graphBuilder) claimName(name string) {
	if name == "" {
		exceptions.Panicf("empty name emitted for a graph entity")
	}
	if _, dup := b.names[name]; dup {
		exceptions.Panicf("name %q emitted twice within one graph", name)
	}
	b.names[name] = struct{}{}
}

func (b *graphBuilder) checkMutable() {
	if b.frozen {
		exceptions.Panicf("graph %q is already finalized", b.proto.Name)
	}
}

// newInput registers a graph input and returns its initial probe. Declaring
// the same input name twice is an error.
func (b *graphBuilder) newInput(name string, shape Shape, naming NamingStrategy) *Probe {
	b.checkMutable()
	if _, dup := b.names[name]; dup {
		exceptions.Panicf("graph input %q already declared", name)
	}
	b.claimName(name)
	b.proto.Input = append(b.proto.Input, b.valueInfo(name, shape))
	return &Probe{name: name, shape: shape.Clone(), nextName: naming, graph: b}
}

// addInitializer appends a constant tensor to the graph.
func (b *graphBuilder) addInitializer(t *protos.TensorProto) {
	b.checkMutable()
	b.claimName(t.Name)
	b.proto.Initializer = append(b.proto.Initializer, t)
}

// addNode appends a node. Every input must already be defined (a graph
// input, an initializer, or a previous node's output), which enforces
// producers-before-consumers. outShape is the host-order shape of the primary
// output, recorded as intermediate value_info.
func (b *graphBuilder) addNode(node *protos.NodeProto, outShape Shape) {
	b.checkMutable()
	for _, in := range node.Input {
		if _, ok := b.names[in]; !ok {
			exceptions.Panicf("node %q (%s) consumes %q before it is defined", node.Name, node.OpType, in)
		}
	}
	// The node and its primary output share one name; claim it once.
	if len(node.Output) == 0 || node.Output[0] != node.Name {
		exceptions.Panicf("node %q must name its primary output after itself", node.Name)
	}
	b.claimName(node.Name)
	for _, out := range node.Output[1:] {
		b.claimName(out)
	}
	b.proto.Node = append(b.proto.Node, node)
	b.interim = append(b.interim, valueShape{name: node.Name, shape: outShape})
	klog.V(2).Infof("emitted node %s (%s): inputs=%v shape=%s", node.Name, node.OpType, node.Input, outShape)
}

// addOutput registers an already-traced value as a graph output.
func (b *graphBuilder) addOutput(name string, shape Shape) {
	b.checkMutable()
	if _, ok := b.names[name]; !ok {
		exceptions.Panicf("graph output %q is not a traced value", name)
	}
	if _, dup := b.outputs[name]; dup {
		exceptions.Panicf("graph output %q declared twice", name)
	}
	b.outputs[name] = struct{}{}
	b.proto.Output = append(b.proto.Output, b.valueInfo(name, shape))
}

// finalize freezes the graph and emits value_info for every intermediate
// value. No mutation is permitted afterward.
func (b *graphBuilder) finalize() {
	b.checkMutable()
	for _, vs := range b.interim {
		if _, isOutput := b.outputs[vs.name]; isOutput {
			continue
		}
		b.proto.ValueInfo = append(b.proto.ValueInfo, b.valueInfo(vs.name, vs.shape))
	}
	b.frozen = true
}

// valueInfo builds a ValueInfoProto with the shape translated to target axis
// order. Unknown dimensions become symbolic dim_params; a nil shape omits the
// shape entirely (unknown rank).
func (b *graphBuilder) valueInfo(name string, shape Shape) *protos.ValueInfoProto {
	tt := &protos.TypeProto_Tensor{ElemType: int32(protos.TensorProto_FLOAT)}
	if shape != nil {
		dims := make([]*protos.TensorShapeProto_Dimension, len(shape))
		for i, d := range shape {
			// Reversed axis order.
			target := len(shape) - 1 - i
			if d == DimUnknown {
				dims[target] = &protos.TensorShapeProto_Dimension{DimParam: fmt.Sprintf("unk_%d", b.dimParams)}
				b.dimParams++
			} else {
				dims[target] = &protos.TensorShapeProto_Dimension{DimValue: int64(d)}
			}
		}
		tt.Shape = &protos.TensorShapeProto{Dim: dims}
	}
	return &protos.ValueInfoProto{Name: name, Type: &protos.TypeProto{TensorType: tt}}
}
