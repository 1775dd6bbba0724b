package onnx

import (
	"reflect"

	"github.com/gomlx/exceptions"

	"github.com/tensorkit/onnx-export/nn"
)

// translator converts one host layer application into graph entities and
// returns the probe for its output.
type translator func(layer any, inputs []*Probe) *Probe

// translators is the closed table of supported host layer kinds. Anything not
// listed here has no ONNX translation and aborts the export. It is populated
// in init to break the initialization cycle with Apply via applyChain.
var translators map[reflect.Type]translator

func init() {
	translators = map[reflect.Type]translator{
		reflect.TypeOf((*nn.Dense)(nil)): func(l any, in []*Probe) *Probe {
			return applyDense(l.(*nn.Dense), single("Dense", in))
		},
		reflect.TypeOf((*nn.Conv)(nil)): func(l any, in []*Probe) *Probe {
			return applyConv(l.(*nn.Conv), single("Conv", in))
		},
		reflect.TypeOf((*nn.MaxPool)(nil)): func(l any, in []*Probe) *Probe {
			p := l.(*nn.MaxPool)
			return applyPool("MaxPool", "maxpool", p.Window, p.Stride, p.Pad, single("MaxPool", in))
		},
		reflect.TypeOf((*nn.MeanPool)(nil)): func(l any, in []*Probe) *Probe {
			p := l.(*nn.MeanPool)
			return applyPool("AveragePool", "meanpool", p.Window, p.Stride, p.Pad, single("MeanPool", in))
		},
		reflect.TypeOf(nn.GlobalMaxPool{}): func(_ any, in []*Probe) *Probe {
			return applyGlobalPool("GlobalMaxPool", "globalmaxpool", single("GlobalMaxPool", in))
		},
		reflect.TypeOf(nn.GlobalMeanPool{}): func(_ any, in []*Probe) *Probe {
			return applyGlobalPool("GlobalAveragePool", "globalmeanpool", single("GlobalMeanPool", in))
		},
		reflect.TypeOf((*nn.BatchNorm)(nil)): func(l any, in []*Probe) *Probe {
			return applyBatchNorm(l.(*nn.BatchNorm), single("BatchNorm", in))
		},
		reflect.TypeOf((*nn.Dropout)(nil)): func(l any, in []*Probe) *Probe {
			return applyDropout(l.(*nn.Dropout), single("Dropout", in))
		},
		reflect.TypeOf((*nn.RNNCell)(nil)): func(l any, in []*Probe) *Probe {
			return applyRNN(l.(*nn.RNNCell), single("RNNCell", in))
		},
		reflect.TypeOf((*nn.LSTMCell)(nil)): func(l any, in []*Probe) *Probe {
			return applyLSTM(l.(*nn.LSTMCell), single("LSTMCell", in))
		},
		reflect.TypeOf((*nn.Reshape)(nil)): func(l any, in []*Probe) *Probe {
			return Reshape(single("Reshape", in), l.(*nn.Reshape).Shape...)
		},
		reflect.TypeOf(nn.Chain(nil)): func(l any, in []*Probe) *Probe {
			return applyChain(l.(nn.Chain), in)
		},
	}
}

// Apply traces one host layer application: the layer's translator reads its
// parameters and the input probes, appends initializers and a node to the
// shared graph, and returns the probe describing the operator's output.
//
// It panics (throws exceptions, recovered by Export) when the layer kind is
// not supported or the probes are inconsistent.
func Apply(layer any, inputs ...*Probe) *Probe {
	if layer == nil {
		exceptions.Panicf("onnx.Apply: nil layer")
	}
	tr, ok := translators[reflect.TypeOf(layer)]
	if !ok {
		exceptions.Panicf("onnx.Apply: no translator for host layer type %T", layer)
	}
	sameGraph(inputs...)
	return tr(layer, inputs)
}

func single(kind string, inputs []*Probe) *Probe {
	if len(inputs) != 1 {
		exceptions.Panicf("%s takes exactly one input, got %d", kind, len(inputs))
	}
	return inputs[0]
}

func applyChain(c nn.Chain, inputs []*Probe) *Probe {
	if len(c) == 0 {
		exceptions.Panicf("onnx.Apply: empty chain")
	}
	out := Apply(c[0], inputs...)
	for _, layer := range c[1:] {
		out = Apply(layer, out)
	}
	return out
}
