package onnx

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tensorkit/onnx-export/internal/protos"
)

// GraphFunc is the generic form of an exportable model function: it receives
// one probe per graph input and returns the probes for the graph outputs.
type GraphFunc func(inputs []*Probe) []*Probe

// exportConfig collects the knobs of one Export call.
type exportConfig struct {
	naming          NamingStrategy
	inputNames      []string
	inputShapes     []Shape
	producerName    string
	producerVersion string
	validator       func(*Model) error
	skipValidation  bool
}

// Option configures an Export call.
type Option func(*exportConfig)

// WithNamingStrategy sets the strategy that names nodes and their outputs.
// The default is CounterNaming.
func WithNamingStrategy(s NamingStrategy) Option {
	return func(c *exportConfig) { c.naming = s }
}

// WithInputNames sets the graph input names. Without it inputs are named
// "data_0", "data_1", ...
func WithInputNames(names ...string) Option {
	return func(c *exportConfig) { c.inputNames = names }
}

// WithInputShapes declares the input shapes in host axis order. Shapes may
// contain DimUnknown entries, and a nil entry leaves even the rank open.
func WithInputShapes(shapes ...Shape) Option {
	return func(c *exportConfig) { c.inputShapes = shapes }
}

// WithValidator replaces the default post-export validation (Check) with a
// custom one, e.g. one backed by an ONNX runtime.
func WithValidator(v func(*Model) error) Option {
	return func(c *exportConfig) { c.validator = v }
}

// WithoutValidation skips post-export validation entirely.
func WithoutValidation() Option {
	return func(c *exportConfig) { c.skipValidation = true }
}

// WithProducer overrides the producer metadata written into the model.
func WithProducer(name, version string) Option {
	return func(c *exportConfig) {
		c.producerName = name
		c.producerVersion = version
	}
}

// Export traces fn and assembles the resulting graph into a Model.
//
// fn is either a GraphFunc or a function whose parameters and results are all
// *Probe; in the latter form the parameter count fixes the number of graph
// inputs. Layer applications inside fn go through Apply (or the free traced
// operators like Relu, Add, Reshape); the graph records them in application
// order.
//
// Trace-time failures (unsupported layers, shape mismatches, name collisions)
// are reported as errors, not panics.
func Export(graphName string, fn any, opts ...Option) (*Model, error) {
	cfg := &exportConfig{
		naming:          CounterNaming(),
		producerName:    "onnx-export",
		producerVersion: Version,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.validator == nil {
		cfg.validator = Check
	}

	gf, arity, err := asGraphFunc(fn)
	if err != nil {
		return nil, errors.WithMessagef(err, "onnx.Export(%q)", graphName)
	}
	numInputs, err := resolveInputCount(arity, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "onnx.Export(%q)", graphName)
	}

	b := newGraphBuilder(graphName)
	err = exceptions.TryCatch[error](func() {
		inputs := make([]*Probe, numInputs)
		for i := range inputs {
			name := fmt.Sprintf("data_%d", i)
			if i < len(cfg.inputNames) {
				name = cfg.inputNames[i]
			}
			var shape Shape
			if i < len(cfg.inputShapes) {
				shape = cfg.inputShapes[i]
			}
			inputs[i] = b.newInput(name, shape, cfg.naming)
		}
		outputs := gf(inputs)
		if len(outputs) == 0 {
			exceptions.Panicf("model function returned no outputs")
		}
		for _, out := range outputs {
			if out == nil || out.graph != b {
				exceptions.Panicf("model function returned a probe from a different export")
			}
			b.addOutput(out.name, out.shape)
		}
		b.finalize()
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "onnx.Export(%q) failed while tracing", graphName)
	}

	m := &Model{Proto: protos.ModelProto{
		IrVersion:       IRVersion,
		ProducerName:    cfg.producerName,
		ProducerVersion: cfg.producerVersion,
		Graph:           &b.proto,
		OpsetImport:     []*protos.OperatorSetIdProto{{Version: OpsetVersion}},
	}}
	klog.V(1).Infof("exported %q: %d nodes, %d initializers, %d inputs, %d outputs",
		graphName, len(b.proto.Node), len(b.proto.Initializer), len(b.proto.Input), len(b.proto.Output))

	if !cfg.skipValidation {
		if err := cfg.validator(m); err != nil {
			return nil, errors.WithMessagef(err, "onnx.Export(%q) produced an invalid model", graphName)
		}
	}
	return m, nil
}

var probeType = reflect.TypeOf((*Probe)(nil))

// asGraphFunc adapts fn to GraphFunc form. The returned arity is the number of
// graph inputs fn demands, or -1 when fn is already a GraphFunc and the count
// must come from options.
func asGraphFunc(fn any) (GraphFunc, int, error) {
	if gf, ok := fn.(GraphFunc); ok {
		return gf, -1, nil
	}
	if gf, ok := fn.(func(inputs []*Probe) []*Probe); ok {
		return gf, -1, nil
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if fn == nil || t.Kind() != reflect.Func {
		return nil, 0, errors.Errorf("model function must be a func, got %T", fn)
	}
	if t.IsVariadic() {
		return nil, 0, errors.Errorf("model function must not be variadic, got %s", t)
	}
	if t.NumIn() == 0 || t.NumOut() == 0 {
		return nil, 0, errors.Errorf("model function must take and return at least one *onnx.Probe, got %s", t)
	}
	for i := 0; i < t.NumIn(); i++ {
		if t.In(i) != probeType {
			return nil, 0, errors.Errorf("model function parameter %d must be *onnx.Probe, got %s", i, t.In(i))
		}
	}
	for i := 0; i < t.NumOut(); i++ {
		if t.Out(i) != probeType {
			return nil, 0, errors.Errorf("model function result %d must be *onnx.Probe, got %s", i, t.Out(i))
		}
	}
	arity := t.NumIn()
	gf := func(inputs []*Probe) []*Probe {
		args := make([]reflect.Value, len(inputs))
		for i, in := range inputs {
			args[i] = reflect.ValueOf(in)
		}
		results := v.Call(args)
		outs := make([]*Probe, len(results))
		for i, r := range results {
			outs[i], _ = r.Interface().(*Probe)
		}
		return outs
	}
	return gf, arity, nil
}

// resolveInputCount reconciles the function arity with the input names and
// shapes given through options.
func resolveInputCount(arity int, cfg *exportConfig) (int, error) {
	n := arity
	if n < 0 {
		switch {
		case len(cfg.inputNames) > 0:
			n = len(cfg.inputNames)
		case len(cfg.inputShapes) > 0:
			n = len(cfg.inputShapes)
		default:
			return 0, errors.New("a GraphFunc needs WithInputNames or WithInputShapes to fix the input count")
		}
	}
	if len(cfg.inputNames) > 0 && len(cfg.inputNames) != n {
		return 0, errors.Errorf("%d input names given for %d graph inputs", len(cfg.inputNames), n)
	}
	if len(cfg.inputShapes) > 0 && len(cfg.inputShapes) != n {
		return 0, errors.Errorf("%d input shapes given for %d graph inputs", len(cfg.inputShapes), n)
	}
	return n, nil
}
