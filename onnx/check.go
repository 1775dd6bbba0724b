package onnx

import (
	"github.com/pkg/errors"

	"github.com/tensorkit/onnx-export/internal/protos"
)

// Check is the default structural validation run after every export. It
// re-derives from the serialized proto alone the invariants the builder
// maintains during tracing: a single graph, one flat namespace without
// collisions, producers strictly before consumers, initializer buffers
// matching their declared dimensions, and outputs that refer to traced
// values.
func Check(m *Model) error {
	if m == nil || m.Proto.Graph == nil {
		return errors.New("model has no graph")
	}
	g := m.Proto.Graph
	if g.Name == "" {
		return errors.New("graph has no name")
	}
	if len(m.Proto.OpsetImport) == 0 {
		return errors.New("model declares no opset import")
	}

	defined := make(map[string]struct{})
	claim := func(kind, name string) error {
		if name == "" {
			return errors.Errorf("%s has an empty name", kind)
		}
		if _, dup := defined[name]; dup {
			return errors.Errorf("%s %q collides with an earlier name", kind, name)
		}
		defined[name] = struct{}{}
		return nil
	}

	for _, in := range g.Input {
		if err := claim("graph input", in.Name); err != nil {
			return err
		}
	}
	for _, t := range g.Initializer {
		if err := claim("initializer", t.Name); err != nil {
			return err
		}
		if err := checkInitializerData(t); err != nil {
			return err
		}
	}
	for _, n := range g.Node {
		for _, in := range n.Input {
			if _, ok := defined[in]; !ok {
				return errors.Errorf("node %q (%s) consumes %q before it is defined", n.Name, n.OpType, in)
			}
		}
		if n.OpType == "" {
			return errors.Errorf("node %q has no op_type", n.Name)
		}
		if len(n.Output) == 0 {
			return errors.Errorf("node %q has no outputs", n.Name)
		}
		for _, out := range n.Output {
			if err := claim("node output", out); err != nil {
				return err
			}
		}
	}
	declared := make(map[string]struct{}, len(g.Output))
	for _, out := range g.Output {
		if _, ok := defined[out.Name]; !ok {
			return errors.Errorf("graph output %q is not produced by any node or input", out.Name)
		}
		if _, dup := declared[out.Name]; dup {
			return errors.Errorf("graph output %q declared twice", out.Name)
		}
		declared[out.Name] = struct{}{}
	}
	if len(g.Output) == 0 {
		return errors.New("graph has no outputs")
	}
	return nil
}

func checkInitializerData(t *protos.TensorProto) error {
	want := t.NumElements()
	var got int64
	switch protos.TensorProto_DataType(t.DataType) {
	case protos.TensorProto_FLOAT:
		got = int64(len(t.FloatData))
		if len(t.RawData) > 0 {
			got = int64(len(t.RawData) / 4)
		}
	case protos.TensorProto_INT64:
		got = int64(len(t.Int64Data))
		if len(t.RawData) > 0 {
			got = int64(len(t.RawData) / 8)
		}
	default:
		return errors.Errorf("initializer %q has unsupported data type %d", t.Name, t.DataType)
	}
	if got != want {
		return errors.Errorf("initializer %q has %d elements for dims %v (want %d)", t.Name, got, t.Dims, want)
	}
	return nil
}
