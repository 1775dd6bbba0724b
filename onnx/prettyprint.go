package onnx

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
)

// String implements fmt.Stringer, and pretty prints model information.
func (m *Model) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("ONNX Model:\n")
	if m.Proto.Graph != nil && m.Proto.Graph.Name != "" {
		w("\tGraph:\t%s\n", m.Proto.Graph.Name)
	}
	if m.Proto.ProducerName != "" {
		w("\tProducer:\t%s / %s\n", m.Proto.ProducerName, m.Proto.ProducerVersion)
	}
	w("\tIR Version:\t%d\n", m.Proto.IrVersion)
	w("\tOperator Sets:\t[")
	for ii, opSetId := range m.Proto.OpsetImport {
		if ii > 0 {
			w(", ")
		}
		if opSetId.Domain != "" {
			w("v%d (%s)", opSetId.Version, opSetId.Domain)
		} else {
			w("v%d", opSetId.Version)
		}
	}
	w("]\n")
	if m.Proto.Graph == nil {
		return buf.String()
	}

	w("\t# nodes:\t%d\n", len(m.Proto.Graph.Node))
	opTypesSet := make(map[string]struct{})
	for _, n := range m.Proto.Graph.Node {
		opTypesSet[n.GetOpType()] = struct{}{}
	}
	w("\tOp types:\t%#v\n", slices.Sorted(maps.Keys(opTypesSet)))
	w("\t# initializers:\t%d\n", len(m.Proto.Graph.Initializer))

	w("\tInputs: [")
	for ii, in := range m.Proto.Graph.Input {
		if ii > 0 {
			w(", ")
		}
		w("%s", in.Name)
	}
	w("]\n\tOutputs: [")
	for ii, out := range m.Proto.Graph.Output {
		if ii > 0 {
			w(", ")
		}
		w("%s", out.Name)
	}
	w("]\n")
	return buf.String()
}
