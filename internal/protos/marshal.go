package protos

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes the model to the ONNX wire format.
func Marshal(m *ModelProto) []byte {
	var b []byte
	b = appendVarintField(b, 1, m.IrVersion)
	b = appendStringField(b, 2, m.ProducerName)
	b = appendStringField(b, 3, m.ProducerVersion)
	b = appendStringField(b, 4, m.Domain)
	b = appendVarintField(b, 5, m.ModelVersion)
	b = appendStringField(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessageField(b, 7, marshalGraph(m.Graph))
	}
	for _, opset := range m.OpsetImport {
		b = appendMessageField(b, 8, marshalOpsetID(opset))
	}
	return b
}

func marshalOpsetID(o *OperatorSetIdProto) []byte {
	var b []byte
	b = appendStringField(b, 1, o.Domain)
	// version is always encoded, 0 is not a meaningful opset.
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.Version))
	return b
}

func marshalGraph(g *GraphProto) []byte {
	var b []byte
	for _, node := range g.Node {
		b = appendMessageField(b, 1, marshalNode(node))
	}
	b = appendStringField(b, 2, g.Name)
	for _, init := range g.Initializer {
		b = appendMessageField(b, 5, marshalTensor(init))
	}
	b = appendStringField(b, 10, g.DocString)
	for _, vi := range g.Input {
		b = appendMessageField(b, 11, marshalValueInfo(vi))
	}
	for _, vi := range g.Output {
		b = appendMessageField(b, 12, marshalValueInfo(vi))
	}
	for _, vi := range g.ValueInfo {
		b = appendMessageField(b, 13, marshalValueInfo(vi))
	}
	return b
}

func marshalNode(n *NodeProto) []byte {
	var b []byte
	for _, in := range n.Input {
		b = appendStringField(b, 1, in)
	}
	for _, out := range n.Output {
		b = appendStringField(b, 2, out)
	}
	b = appendStringField(b, 3, n.Name)
	b = appendStringField(b, 4, n.OpType)
	for _, attr := range n.Attribute {
		b = appendMessageField(b, 5, marshalAttribute(attr))
	}
	b = appendStringField(b, 7, n.Domain)
	return b
}

func marshalAttribute(a *AttributeProto) []byte {
	var b []byte
	b = appendStringField(b, 1, a.Name)
	switch a.Type {
	case AttributeProto_FLOAT:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProto_INT:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I))
	case AttributeProto_STRING:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case AttributeProto_TENSOR:
		if a.T != nil {
			b = appendMessageField(b, 5, marshalTensor(a.T))
		}
	case AttributeProto_FLOATS:
		b = appendPackedFloats(b, 7, a.Floats)
	case AttributeProto_INTS:
		b = appendPackedVarints(b, 8, a.Ints)
	case AttributeProto_STRINGS:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 9, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	}
	b = protowire.AppendTag(b, 20, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Type))
	return b
}

func marshalTensor(t *TensorProto) []byte {
	var b []byte
	b = appendPackedVarints(b, 1, t.Dims)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DataType))
	b = appendPackedFloats(b, 4, t.FloatData)
	b = appendPackedVarints(b, 7, t.Int64Data)
	b = appendStringField(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	return b
}

func marshalValueInfo(vi *ValueInfoProto) []byte {
	var b []byte
	b = appendStringField(b, 1, vi.Name)
	if vi.Type != nil {
		b = appendMessageField(b, 2, marshalType(vi.Type))
	}
	return b
}

func marshalType(t *TypeProto) []byte {
	var b []byte
	if t.TensorType != nil {
		b = appendMessageField(b, 1, marshalTensorType(t.TensorType))
	}
	return b
}

func marshalTensorType(t *TypeProto_Tensor) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.ElemType))
	if t.Shape != nil {
		b = appendMessageField(b, 2, marshalTensorShape(t.Shape))
	}
	return b
}

func marshalTensorShape(s *TensorShapeProto) []byte {
	var b []byte
	for _, d := range s.Dim {
		b = appendMessageField(b, 1, marshalDimension(d))
	}
	return b
}

func marshalDimension(d *TensorShapeProto_Dimension) []byte {
	var b []byte
	if d.DimParam != "" {
		return appendStringField(b, 2, d.DimParam)
	}
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.DimValue))
	return b
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// appendPackedVarints encodes a packed repeated int64 field. Negative values
// use the standard 10-byte two's complement varint form.
func appendPackedVarints(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, len(vals))
	for _, v := range vals {
		payload = protowire.AppendVarint(payload, uint64(v))
	}
	return appendMessageField(b, num, payload)
}

// appendPackedFloats encodes a packed repeated float field (fixed32 payload).
func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		payload = protowire.AppendFixed32(payload, math.Float32bits(v))
	}
	return appendMessageField(b, num, payload)
}
