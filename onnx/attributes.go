package onnx

import "github.com/tensorkit/onnx-export/internal/protos"

// Attribute constructors for the handful of types the translators emit.

func attrFloat(name string, v float32) *protos.AttributeProto {
	return &protos.AttributeProto{Name: name, Type: protos.AttributeProto_FLOAT, F: v}
}

func attrInt(name string, v int64) *protos.AttributeProto {
	return &protos.AttributeProto{Name: name, Type: protos.AttributeProto_INT, I: v}
}

func attrInts(name string, v []int64) *protos.AttributeProto {
	return &protos.AttributeProto{Name: name, Type: protos.AttributeProto_INTS, Ints: v}
}

func attrStrings(name string, vs []string) *protos.AttributeProto {
	bs := make([][]byte, len(vs))
	for i, v := range vs {
		bs[i] = []byte(v)
	}
	return &protos.AttributeProto{Name: name, Type: protos.AttributeProto_STRINGS, Strings: bs}
}
