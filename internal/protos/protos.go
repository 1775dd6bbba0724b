// Package protos holds the writer-side subset of the ONNX protocol buffer
// messages (onnx.proto) needed to serialize exported models.
//
// The exporter never parses ONNX files, so instead of carrying the full
// generated code we keep hand-maintained structs with the original field
// numbers and encode them directly with protowire (see marshal.go). The
// resulting bytes are wire-compatible with onnx.ModelProto.
package protos

// TensorProto_DataType mirrors onnx.TensorProto.DataType.
type TensorProto_DataType int32

const (
	TensorProto_UNDEFINED TensorProto_DataType = 0
	TensorProto_FLOAT     TensorProto_DataType = 1
	TensorProto_UINT8     TensorProto_DataType = 2
	TensorProto_INT8      TensorProto_DataType = 3
	TensorProto_UINT16    TensorProto_DataType = 4
	TensorProto_INT16     TensorProto_DataType = 5
	TensorProto_INT32     TensorProto_DataType = 6
	TensorProto_INT64     TensorProto_DataType = 7
	TensorProto_STRING    TensorProto_DataType = 8
	TensorProto_BOOL      TensorProto_DataType = 9
	TensorProto_FLOAT16   TensorProto_DataType = 10
	TensorProto_DOUBLE    TensorProto_DataType = 11
	TensorProto_UINT32    TensorProto_DataType = 12
	TensorProto_UINT64    TensorProto_DataType = 13
	TensorProto_BFLOAT16  TensorProto_DataType = 16
)

// AttributeProto_AttributeType mirrors onnx.AttributeProto.AttributeType.
type AttributeProto_AttributeType int32

const (
	AttributeProto_UNDEFINED AttributeProto_AttributeType = 0
	AttributeProto_FLOAT     AttributeProto_AttributeType = 1
	AttributeProto_INT       AttributeProto_AttributeType = 2
	AttributeProto_STRING    AttributeProto_AttributeType = 3
	AttributeProto_TENSOR    AttributeProto_AttributeType = 4
	AttributeProto_FLOATS    AttributeProto_AttributeType = 6
	AttributeProto_INTS      AttributeProto_AttributeType = 7
	AttributeProto_STRINGS   AttributeProto_AttributeType = 8
)

// ModelProto is the top-level envelope: versioning, producer metadata and
// exactly one graph.
type ModelProto struct {
	IrVersion       int64  // field 1
	ProducerName    string // field 2
	ProducerVersion string // field 3
	Domain          string // field 4
	ModelVersion    int64  // field 5
	DocString       string // field 6
	Graph           *GraphProto
	OpsetImport     []*OperatorSetIdProto
}

// OperatorSetIdProto identifies one operator set the model relies on.
type OperatorSetIdProto struct {
	Domain  string // field 1
	Version int64  // field 2
}

// GraphProto holds the nodes in topological order plus the named tensors and
// value descriptors that anchor them.
type GraphProto struct {
	Node        []*NodeProto      // field 1
	Name        string            // field 2
	Initializer []*TensorProto    // field 5
	DocString   string            // field 10
	Input       []*ValueInfoProto // field 11
	Output      []*ValueInfoProto // field 12
	ValueInfo   []*ValueInfoProto // field 13
}

// NodeProto is one operator instance.
type NodeProto struct {
	Input     []string // field 1
	Output    []string // field 2
	Name      string   // field 3
	OpType    string   // field 4
	Attribute []*AttributeProto
	Domain    string // field 7
}

// AttributeProto is a typed scalar or list hyperparameter of a node.
type AttributeProto struct {
	Name    string  // field 1
	F       float32 // field 2
	I       int64   // field 3
	S       []byte  // field 4
	T       *TensorProto
	Floats  []float32 // field 7
	Ints    []int64   // field 8
	Strings [][]byte  // field 9
	Type    AttributeProto_AttributeType
}

// TensorProto is a named constant tensor (initializer). The data buffer is in
// row-major order for Dims.
type TensorProto struct {
	Dims      []int64 // field 1
	DataType  int32   // field 2
	FloatData []float32
	Int64Data []int64
	Name      string // field 8
	RawData   []byte // field 9
}

// ValueInfoProto declares the type and (possibly partial) shape of a graph
// input, output or intermediate value.
type ValueInfoProto struct {
	Name string // field 1
	Type *TypeProto
}

// TypeProto only carries the tensor_type arm of the ONNX oneof.
type TypeProto struct {
	TensorType *TypeProto_Tensor // field 1
}

// TypeProto_Tensor is the element type plus shape of a tensor value.
type TypeProto_Tensor struct {
	ElemType int32 // field 1
	Shape    *TensorShapeProto
}

// TensorShapeProto is an ordered list of dimensions.
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension // field 1
}

// TensorShapeProto_Dimension is one dimension: a concrete value or a symbolic
// parameter name. DimParam wins when non-empty.
type TensorShapeProto_Dimension struct {
	DimValue int64  // field 1
	DimParam string // field 2
}

// GetName returns the graph's name, tolerating nil graphs.
func (g *GraphProto) GetName() string {
	if g == nil {
		return ""
	}
	return g.Name
}

// GetOpType returns the node's operator tag, tolerating nil nodes.
func (n *NodeProto) GetOpType() string {
	if n == nil {
		return ""
	}
	return n.OpType
}

// NumElements returns the product of the tensor's dimensions.
func (t *TensorProto) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}
