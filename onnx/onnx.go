// Package onnx exports host neural-network models to ONNX by tracing.
//
//   - Export: runs a model function over Probe placeholders and assembles the
//     resulting graph into a Model.
//   - Apply: translates one host layer application inside a traced function.
//   - Model: the assembled ONNX model, ready to serialize with Bytes, Write
//     or WriteFile.
//
// Tracing records operators in application order, so the emitted node list is
// topologically sorted by construction. Errors during a trace are raised as
// exceptions and recovered by Export, which returns them as ordinary errors.
package onnx

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/tensorkit/onnx-export/internal/protos"
)

const (
	// IRVersion is the ONNX IR version written into exported models.
	IRVersion = 6

	// OpsetVersion is the default-domain opset exported models target.
	OpsetVersion = 11

	// Version of this package, reported as producer_version.
	Version = "0.1.0"
)

// Model is an exported ONNX model.
type Model struct {
	Proto protos.ModelProto
}

// Bytes serializes the model to the ONNX wire format.
func (m *Model) Bytes() []byte {
	return protos.Marshal(&m.Proto)
}

// Write serializes the model to w.
func (m *Model) Write(w io.Writer) error {
	if _, err := w.Write(m.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write ONNX model %q", m.Proto.Graph.GetName())
	}
	return nil
}

// WriteFile serializes the model to a file.
func (m *Model) WriteFile(filePath string) error {
	if err := os.WriteFile(filePath, m.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write ONNX model to %s", filePath)
	}
	return nil
}
