// Package ortcheck validates exported models by loading them into an actual
// ONNX Runtime through its C library. It is kept out of the onnx package so
// that exporting never requires the shared library; plug it in per export via
// onnx.WithValidator(ortcheck.Hook()).
package ortcheck

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/tensorkit/onnx-export/onnx"
)

// SetSharedLibraryPath points the runtime binding at the onnxruntime shared
// library. Required before Validate on platforms where the library is not on
// the default search path.
func SetSharedLibraryPath(path string) {
	ort.SetSharedLibraryPath(path)
}

// Validate loads the model file into ONNX Runtime and queries its input and
// output metadata, which forces the runtime's own model verification.
func Validate(modelPath string) error {
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX Runtime environment")
	}
	defer func() { _ = ort.DestroyEnvironment() }()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return errors.Wrapf(err, "ONNX Runtime rejected model %s", modelPath)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return errors.Errorf("ONNX Runtime reports %d inputs and %d outputs for %s",
			len(inputs), len(outputs), modelPath)
	}
	return nil
}

// Hook adapts Validate for onnx.WithValidator: the model is serialized to a
// temporary file, loaded by the runtime, and the file removed.
func Hook() func(*onnx.Model) error {
	return func(m *onnx.Model) error {
		dir, err := os.MkdirTemp("", "ortcheck")
		if err != nil {
			return errors.Wrap(err, "failed to create temporary directory")
		}
		defer func() { _ = os.RemoveAll(dir) }()
		path := filepath.Join(dir, "model.onnx")
		if err := m.WriteFile(path); err != nil {
			return err
		}
		return Validate(path)
	}
}
