package ai

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime initializes the ONNX Runtime environment once per process.
// An empty libPath keeps the library's default lookup.
func InitRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return runtimeErr
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// onnxSession bundles a session with its preallocated tensors.
type onnxSession struct {
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

func newOnnxSession(modelPath string, inputNames []string, inputShapes []ort.Shape, outputNames []string, outputShapes []ort.Shape) (*onnxSession, error) {
	s := &onnxSession{}

	var inputs, outputs []ort.ArbitraryTensor
	for _, shape := range inputShapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		s.inputs = append(s.inputs, t)
		inputs = append(inputs, t)
	}
	for _, shape := range outputShapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("failed to create output tensor: %w", err)
		}
		s.outputs = append(s.outputs, t)
		outputs = append(outputs, t)
	}

	session, err := ort.NewAdvancedSession(modelPath, inputNames, outputNames, inputs, outputs, nil)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}
	s.session = session
	return s, nil
}

// Destroy frees the session and every tensor.
func (s *onnxSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	for _, t := range s.inputs {
		t.Destroy()
	}
	for _, t := range s.outputs {
		t.Destroy()
	}
}
