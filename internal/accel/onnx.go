package accel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/tiling"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXRuntime builds sessions from exported Real-ESRGAN ONNX graphs. All sessions share
// one device, so Run calls are serialized on a single mutex.
type ONNXRuntime struct {
	device   domain.Device
	deviceID int
	mu       sync.Mutex
}

var _ domain.Runtime = (*ONNXRuntime)(nil)

// NewONNXRuntime loads the ONNX Runtime shared library from libPath (or the platform default
// when empty) and initializes the process-wide environment.
func NewONNXRuntime(libPath string, device domain.Device, deviceID int) (*ONNXRuntime, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	slog.Info("ONNX Runtime initialized", "version", ort.GetVersion(), "device", device.Kind, "gpu", device.Name)

	return &ONNXRuntime{device: device, deviceID: deviceID}, nil
}

func (r *ONNXRuntime) Name() string {
	return "onnx"
}

func (r *ONNXRuntime) NewSession(_ context.Context, key domain.SessionKey, spec domain.ModelSpec, weightsPath string, tile domain.TileConfig) (domain.Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", weightsPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("graph %s has %d inputs and %d outputs, want 1 and 1", weightsPath, len(inputs), len(outputs))
	}

	opts, err := r.sessionOptions(tile.Half)
	if err != nil {
		return nil, err
	}
	defer func() { _ = opts.Destroy() }()

	s, err := ort.NewDynamicAdvancedSession(weightsPath, []string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", spec.Name, err)
	}

	net := &onnxNetwork{session: s, scale: spec.NativeScale, mu: &r.mu}
	return newSession(key, net, tile, s.Destroy), nil
}

func (r *ONNXRuntime) sessionOptions(half bool) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	if r.device.Kind != domain.DeviceCUDA {
		return opts, nil
	}

	if half {
		if err := r.appendTensorRT(opts); err != nil {
			slog.Warn("TensorRT unavailable, using CUDA only", "error", err)
		}
	}

	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("cuda provider options: %w", err)
	}
	defer func() { _ = cudaOpts.Destroy() }()

	if err := cudaOpts.Update(map[string]string{"device_id": fmt.Sprint(r.deviceID)}); err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("cuda provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("append cuda provider: %w", err)
	}
	return opts, nil
}

func (r *ONNXRuntime) appendTensorRT(opts *ort.SessionOptions) error {
	trtOpts, err := ort.NewTensorRTProviderOptions()
	if err != nil {
		return err
	}
	defer func() { _ = trtOpts.Destroy() }()

	if err := trtOpts.Update(map[string]string{
		"device_id":       fmt.Sprint(r.deviceID),
		"trt_fp16_enable": "1",
	}); err != nil {
		return err
	}
	return opts.AppendExecutionProviderTensorRT(trtOpts)
}

// Close tears down the process-wide ONNX Runtime environment.
func (r *ONNXRuntime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type onnxNetwork struct {
	session *ort.DynamicAdvancedSession
	scale   int
	mu      *sync.Mutex
}

func (n *onnxNetwork) Scale() int {
	return n.scale
}

func (n *onnxNetwork) Infer(_ context.Context, in *tiling.Tensor) (*tiling.Tensor, error) {
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(in.Height), int64(in.Width)), in.Data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []ort.Value{nil}

	n.mu.Lock()
	err = n.session.Run([]ort.Value{input}, outputs)
	n.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("output is not a float32 tensor")
	}
	return tensorFromOutput(out.GetShape(), out.GetData())
}

// tensorFromOutput copies an NCHW output with N=1 and C=3 into a tiling tensor.
func tensorFromOutput(shape ort.Shape, data []float32) (*tiling.Tensor, error) {
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	t := tiling.NewTensor(int(shape[3]), int(shape[2]))
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("output shape %v holds %d values, got %d", shape, len(t.Data), len(data))
	}
	copy(t.Data, data)
	return t, nil
}
