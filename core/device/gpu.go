package device

import (
	"k8s.io/klog/v2"
)

// GPUContext is the state shared by every GPU device in the process: the kernel
// tuner and the path used to persist compiled-binary/tuning caches across runs.
// Its lifetime is the process lifetime.
type GPUContext struct {
	tuner       Tuner
	storagePath string
}

// NewGPUContext returns a GPU context persisting caches under storagePath. An empty
// path disables persistence.
func NewGPUContext(storagePath string) *GPUContext {
	if storagePath == "" {
		klog.V(1).Info("gpu context: persistent cache disabled")
	} else {
		klog.V(1).Infof("gpu context: persistent cache at %q", storagePath)
	}
	return &GPUContext{storagePath: storagePath}
}

// StoragePath returns the cache directory, or "" when persistence is disabled.
func (c *GPUContext) StoragePath() string { return c.storagePath }

// Tuner returns the kernel tuner, or nil when the GPU runtime provides none.
func (c *GPUContext) Tuner() Tuner { return c.tuner }

// SetTuner installs the runtime's kernel tuner. Called by GPU runtime
// implementations during their construction.
func (c *GPUContext) SetTuner(t Tuner) { c.tuner = t }

// GPURuntimeFactory constructs the runtime handle for a new GPU device.
type GPURuntimeFactory func(ctx *GPUContext, priority PriorityHint) GPURuntime

var gpuRuntimeFactory GPURuntimeFactory

// RegisterGPURuntime installs the factory used to build runtime handles for GPU
// devices. The real GPU runtime package calls this from its init; tests may install
// a recording fake. It must be called before the first GPU device is constructed.
func RegisterGPURuntime(factory GPURuntimeFactory) {
	gpuRuntimeFactory = factory
}

// GPUDevice executes networks asynchronously on a GPU through its runtime handle.
type GPUDevice struct {
	runtime GPURuntime
}

var _ Device = (*GPUDevice)(nil)

// NewGPUDevice returns a GPU device bound to the shared context. When no runtime has
// been registered, the device gets an inert runtime that accepts configuration and
// completes all work immediately, so device-independent plumbing stays testable on
// machines without a GPU.
func NewGPUDevice(ctx *GPUContext, priority PriorityHint) *GPUDevice {
	factory := gpuRuntimeFactory
	if factory == nil {
		klog.V(1).Info("gpu device: no runtime registered, using inert runtime")
		factory = newInertRuntime
	}
	return &GPUDevice{runtime: factory(ctx, priority)}
}

// Type implements Device.
func (d *GPUDevice) Type() Type { return GPU }

// GPURuntime implements Device.
func (d *GPUDevice) GPURuntime() GPURuntime { return d.runtime }

// inertRuntime stands in when no GPU runtime is linked into the binary. It tracks
// the active memory type and its queue reports all work as already complete.
type inertRuntime struct {
	memType MemoryType
}

func newInertRuntime(_ *GPUContext, _ PriorityHint) GPURuntime {
	return &inertRuntime{memType: MemoryImage}
}

func (r *inertRuntime) SetMemoryType(m MemoryType) { r.memType = m }

func (r *inertRuntime) MemoryType() MemoryType { return r.memType }

func (r *inertRuntime) CommandQueue() CommandQueue { return inertQueue{} }

type inertQueue struct{}

func (inertQueue) Drain() {}
