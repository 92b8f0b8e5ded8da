package device

import (
	"runtime"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// CPUDevice executes networks synchronously on the host CPU.
type CPUDevice struct {
	numThreads       int
	policy           AffinityPolicy
	lowPrecisionGemm bool
}

var _ Device = (*CPUDevice)(nil)

// NewCPUDevice returns a CPU device with the given worker thread count, core-affinity
// policy and low-precision matrix-multiply flag. A non-positive numThreads means one
// thread per available core. An unknown policy is a broken configuration and panics.
func NewCPUDevice(numThreads int, policy AffinityPolicy, lowPrecisionGemm bool) *CPUDevice {
	if policy < AffinityNone || policy > AffinityLittleOnly {
		exceptions.Panicf("device.NewCPUDevice: invalid affinity policy %d", int(policy))
	}
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	klog.V(1).Infof("cpu device: %d threads, affinity=%s, low-precision gemm=%v",
		numThreads, policy, lowPrecisionGemm)
	return &CPUDevice{
		numThreads:       numThreads,
		policy:           policy,
		lowPrecisionGemm: lowPrecisionGemm,
	}
}

// Type implements Device.
func (d *CPUDevice) Type() Type { return CPU }

// GPURuntime implements Device; it is always nil for a CPU device.
func (d *CPUDevice) GPURuntime() GPURuntime { return nil }

// NumThreads returns the configured worker thread count.
func (d *CPUDevice) NumThreads() int { return d.numThreads }

// Affinity returns the configured core-affinity policy.
func (d *CPUDevice) Affinity() AffinityPolicy { return d.policy }

// LowPrecisionGemm returns whether reduced-precision matrix multiplication was
// requested.
func (d *CPUDevice) LowPrecisionGemm() bool { return d.lowPrecisionGemm }
