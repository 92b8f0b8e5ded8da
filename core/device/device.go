// Package device abstracts the compute backends the engine can run a network on.
//
// A Device is bound to one backend kind (CPU or GPU). GPU devices additionally expose
// a GPURuntime handle with a mutable active memory representation and a command queue.
// The actual GPU runtime implementation (kernels, tuner, compiled-binary cache) is
// external: it registers itself through RegisterGPURuntime.
package device

import "github.com/gomlx/exceptions"

// Type enumerates the supported backend kinds.
type Type int

const (
	CPU Type = iota
	GPU
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		exceptions.Panicf("invalid device.Type(%d)", int(t))
	}
	return ""
}

// AffinityPolicy selects which CPU cores the engine's worker threads are pinned to.
type AffinityPolicy int

const (
	AffinityNone AffinityPolicy = iota
	AffinityBigOnly
	AffinityLittleOnly
)

// String implements fmt.Stringer.
func (p AffinityPolicy) String() string {
	switch p {
	case AffinityNone:
		return "none"
	case AffinityBigOnly:
		return "big-only"
	case AffinityLittleOnly:
		return "little-only"
	default:
		exceptions.Panicf("invalid device.AffinityPolicy(%d)", int(p))
	}
	return ""
}

// MemoryType is one of the GPU backend's tensor storage layouts: an opaque image-like
// representation or a linear buffer.
type MemoryType int

const (
	MemoryImage MemoryType = iota
	MemoryBuffer
)

// String implements fmt.Stringer.
func (m MemoryType) String() string {
	switch m {
	case MemoryImage:
		return "image"
	case MemoryBuffer:
		return "buffer"
	default:
		exceptions.Panicf("invalid device.MemoryType(%d)", int(m))
	}
	return ""
}

// PriorityHint is the scheduling priority requested for a GPU command queue.
type PriorityHint int

const (
	PriorityDefault PriorityHint = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
)

// Device is a compute backend capability object.
type Device interface {
	// Type returns the backend kind this device is bound to.
	Type() Type

	// GPURuntime returns the device's GPU runtime handle, or nil for non-GPU devices.
	GPURuntime() GPURuntime
}

// GPURuntime is the handle GPU devices expose to control execution.
type GPURuntime interface {
	// SetMemoryType switches the active tensor storage layout for subsequently
	// compiled networks.
	SetMemoryType(m MemoryType)

	// MemoryType returns the active tensor storage layout.
	MemoryType() MemoryType

	// CommandQueue returns the queue GPU work is enqueued on.
	CommandQueue() CommandQueue
}

// CommandQueue is a GPU device's work queue.
type CommandQueue interface {
	// Drain blocks the calling thread until every enqueued command has completed.
	// It is a hard drain, not a poll or a fence check, and has no failure channel.
	Drain()
}

// Tuner selects tuned kernel launch parameters. Implementations belong to the GPU
// runtime; the engine only passes the handle through.
type Tuner interface {
	// ParamsFor returns tuned launch parameters for the given kernel key, when known.
	ParamsFor(kernel string) (params []int, ok bool)
}
