package opstest

import (
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/ferrite-ml/ferrite/core"
	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/core/opdef"
	"github.com/ferrite-ml/ferrite/types/shapes"
)

// hostWorkspace is the in-memory tensor store a harness uses when no production
// workspace is injected. It mirrors how the original test binaries link the real
// store: enough behavior for kernel tests, none of the storage-reuse machinery.
type hostWorkspace struct {
	tensors map[string]*core.Tensor
}

var _ core.Workspace = (*hostWorkspace)(nil)

func newHostWorkspace() *hostWorkspace {
	return &hostWorkspace{tensors: make(map[string]*core.Tensor)}
}

// GetTensor implements core.Workspace.
func (ws *hostWorkspace) GetTensor(name string) *core.Tensor {
	return ws.tensors[name]
}

// CreateTensor implements core.Workspace.
func (ws *hostWorkspace) CreateTensor(name string, shape shapes.Shape) *core.Tensor {
	t := core.NewTensor(shape)
	ws.tensors[name] = t
	return t
}

// RemoveTensor implements core.Workspace.
func (ws *hostWorkspace) RemoveTensor(name string) {
	delete(ws.tensors, name)
}

// PreallocateOutputTensors implements core.Workspace. Outputs with a declared shape
// record get storage up front; the rest are left for the executor to allocate at run
// time. The optimizer's reuse plan is the production workspace's concern and is not
// consulted here.
func (ws *hostWorkspace) PreallocateOutputTensors(def *opdef.NetworkDef,
	_ core.MemoryOptimizer, dev device.Device) error {
	var totalBytes uintptr
	allocated := 0
	for _, op := range def.Ops {
		if len(op.OutputShapes) != len(op.Outputs) {
			continue
		}
		for i, name := range op.Outputs {
			dims := op.OutputShapes[i]
			shape := shapes.Make(op.OutputDType(i), dims...)
			ws.CreateTensor(name, shape)
			totalBytes += shape.Memory()
			allocated++
		}
	}
	klog.V(1).Infof("preallocated %d output tensors (%s) for %s",
		allocated, humanize.Bytes(uint64(totalBytes)), dev.Type())
	return nil
}
