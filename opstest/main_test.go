package opstest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"

	"github.com/ferrite-ml/ferrite/core"
	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/core/opdef"
)

// recordingRuntime is the GPU runtime used for the whole test binary. It tracks the
// active memory type and counts queue drains.
type recordingRuntime struct {
	memType device.MemoryType
	sets    []device.MemoryType
	drains  int
}

func (r *recordingRuntime) SetMemoryType(m device.MemoryType) {
	r.memType = m
	r.sets = append(r.sets, m)
}

func (r *recordingRuntime) MemoryType() device.MemoryType { return r.memType }

func (r *recordingRuntime) CommandQueue() device.CommandQueue { return recordingQueue{r} }

type recordingQueue struct{ r *recordingRuntime }

func (q recordingQueue) Drain() { q.r.drains++ }

// testRuntime is installed before the singleton context is built, so the context's
// GPU device is backed by it for every test.
var testRuntime *recordingRuntime

var testStoragePath = filepath.Join(os.TempDir(), "ferrite-opstest-cache")

func TestMain(m *testing.M) {
	must.M(os.Setenv(StoragePathEnvVar, testStoragePath))
	device.RegisterGPURuntime(func(_ *device.GPUContext, _ device.PriorityHint) device.GPURuntime {
		testRuntime = &recordingRuntime{memType: device.MemoryImage}
		return testRuntime
	})
	os.Exit(m.Run())
}

// fakeExecutor logs Init/Run into a shared event trace and fails on demand.
type fakeExecutor struct {
	events  *[]string
	onInit  func()
	initErr error
	runErr  error
}

func (e *fakeExecutor) Init() error {
	if e.events != nil {
		*e.events = append(*e.events, "init")
	}
	if e.onInit != nil {
		e.onInit()
	}
	return e.initErr
}

func (e *fakeExecutor) Run() error {
	if e.events != nil {
		*e.events = append(*e.events, "run")
	}
	return e.runErr
}

// cycle records one executor construction: the target device and, for GPU, the
// memory type active at that moment.
type cycle struct {
	deviceType device.Type
	memType    device.MemoryType
}

// fakeFactory builds fakeExecutors and records every construction.
type fakeFactory struct {
	events     *[]string
	onInit     func()
	factoryErr error
	initErr    error
	runErr     error

	cycles []cycle
	defs   []*opdef.NetworkDef
}

func (f *fakeFactory) new() core.ExecutorFactory {
	return func(_ core.OpRegistry, def *opdef.NetworkDef, _ core.Workspace,
		dev device.Device, _ core.MemoryOptimizer) (core.Executor, error) {
		c := cycle{deviceType: dev.Type()}
		if rt := dev.GPURuntime(); rt != nil {
			c.memType = rt.MemoryType()
		}
		f.cycles = append(f.cycles, c)
		f.defs = append(f.defs, def)
		if f.factoryErr != nil {
			return nil, f.factoryErr
		}
		return &fakeExecutor{events: f.events, onInit: f.onInit, initErr: f.initErr, runErr: f.runErr}, nil
	}
}

// recordingWorkspace wraps the built-in store and traces removals/preallocations.
type recordingWorkspace struct {
	core.Workspace
	events *[]string
}

func (ws *recordingWorkspace) RemoveTensor(name string) {
	*ws.events = append(*ws.events, "remove:"+name)
	ws.Workspace.RemoveTensor(name)
}

func (ws *recordingWorkspace) PreallocateOutputTensors(def *opdef.NetworkDef,
	optimizer core.MemoryOptimizer, dev device.Device) error {
	*ws.events = append(*ws.events, "prealloc")
	return ws.Workspace.PreallocateOutputTensors(def, optimizer, dev)
}
