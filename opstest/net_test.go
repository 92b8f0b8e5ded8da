package opstest

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/core/opdef"
)

func TestSetupDerivesNetworkDef(t *testing.T) {
	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))
	AddInputFromValues(net, "x", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	AddWeightFromValues(net, "w", []int{3}, []float32{1, 1, 1})

	opdef.NewBuilder("MatMul", "mm").
		Input("x").
		Input("w").
		Output("y").
		OutputShape(2, 3).
		Finalize(net.NewOperatorDef())

	require.NoError(t, net.Setup(device.CPU))

	require.Len(t, factory.defs, 1)
	def := factory.defs[0]
	require.Len(t, def.Ops, 1)
	require.Equal(t, "MatMul", def.Ops[0].Type)

	// Only the non-weight workspace tensor becomes an external input.
	require.Equal(t, []opdef.InputInfo{{Name: "x", Dims: []int{2, 3}}}, def.InputInfos)
	require.Equal(t, []opdef.OutputInfo{{Name: "y", DType: dtypes.Float32}}, def.OutputInfos)
}

func TestSetupDuplicateInputOccurrences(t *testing.T) {
	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))
	AddInputFromValues(net, "x", []int{2}, []float32{1, 2})

	opdef.NewBuilder("Eltwise", "add").
		Input("x").
		Input("x").
		Output("y").
		Finalize(net.NewOperatorDef())

	require.NoError(t, net.Setup(device.CPU))
	def := factory.defs[0]
	require.Len(t, def.InputInfos, 2)
	require.Equal(t, def.InputInfos[0], def.InputInfos[1])
}

func TestSetupDTypeDefaulting(t *testing.T) {
	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))

	// Two outputs, a single declared dtype: the list length doesn't match the
	// output count, so both fall back to the default float.
	opdef.NewBuilder("Split", "split").
		Input("x").
		Output("a").
		Output("b").
		OutputType(dtypes.Int32).
		Finalize(net.NewOperatorDef())

	require.NoError(t, net.Setup(device.CPU))
	def := factory.defs[0]
	require.Equal(t, dtypes.Float32, def.OutputInfos[0].DType)
	require.Equal(t, dtypes.Float32, def.OutputInfos[1].DType)
}

func TestSetupDeclaredDTypesWin(t *testing.T) {
	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))

	opdef.NewBuilder("TopK", "topk").
		Input("x").
		Output("values").
		Output("indices").
		OutputType(dtypes.Float32, dtypes.Int32).
		Finalize(net.NewOperatorDef())

	require.NoError(t, net.Setup(device.CPU))
	def := factory.defs[0]
	require.Equal(t, dtypes.Float32, def.OutputInfos[0].DType)
	require.Equal(t, dtypes.Int32, def.OutputInfos[1].DType)
}

func TestSetupEvictsStaleOutputs(t *testing.T) {
	var events []string
	factory := &fakeFactory{events: &events}
	net := NewNet(WithExecutorFactory(factory.new()))
	net.ws = &recordingWorkspace{Workspace: net.ws, events: &events}

	// A previous run left a weight-flagged tensor under the output name.
	stale := AddWeightFromValues(net, "y", []int{5}, []float32{1, 2, 3, 4, 5})

	factory.onInit = func() {
		// By executor-init time the stale tensor must be gone; preallocation has
		// already replaced it with a fresh, non-weight tensor of the declared shape.
		current := net.ws.GetTensor("y")
		require.NotSame(t, stale, current)
		require.False(t, current.IsWeight())
		require.Equal(t, []int{2}, current.Shape().Dimensions)
	}

	opdef.NewBuilder("Relu", "relu").
		Input("x").
		Output("y").
		OutputShape(2).
		Finalize(net.NewOperatorDef())

	require.NoError(t, net.Setup(device.CPU))
	require.Equal(t, []string{"remove:y", "prealloc", "init"}, events)
}

func TestRunBeforeSetupPanics(t *testing.T) {
	net := NewNet()
	require.Panics(t, func() { _ = net.Run() })
}

func TestSetupWithoutExecutorRegistered(t *testing.T) {
	// No factory injected and none registered in package core for this binary.
	net := NewNet()
	opdef.NewBuilder("Relu", "relu").Input("x").Output("y").Finalize(net.NewOperatorDef())
	err := net.Setup(device.CPU)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no executor factory registered")
	require.Panics(t, func() { _ = net.Run() })
}

func TestSetupFailureLeavesHarnessUninitialized(t *testing.T) {
	factory := &fakeFactory{initErr: errors.New("bad kernel")}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Relu", "relu").Input("x").Output("y").Finalize(net.NewOperatorDef())

	require.Error(t, net.Setup(device.CPU))
	require.Panics(t, func() { _ = net.Run() })

	// A later successful Setup recovers.
	factory.initErr = nil
	require.NoError(t, net.Setup(device.CPU))
	require.NoError(t, net.Run())
}

func TestRunOpDefaultsToCPU(t *testing.T) {
	var events []string
	factory := &fakeFactory{events: &events}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Relu", "relu").Input("x").Output("y").Finalize(net.NewOperatorDef())

	require.NoError(t, net.RunOp())
	require.Equal(t, []cycle{{deviceType: device.CPU}}, factory.cycles)
	require.Equal(t, []string{"init", "run"}, events)
}

func TestSyncNoOpAfterCPURun(t *testing.T) {
	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Relu", "relu").Input("x").Output("y").Finalize(net.NewOperatorDef())

	drainsBefore := testRuntime.drains
	require.NoError(t, net.RunOp(device.CPU))
	net.Sync()
	require.Equal(t, drainsBefore, testRuntime.drains)
}

func TestRunOpGPUMemoryTypeMatrix(t *testing.T) {
	ctx := DefaultContext()
	ctx.SetGPUImageAndBufferTest()
	defer ctx.SetGPUImageTest()

	factory := &fakeFactory{}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Conv2D", "conv").Input("x").Output("y").Finalize(net.NewOperatorDef())

	drainsBefore := testRuntime.drains
	require.NoError(t, net.RunOp(device.GPU))

	// One Setup+Run cycle per configured representation, in the configured order.
	require.Equal(t, []cycle{
		{deviceType: device.GPU, memType: device.MemoryImage},
		{deviceType: device.GPU, memType: device.MemoryBuffer},
	}, factory.cycles)

	// Each GPU run ends with a barrier sync.
	require.Equal(t, drainsBefore+2, testRuntime.drains)
}

func TestRunOpGPUAbortsOnFirstFailure(t *testing.T) {
	ctx := DefaultContext()
	ctx.SetGPUImageAndBufferTest()
	defer ctx.SetGPUImageTest()

	factory := &fakeFactory{runErr: errors.New("kernel launch failed")}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Conv2D", "conv").Input("x").Output("y").Finalize(net.NewOperatorDef())

	err := net.RunOp(device.GPU)
	require.Error(t, err)

	// The buffer representation was never attempted.
	require.Equal(t, []cycle{{deviceType: device.GPU, memType: device.MemoryImage}}, factory.cycles)
}

func TestRunOpGPUSetupFailureAborts(t *testing.T) {
	ctx := DefaultContext()
	ctx.SetGPUImageAndBufferTest()
	defer ctx.SetGPUImageTest()

	factory := &fakeFactory{factoryErr: errors.New("no gpu kernels")}
	net := NewNet(WithExecutorFactory(factory.new()))
	opdef.NewBuilder("Conv2D", "conv").Input("x").Output("y").Finalize(net.NewOperatorDef())

	require.Error(t, net.RunOp(device.GPU))
	require.Len(t, factory.cycles, 1)
}

func TestRunNetBypassesDerivation(t *testing.T) {
	var events []string
	factory := &fakeFactory{events: &events}
	net := NewNet(WithExecutorFactory(factory.new()))
	net.ws = &recordingWorkspace{Workspace: net.ws, events: &events}

	// A stale tensor under a declared output name: RunNet must NOT evict it.
	AddWeightFromValues(net, "out", []int{2}, []float32{1, 2})

	var op opdef.OperatorDef
	opdef.NewBuilder("Identity", "id").Input("in").Output("out").Finalize(&op)
	def := &opdef.NetworkDef{
		Ops:         []opdef.OperatorDef{op},
		OutputInfos: []opdef.OutputInfo{{Name: "out", DType: dtypes.Float32}},
	}

	require.NoError(t, net.RunNet(def, device.CPU))
	require.Equal(t, []string{"prealloc", "init", "run"}, events)
	require.Same(t, factory.defs[0], def)
	require.True(t, net.GetOutput("out").IsWeight(), "RunNet must not evict existing tensors")
}

func TestGPUMemoryTypeListSharedAcrossHarnesses(t *testing.T) {
	ctx := DefaultContext()
	defer ctx.SetGPUImageTest()

	require.Equal(t, []device.MemoryType{device.MemoryImage}, ctx.GPUMemoryTypes())
	ctx.SetGPUBufferTest()
	require.Equal(t, []device.MemoryType{device.MemoryBuffer}, ctx.GPUMemoryTypes())
	ctx.SetGPUImageAndBufferTest()
	require.Equal(t, []device.MemoryType{device.MemoryImage, device.MemoryBuffer},
		ctx.GPUMemoryTypes())

	// Mutating the returned copy doesn't touch the shared list.
	got := ctx.GPUMemoryTypes()
	got[0] = device.MemoryBuffer
	require.Equal(t, device.MemoryImage, ctx.GPUMemoryTypes()[0])
}

func TestSingletonStability(t *testing.T) {
	first := GetContext(3, device.AffinityNone, false)
	second := GetContext(7, device.AffinityLittleOnly, true)
	require.Same(t, first, second)

	// Devices are built once; later arguments have no effect.
	require.Same(t, first.GetDevice(device.CPU), second.GetDevice(device.CPU))
	require.Same(t, first.GetDevice(device.GPU), second.GetDevice(device.GPU))
	cpu := first.GetDevice(device.CPU).(*device.CPUDevice)
	require.Equal(t, cpu.NumThreads(), second.GetDevice(device.CPU).(*device.CPUDevice).NumThreads())
}

func TestContextStoragePathFromEnv(t *testing.T) {
	require.Equal(t, testStoragePath, DefaultContext().GPUContext().StoragePath())
}
