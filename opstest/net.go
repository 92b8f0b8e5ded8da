package opstest

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/ferrite-ml/ferrite/core"
	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/core/opdef"
	"github.com/ferrite-ml/ferrite/types/xslices"
)

// Net accumulates operator definitions and drives their execution on a device from
// the process-wide TestContext.
//
// A Net is single-threaded: it models no internal parallelism, and every fallible
// step returns an error the caller must check.
type Net struct {
	opDefs []*opdef.OperatorDef

	ws           core.Workspace
	registry     core.OpRegistry
	newExecutor  core.ExecutorFactory
	newOptimizer core.MemoryOptimizerFactory

	// executor is nil until a Setup succeeds; Run before that is a broken test.
	executor   core.Executor
	deviceType device.Type
}

// Option configures a Net.
type Option func(n *Net)

// WithWorkspace injects the tensor store to run against, replacing the built-in
// in-memory one.
func WithWorkspace(ws core.Workspace) Option {
	return func(n *Net) { n.ws = ws }
}

// WithOpRegistry injects the kernel registry handed to the executor factory.
func WithOpRegistry(registry core.OpRegistry) Option {
	return func(n *Net) { n.registry = registry }
}

// WithExecutorFactory overrides the process-wide executor factory for this Net.
func WithExecutorFactory(factory core.ExecutorFactory) Option {
	return func(n *Net) { n.newExecutor = factory }
}

// WithMemoryOptimizerFactory overrides the process-wide planner factory for this Net.
func WithMemoryOptimizerFactory(factory core.MemoryOptimizerFactory) Option {
	return func(n *Net) { n.newOptimizer = factory }
}

// NewNet returns an empty harness. Without options it uses the built-in in-memory
// workspace and the factories registered in package core.
func NewNet(opts ...Option) *Net {
	n := &Net{
		ws:           newHostWorkspace(),
		newExecutor:  core.NewExecutor,
		newOptimizer: core.NewMemoryOptimizer,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Workspace returns the tensor store this harness runs against.
func (n *Net) Workspace() core.Workspace { return n.ws }

// NewOperatorDef appends an empty operator definition and returns it, to be filled
// in by a Builder's Finalize:
//
//	opdef.NewBuilder("Softmax", "softmax").
//		Input("x").Output("y").OutputShape(2, 3).
//		Finalize(net.NewOperatorDef())
func (n *Net) NewOperatorDef() *opdef.OperatorDef {
	def := &opdef.OperatorDef{}
	n.opDefs = append(n.opDefs, def)
	return def
}

// AddOperator appends a copy of a finished operator definition.
func (n *Net) AddOperator(def opdef.OperatorDef) {
	clone := def.Clone()
	n.opDefs = append(n.opDefs, &clone)
}

// Setup derives a network definition from the accumulated operators and prepares it
// for execution on the given device kind:
//
//   - every workspace tensor named as an operator input and not marked as a weight
//     is recorded as an external input, with its current dimensions;
//   - every declared operator output first evicts any stale workspace tensor of the
//     same name (a previous run's shape or weight flag must not leak into this
//     graph), then is recorded with its resolved dtype;
//   - a fresh memory planner and a fresh executor are built, output storage is
//     preallocated, and the executor is initialized.
//
// On any failure the harness is left without a bound executor and the error is
// returned.
func (n *Net) Setup(deviceType device.Type) error {
	n.executor = nil
	def := &opdef.NetworkDef{}
	for _, op := range n.opDefs {
		def.Ops = append(def.Ops, op.Clone())
		for _, input := range op.Inputs {
			t := n.ws.GetTensor(input)
			if t == nil || t.IsWeight() {
				continue
			}
			def.InputInfos = append(def.InputInfos, opdef.InputInfo{
				Name: input,
				Dims: xslices.Copy(t.Shape().Dimensions),
			})
		}
		for i, output := range op.Outputs {
			n.ws.RemoveTensor(output)
			def.OutputInfos = append(def.OutputInfos, opdef.OutputInfo{
				Name:  output,
				DType: op.OutputDType(i),
			})
		}
	}

	dev := DefaultContext().GetDevice(deviceType)
	optimizer := n.newOptimizer()
	executor, err := n.newExecutor(n.registry, def, n.ws, dev, optimizer)
	if err != nil {
		return errors.WithMessagef(err, "constructing executor for %s", deviceType)
	}
	if err = n.ws.PreallocateOutputTensors(def, optimizer, dev); err != nil {
		return errors.WithMessagef(err, "preallocating output tensors on %s", deviceType)
	}
	if err = executor.Init(); err != nil {
		return errors.WithMessagef(err, "initializing executor on %s", deviceType)
	}
	n.executor = executor
	n.deviceType = deviceType
	klog.V(2).Infof("net ready on %s: %d ops, %d inputs, %d outputs",
		deviceType, len(def.Ops), len(def.InputInfos), len(def.OutputInfos))
	return nil
}

// Run executes the prepared network and, for GPU runs, blocks until the device has
// drained its queue. Calling Run without a successful Setup is a broken test and
// panics.
func (n *Net) Run() error {
	if n.executor == nil {
		exceptions.Panicf("opstest: Run called before a successful Setup")
	}
	if err := n.executor.Run(); err != nil {
		return err
	}
	n.Sync()
	return nil
}

// RunOp sets up and runs the accumulated operators, defaulting to the CPU device.
//
// On GPU it iterates the context's configured memory representations in order,
// switching the device's active representation before each Setup+Run cycle, and
// aborts on the first failing representation without attempting the rest.
func (n *Net) RunOp(on ...device.Type) error {
	deviceType := device.CPU
	if len(on) > 0 {
		deviceType = on[0]
	}
	if deviceType == device.GPU {
		gpu := DefaultContext().GetDevice(device.GPU)
		for _, memType := range DefaultContext().GPUMemoryTypes() {
			gpu.GPURuntime().SetMemoryType(memType)
			if err := n.Setup(device.GPU); err != nil {
				return errors.WithMessagef(err, "gpu %s representation", memType)
			}
			if err := n.Run(); err != nil {
				return errors.WithMessagef(err, "gpu %s representation", memType)
			}
		}
		return nil
	}
	if err := n.Setup(deviceType); err != nil {
		return err
	}
	return n.Run()
}

// RunNet executes a caller-supplied network definition directly, skipping the
// input/output derivation and stale-output eviction Setup performs. A fresh planner
// and executor are built for the call. Unlike Run, it does not Sync; callers running
// on GPU synchronize explicitly.
func (n *Net) RunNet(def *opdef.NetworkDef, deviceType device.Type) error {
	n.executor = nil
	n.deviceType = deviceType
	dev := DefaultContext().GetDevice(deviceType)
	optimizer := n.newOptimizer()
	executor, err := n.newExecutor(n.registry, def, n.ws, dev, optimizer)
	if err != nil {
		return errors.WithMessagef(err, "constructing executor for %s", deviceType)
	}
	if err = n.ws.PreallocateOutputTensors(def, optimizer, dev); err != nil {
		return errors.WithMessagef(err, "preallocating output tensors on %s", deviceType)
	}
	if err = executor.Init(); err != nil {
		return errors.WithMessagef(err, "initializing executor on %s", deviceType)
	}
	n.executor = executor
	return executor.Run()
}

// Sync blocks until all GPU-enqueued work completes. It is a no-op unless the most
// recent successful setup targeted the GPU.
func (n *Net) Sync() {
	if n.executor == nil || n.deviceType != device.GPU {
		return
	}
	DefaultContext().GetDevice(device.GPU).GPURuntime().CommandQueue().Drain()
}
