// Package core defines the contracts between the engine's orchestration layer and
// its collaborators: the network executor, the tensor workspace, the memory-usage
// planner and the operator-kernel registry.
//
// The collaborators themselves live in their own packages (or out of tree); what is
// here is the interface surface plus registry-style factory hooks through which an
// executor and planner implementation link themselves into a binary.
package core

import (
	"github.com/pkg/errors"

	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/core/opdef"
	"github.com/ferrite-ml/ferrite/types/shapes"
)

// Executor runs one network definition on one device. A fresh executor is built for
// every setup; Init must succeed before Run.
type Executor interface {
	Init() error
	Run() error
}

// MemoryOptimizer plans tensor storage reuse for a network definition. It is
// constructed fresh for every setup and handed opaquely to the workspace and the
// executor; this package never calls into it.
type MemoryOptimizer any

// OpRegistry enumerates the operator kernels linked into the binary. The registry is
// handed to the executor factory untouched.
type OpRegistry interface {
	// Registered reports whether kernels for the given operator type exist.
	Registered(opType string) bool
}

// Workspace is a named-tensor store.
type Workspace interface {
	// GetTensor returns the tensor stored under name, or nil when absent.
	GetTensor(name string) *Tensor

	// CreateTensor stores a fresh tensor of the given shape under name, replacing
	// any existing one, and returns it.
	CreateTensor(name string, shape shapes.Shape) *Tensor

	// RemoveTensor drops the tensor stored under name, if any.
	RemoveTensor(name string)

	// PreallocateOutputTensors reserves storage for every output declared in def,
	// following the optimizer's reuse plan for the given device.
	PreallocateOutputTensors(def *opdef.NetworkDef, optimizer MemoryOptimizer, dev device.Device) error
}

// ExecutorFactory builds an executor bound to a network definition, a workspace, a
// device and a memory plan.
type ExecutorFactory func(registry OpRegistry, def *opdef.NetworkDef, ws Workspace,
	dev device.Device, optimizer MemoryOptimizer) (Executor, error)

// MemoryOptimizerFactory builds a fresh planner.
type MemoryOptimizerFactory func() MemoryOptimizer

var (
	executorFactory  ExecutorFactory
	optimizerFactory MemoryOptimizerFactory
)

// RegisterExecutorFactory installs the process-wide executor factory. The engine's
// executor package calls this during initialization.
func RegisterExecutorFactory(factory ExecutorFactory) {
	executorFactory = factory
}

// RegisterMemoryOptimizerFactory installs the process-wide planner factory.
func RegisterMemoryOptimizerFactory(factory MemoryOptimizerFactory) {
	optimizerFactory = factory
}

// NewExecutor builds an executor with the registered factory. It errors when no
// executor implementation is linked into the binary.
func NewExecutor(registry OpRegistry, def *opdef.NetworkDef, ws Workspace,
	dev device.Device, optimizer MemoryOptimizer) (Executor, error) {
	if executorFactory == nil {
		return nil, errors.Errorf("no executor factory registered -- link an executor implementation or inject one")
	}
	return executorFactory(registry, def, ws, dev, optimizer)
}

// nopPlanner is the planner used when none is registered: no storage reuse.
type nopPlanner struct{}

// NewMemoryOptimizer builds a planner with the registered factory, falling back to a
// plan-nothing placeholder when none is registered.
func NewMemoryOptimizer() MemoryOptimizer {
	if optimizerFactory == nil {
		return nopPlanner{}
	}
	return optimizerFactory()
}
