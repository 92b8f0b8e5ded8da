/*
 *	Copyright 2025 The Ferrite Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package opstest is the operator test harness: it lets kernel tests declaratively
// build operator definitions, assemble them into a network and execute that network
// on a chosen device, exercising every configured GPU memory representation.
package opstest

import (
	"os"
	"sync"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/ferrite-ml/ferrite/core/device"
	"github.com/ferrite-ml/ferrite/types/xslices"
)

// StoragePathEnvVar selects the filesystem path for the GPU tuner/cache store.
// Unset means no persistent cache.
const StoragePathEnvVar = "FERRITE_INTERNAL_STORAGE_PATH"

// DefaultNumThreads lets the CPU device pick one thread per available core.
const DefaultNumThreads = -1

// TestContext owns the devices every harness in the process runs against: one CPU
// device, one GPU device and the GPU context they share, plus the list of GPU memory
// representations RunOp exercises.
//
// There is exactly one TestContext per process; see GetContext.
type TestContext struct {
	gpuContext *device.GPUContext
	devices    map[device.Type]device.Device

	mu             sync.Mutex
	gpuMemoryTypes []device.MemoryType
}

var (
	contextOnce     sync.Once
	contextInstance *TestContext
)

// GetContext returns the process-wide test context, constructing it on the first
// call with that call's parameters.
//
// First call wins: every later call returns the already-built instance and its
// arguments are ignored. Callers that need specific CPU settings must therefore be
// the first in the process to call GetContext.
func GetContext(numThreads int, policy device.AffinityPolicy, lowPrecisionGemm bool) *TestContext {
	contextOnce.Do(func() {
		contextInstance = newTestContext(numThreads, policy, lowPrecisionGemm)
	})
	return contextInstance
}

// DefaultContext returns the process-wide test context with default CPU settings.
func DefaultContext() *TestContext {
	return GetContext(DefaultNumThreads, device.AffinityNone, false)
}

func newTestContext(numThreads int, policy device.AffinityPolicy, lowPrecisionGemm bool) *TestContext {
	gpuContext := device.NewGPUContext(os.Getenv(StoragePathEnvVar))
	ctx := &TestContext{
		gpuContext: gpuContext,
		devices: map[device.Type]device.Device{
			device.CPU: device.NewCPUDevice(numThreads, policy, lowPrecisionGemm),
			device.GPU: device.NewGPUDevice(gpuContext, device.PriorityNormal),
		},
		gpuMemoryTypes: []device.MemoryType{device.MemoryImage},
	}
	klog.V(1).Infof("op test context ready: cpu threads=%d, affinity=%s, low-precision gemm=%v",
		numThreads, policy, lowPrecisionGemm)
	return ctx
}

// GPUContext returns the GPU execution context shared by every GPU device.
func (c *TestContext) GPUContext() *device.GPUContext { return c.gpuContext }

// GetDevice returns the pre-built device for the given backend kind. Devices are
// built once, at context construction.
func (c *TestContext) GetDevice(t device.Type) device.Device {
	dev, ok := c.devices[t]
	if !ok {
		exceptions.Panicf("opstest: no device built for type %s", t)
	}
	return dev
}

// GPUMemoryTypes returns a copy of the GPU memory representations RunOp exercises,
// in order.
func (c *TestContext) GPUMemoryTypes() []device.MemoryType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return xslices.Copy(c.gpuMemoryTypes)
}

// SetGPUImageTest makes GPU runs exercise only the image representation (the
// default).
//
// The list is shared process-wide: changing it from any harness affects every
// subsequent GPU run in the process.
func (c *TestContext) SetGPUImageTest() {
	c.setGPUMemoryTypes(device.MemoryImage)
}

// SetGPUBufferTest makes GPU runs exercise only the buffer representation.
func (c *TestContext) SetGPUBufferTest() {
	c.setGPUMemoryTypes(device.MemoryBuffer)
}

// SetGPUImageAndBufferTest makes GPU runs exercise the image representation followed
// by the buffer representation.
func (c *TestContext) SetGPUImageAndBufferTest() {
	c.setGPUMemoryTypes(device.MemoryImage, device.MemoryBuffer)
}

func (c *TestContext) setGPUMemoryTypes(types ...device.MemoryType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gpuMemoryTypes = types
}
