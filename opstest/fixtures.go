package opstest

import (
	"math"
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/ferrite-ml/ferrite/core"
	"github.com/ferrite-ml/ferrite/types/shapes"
)

// AddInputFromValues stores an input tensor in the harness workspace with the given
// dimensions and contents. The dtype is inferred from T. No dimensions means a
// scalar; the value count must match the shape's size.
func AddInputFromValues[T dtypes.Supported](n *Net, name string, dims []int, values []T) *core.Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dims...)
	if len(values) != shape.Size() {
		exceptions.Panicf("opstest.AddInputFromValues(%q): %d values for shape %s (size %d)",
			name, len(values), shape, shape.Size())
	}
	t := n.ws.CreateTensor(name, shape)
	core.SetFlatData(t, values)
	return t
}

// AddWeightFromValues is AddInputFromValues for model constants: the stored tensor is
// marked as a weight, so Setup does not record it as an external input.
func AddWeightFromValues[T dtypes.Supported](n *Net, name string, dims []int, values []T) *core.Tensor {
	t := AddInputFromValues(n, name, dims, values)
	t.SetIsWeight(true)
	return t
}

// AddRepeatedInput stores an input tensor with every element set to value.
func AddRepeatedInput[T dtypes.Supported](n *Net, name string, dims []int, value T) *core.Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dims...)
	t := n.ws.CreateTensor(name, shape)
	flat := core.FlatData[T](t)
	for i := range flat {
		flat[i] = value
	}
	return t
}

// AddRandomInput stores a float32 input tensor filled with standard-normal samples.
// With positive set, samples are folded to their absolute value, handy for kernels
// that require non-negative inputs (sqrt, log, rsqrt).
func AddRandomInput(n *Net, name string, dims []int, positive bool) *core.Tensor {
	shape := shapes.Make(dtypes.Float32, dims...)
	t := n.ws.CreateTensor(name, shape)
	flat := core.FlatData[float32](t)
	for i := range flat {
		v := rand.NormFloat64()
		if positive {
			v = math.Abs(v)
		}
		flat[i] = float32(v)
	}
	return t
}

// GetOutput returns the named tensor from the harness workspace, or nil when the
// network did not produce it.
func (n *Net) GetOutput(name string) *core.Tensor {
	return n.ws.GetTensor(name)
}
