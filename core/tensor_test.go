package core

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/ferrite-ml/ferrite/types/shapes"
)

func TestTensorFlatData(t *testing.T) {
	tensor := NewTensor(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, 6, tensor.Size())
	require.Len(t, tensor.Bytes(), 6*4)
	require.False(t, tensor.IsWeight())

	SetFlatData(tensor, []float32{1, 2, 3, 4, 5, 6})
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, FlatData[float32](tensor))

	// The flat view aliases the tensor storage.
	FlatData[float32](tensor)[0] = 7
	require.Equal(t, float32(7), FlatData[float32](tensor)[0])
}

func TestTensorDTypeMismatchPanics(t *testing.T) {
	tensor := NewTensor(shapes.Make(dtypes.Float32, 2))
	require.Panics(t, func() { FlatData[int32](tensor) })
	require.Panics(t, func() { SetFlatData(tensor, []float32{1}) })
}

func TestTensorWeightFlag(t *testing.T) {
	tensor := NewTensor(shapes.Make(dtypes.Int32, 4))
	tensor.SetIsWeight(true)
	require.True(t, tensor.IsWeight())
	tensor.SetIsWeight(false)
	require.False(t, tensor.IsWeight())
}

func TestTensorResize(t *testing.T) {
	tensor := NewTensor(shapes.Make(dtypes.Float32, 2, 2))
	SetFlatData(tensor, []float32{1, 2, 3, 4})

	// Same byte size: storage is kept.
	tensor.Resize(shapes.Make(dtypes.Float32, 4))
	require.Equal(t, []float32{1, 2, 3, 4}, FlatData[float32](tensor))

	// Different byte size: reallocated and zeroed.
	tensor.Resize(shapes.Make(dtypes.Float32, 3))
	require.Equal(t, []float32{0, 0, 0}, FlatData[float32](tensor))

	require.Panics(t, func() { tensor.Resize(shapes.Invalid()) })
}

func TestNewTensorInvalidShapePanics(t *testing.T) {
	require.Panics(t, func() { NewTensor(shapes.Invalid()) })
}
