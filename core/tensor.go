package core

import (
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/ferrite-ml/ferrite/types/shapes"
)

// Tensor is the host-side record for one named tensor: its shape, its weight flag
// and its flat data. Tensors marked as weights are constants baked into the model;
// everything else is an externally-supplied input or a computed output.
type Tensor struct {
	shape  shapes.Shape
	weight bool
	data   []byte
}

// NewTensor allocates a zero-filled tensor of the given shape. It panics on an
// invalid shape.
func NewTensor(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("core.NewTensor: invalid shape %s", shape)
	}
	return &Tensor{shape: shape, data: make([]byte, shape.Memory())}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the tensor's element type.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.Size() }

// IsWeight reports whether the tensor is a model constant.
func (t *Tensor) IsWeight() bool { return t.weight }

// SetIsWeight marks (or unmarks) the tensor as a model constant.
func (t *Tensor) SetIsWeight(weight bool) { t.weight = weight }

// Bytes returns the tensor's backing storage.
func (t *Tensor) Bytes() []byte { return t.data }

// Resize reshapes the tensor, reallocating storage when the byte size changes.
// Existing contents are discarded on reallocation.
func (t *Tensor) Resize(shape shapes.Shape) {
	if !shape.Ok() {
		exceptions.Panicf("core.Tensor.Resize: invalid shape %s", shape)
	}
	if shape.Memory() != t.shape.Memory() {
		t.data = make([]byte, shape.Memory())
	}
	t.shape = shape
}

// FlatData returns a flat typed view over the tensor's data. T must match the
// tensor's dtype, otherwise it panics. The returned slice aliases the tensor storage.
func FlatData[T dtypes.Supported](t *Tensor) []T {
	dtype := dtypes.FromGenericsType[T]()
	if dtype != t.shape.DType {
		exceptions.Panicf("core.FlatData[%s]: tensor holds %s", dtype, t.shape.DType)
	}
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(t.data))), t.shape.Size())
}

// SetFlatData copies values into the tensor's storage. The value count must equal
// the tensor's size and T must match its dtype, otherwise it panics.
func SetFlatData[T dtypes.Supported](t *Tensor, values []T) {
	if len(values) != t.shape.Size() {
		exceptions.Panicf("core.SetFlatData: %d values for tensor of size %d (shape %s)",
			len(values), t.shape.Size(), t.shape)
	}
	copy(FlatData[T](t), values)
}
