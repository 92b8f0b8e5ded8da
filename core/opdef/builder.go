package opdef

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Builder assembles one OperatorDef through a fluent interface. Every method returns
// the same *Builder, so calls chain.
//
// Finalize does not consume the builder: its accumulated state survives, and repeated
// Finalize calls yield identical independent copies.
type Builder struct {
	def OperatorDef
}

// NewBuilder starts a definition for an operator of the given kernel type and with
// the given (unique) node name.
func NewBuilder(opType, name string) *Builder {
	return &Builder{def: OperatorDef{Type: opType, Name: name}}
}

// Input appends one input tensor name. The same name may be appended more than once.
func (b *Builder) Input(name string) *Builder {
	b.def.Inputs = append(b.def.Inputs, name)
	return b
}

// Output appends one output tensor name.
func (b *Builder) Output(name string) *Builder {
	b.def.Outputs = append(b.def.Outputs, name)
	return b
}

// OutputType appends the given dtypes, in order, to the per-output dtype list.
func (b *Builder) OutputType(outputTypes ...dtypes.DType) *Builder {
	b.def.OutputTypes = append(b.def.OutputTypes, outputTypes...)
	return b
}

// OutputShape appends one output shape record with the given dimensions.
func (b *Builder) OutputShape(dims ...int) *Builder {
	b.def.OutputShapes = append(b.def.OutputShapes, slices.Clone(dims))
	return b
}

// AddIntArg appends a single-integer argument.
func (b *Builder) AddIntArg(name string, value int64) *Builder {
	b.def.Args = append(b.def.Args, Arg{Name: name, Kind: ArgInt, I: value})
	return b
}

// AddFloatArg appends a single-float argument.
func (b *Builder) AddFloatArg(name string, value float32) *Builder {
	b.def.Args = append(b.def.Args, Arg{Name: name, Kind: ArgFloat, F: value})
	return b
}

// AddStringArg appends a single-string argument.
func (b *Builder) AddStringArg(name string, value string) *Builder {
	b.def.Args = append(b.def.Args, Arg{Name: name, Kind: ArgString, S: value})
	return b
}

// AddIntsArg appends a multi-integer argument, preserving order and count.
func (b *Builder) AddIntsArg(name string, values ...int64) *Builder {
	b.def.Args = append(b.def.Args, Arg{Name: name, Kind: ArgInts, Ints: slices.Clone(values)})
	return b
}

// AddFloatsArg appends a multi-float argument, preserving order and count.
func (b *Builder) AddFloatsArg(name string, values ...float32) *Builder {
	b.def.Args = append(b.def.Args, Arg{Name: name, Kind: ArgFloats, Floats: slices.Clone(values)})
	return b
}

// Finalize deep-copies the accumulated definition into def. A nil def is a broken
// test, not a data condition, and panics.
func (b *Builder) Finalize(def *OperatorDef) {
	if def == nil {
		exceptions.Panicf("opdef.Builder.Finalize: target OperatorDef must not be nil")
	}
	*def = b.def.Clone()
}
