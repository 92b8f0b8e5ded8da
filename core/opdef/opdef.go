// Package opdef holds the in-memory definition records for operators and networks,
// and the fluent Builder test authors use to assemble operator definitions.
//
// The serialized (wire) form of these records belongs to the model schema package,
// not here.
package opdef

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
)

// ArgKind discriminates the payload held by an Arg.
type ArgKind int

const (
	ArgInvalid ArgKind = iota
	ArgInt
	ArgFloat
	ArgString
	ArgInts
	ArgFloats
)

// String implements fmt.Stringer.
func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgString:
		return "string"
	case ArgInts:
		return "ints"
	case ArgFloats:
		return "floats"
	default:
		return "invalid"
	}
}

// Arg is one named operator argument. Exactly one payload field is populated,
// selected by Kind.
type Arg struct {
	Name string
	Kind ArgKind

	I      int64
	F      float32
	S      string
	Ints   []int64
	Floats []float32
}

// Clone returns a deep copy of the argument.
func (a Arg) Clone() Arg {
	a.Ints = slices.Clone(a.Ints)
	a.Floats = slices.Clone(a.Floats)
	return a
}

// OperatorDef describes one computation node: its kernel type, unique name, ordered
// input/output tensor names, declared output dtypes and shapes, and arguments.
//
// Arguments are append-only and argument names are not required to be unique; how a
// consumer resolves duplicate names is that consumer's contract.
type OperatorDef struct {
	Type string
	Name string

	// Inputs may repeat a tensor name; each occurrence is a separate operand.
	Inputs  []string
	Outputs []string

	// OutputTypes is consulted only when its length equals len(Outputs); see
	// OutputDType.
	OutputTypes []dtypes.DType

	// OutputShapes holds one dimension list per declared output shape record.
	OutputShapes [][]int

	Args []Arg
}

// Clone returns a deep copy of the definition.
func (def OperatorDef) Clone() OperatorDef {
	def.Inputs = slices.Clone(def.Inputs)
	def.Outputs = slices.Clone(def.Outputs)
	def.OutputTypes = slices.Clone(def.OutputTypes)
	shapesCopy := make([][]int, len(def.OutputShapes))
	for ii, dims := range def.OutputShapes {
		shapesCopy[ii] = slices.Clone(dims)
	}
	def.OutputShapes = shapesCopy
	args := make([]Arg, len(def.Args))
	for ii, arg := range def.Args {
		args[ii] = arg.Clone()
	}
	def.Args = args
	return def
}

// OutputDType resolves the dtype of output i: the declared OutputTypes entry when one
// dtype was declared per output, otherwise the engine-wide default of Float32.
func (def *OperatorDef) OutputDType(i int) dtypes.DType {
	if len(def.OutputTypes) == len(def.Outputs) {
		return def.OutputTypes[i]
	}
	return dtypes.Float32
}

// ArgsNamed returns every argument with the given name, in declaration order. It can
// return more than one entry: argument names are not unique.
func (def *OperatorDef) ArgsNamed(name string) []Arg {
	var matched []Arg
	for _, arg := range def.Args {
		if arg.Name == name {
			matched = append(matched, arg)
		}
	}
	return matched
}

// InputInfo records one externally-supplied (non-weight) network input: its tensor
// name and the dimensions it had in the workspace at setup time.
type InputInfo struct {
	Name string
	Dims []int
}

// OutputInfo records one declared network output and its resolved dtype.
type OutputInfo struct {
	Name  string
	DType dtypes.DType
}

// NetworkDef is an ordered collection of operator definitions plus the external
// input/output metadata derived for them.
type NetworkDef struct {
	Ops         []OperatorDef
	InputInfos  []InputInfo
	OutputInfos []OutputInfo
}
