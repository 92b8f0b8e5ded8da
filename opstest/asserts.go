package opstest

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/ferrite-ml/ferrite/core"
	"github.com/ferrite-ml/ferrite/types/xslices"
)

// RequireTensorsNear fails the test unless got has want's shape and every element is
// within delta of want's. delta <= 0 demands exact equality. Elements are widened to
// float64 for the comparison; half floats go through their float32 value.
func RequireTensorsNear(t *testing.T, want, got *core.Tensor, delta float64) {
	t.Helper()
	require.NotNil(t, got, "output tensor missing")
	require.Truef(t, want.Shape().Equal(got.Shape()),
		"shape mismatch: want %s, got %s", want.Shape(), got.Shape())
	wantFlat := tensorFloats(want)
	gotFlat := tensorFloats(got)
	for i := range wantFlat {
		if delta <= 0 {
			require.Equalf(t, wantFlat[i], gotFlat[i], "element %d differs", i)
		} else {
			require.InDeltaf(t, wantFlat[i], gotFlat[i], delta, "element %d differs", i)
		}
	}
}

// RequireTensorsEqual is RequireTensorsNear demanding exact equality.
func RequireTensorsEqual(t *testing.T, want, got *core.Tensor) {
	t.Helper()
	RequireTensorsNear(t, want, got, 0)
}

func tensorFloats(t *core.Tensor) []float64 {
	switch t.DType() {
	case dtypes.Float64:
		return xslices.Copy(core.FlatData[float64](t))
	case dtypes.Float32:
		return xslices.Map(core.FlatData[float32](t), func(v float32) float64 { return float64(v) })
	case dtypes.Float16:
		return xslices.Map(core.FlatData[float16.Float16](t), func(v float16.Float16) float64 {
			return float64(v.Float32())
		})
	case dtypes.Int64:
		return xslices.Map(core.FlatData[int64](t), func(v int64) float64 { return float64(v) })
	case dtypes.Int32:
		return xslices.Map(core.FlatData[int32](t), func(v int32) float64 { return float64(v) })
	case dtypes.Int8:
		return xslices.Map(core.FlatData[int8](t), func(v int8) float64 { return float64(v) })
	case dtypes.Uint8:
		return xslices.Map(core.FlatData[uint8](t), func(v uint8) float64 { return float64(v) })
	default:
		exceptions.Panicf("opstest: comparison not supported for dtype %s", t.DType())
	}
	return nil
}
