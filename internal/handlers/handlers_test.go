package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridloop/internal/registry"
	"github.com/vk/gridloop/internal/state"
	"github.com/zclconf/go-cty/cty"
)

func TestCoreRegistersEverything(t *testing.T) {
	reg := registry.New()
	Core{}.Register(reg)

	for _, name := range []string{"emit", "adjust", "evaluate", "print"} {
		_, ok := reg.Handler(name)
		assert.True(t, ok, "handler %q missing", name)
	}
	_, ok := reg.Callback("no_adjustment_needed")
	assert.True(t, ok)
}

func TestEmitPassesValuesThrough(t *testing.T) {
	values := cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)})
	res, err := (Emit{}).Run(context.Background(), &registry.Call{
		Inputs: map[string]cty.Value{"values": values},
	})
	require.NoError(t, err)
	assert.True(t, values.RawEquals(res.Outputs["values"]))
}

func TestAdjustScalesAndRecordsHistory(t *testing.T) {
	call := &registry.Call{
		Inputs: map[string]cty.Value{
			"values":           cty.ListVal([]cty.Value{cty.NumberIntVal(100), cty.NumberIntVal(200)}),
			"factor":           cty.NumberFloatVal(0.5),
			"needs_adjustment": cty.True,
		},
		State: state.Empty(),
	}

	res, err := (Adjust{}).Run(context.Background(), call)
	require.NoError(t, err)

	avg, _ := res.Outputs["average"].AsBigFloat().Float64()
	assert.InDelta(t, 75, avg, 0.0001) // (50+100)/2

	history := res.State.GetAttr("history").AsValueSlice()
	require.Len(t, history, 1)

	// Second iteration sees the carried history and appends to it.
	call.State = res.State
	res, err = (Adjust{}).Run(context.Background(), call)
	require.NoError(t, err)
	assert.Len(t, res.State.GetAttr("history").AsValueSlice(), 2)
}

func TestAdjustSkipsScalingWhenNotNeeded(t *testing.T) {
	res, err := (Adjust{}).Run(context.Background(), &registry.Call{
		Inputs: map[string]cty.Value{
			"values":           cty.ListVal([]cty.Value{cty.NumberIntVal(100)}),
			"factor":           cty.NumberFloatVal(0.5),
			"needs_adjustment": cty.False,
		},
		State: state.Empty(),
	})
	require.NoError(t, err)

	avg, _ := res.Outputs["average"].AsBigFloat().Float64()
	assert.InDelta(t, 100, avg, 0.0001)
}

func TestAdjustRejectsNonListInput(t *testing.T) {
	_, err := (Adjust{}).Run(context.Background(), &registry.Call{
		Inputs: map[string]cty.Value{
			"values":           cty.StringVal("oops"),
			"factor":           cty.NumberFloatVal(0.5),
			"needs_adjustment": cty.True,
		},
		State: state.Empty(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adjust:")
}

func TestEvaluateFlagsAdjustmentNeed(t *testing.T) {
	run := func(values []int64, threshold int64) *registry.Result {
		elems := make([]cty.Value, len(values))
		for i, v := range values {
			elems[i] = cty.NumberIntVal(v)
		}
		res, err := (Evaluate{}).Run(context.Background(), &registry.Call{
			Inputs: map[string]cty.Value{
				"values":    cty.ListVal(elems),
				"threshold": cty.NumberIntVal(threshold),
			},
		})
		require.NoError(t, err)
		return res
	}

	res := run([]int64{110, 120, 130, 90, 80}, 100)
	avg, _ := res.Outputs["average"].AsBigFloat().Float64()
	assert.InDelta(t, 106, avg, 0.0001)
	assert.Equal(t, cty.True, res.Outputs["needs_adjustment"])

	res = run([]int64{90, 90}, 100)
	assert.Equal(t, cty.False, res.Outputs["needs_adjustment"])
}

func TestPrintAcceptsAnything(t *testing.T) {
	res, err := (Print{}).Run(context.Background(), &registry.Call{
		Inputs: map[string]cty.Value{},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Outputs)
	assert.Empty(t, (Print{}).DeclareParams())
}

func TestNoAdjustmentNeededCallback(t *testing.T) {
	done, err := NoAdjustmentNeeded(map[string]cty.Value{"needs_adjustment": cty.False}, 0, cty.EmptyObjectVal)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = NoAdjustmentNeeded(map[string]cty.Value{"needs_adjustment": cty.True}, 0, cty.EmptyObjectVal)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = NoAdjustmentNeeded(map[string]cty.Value{}, 0, cty.EmptyObjectVal)
	require.Error(t, err)
}
