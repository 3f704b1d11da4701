package params

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

func ptr(v cty.Value) *cty.Value { return &v }

func contractNode(contract config.Contract) *graph.Node {
	return &graph.Node{Name: "target", Type: "test", Contract: contract}
}

func TestResolvePrecedence(t *testing.T) {
	node := contractNode(config.Contract{
		"factor": {Type: cty.Number},
	})

	src := Sources{
		Config:    map[string]cty.Value{"factor": cty.NumberFloatVal(0.5)},
		Connected: map[string]cty.Value{"factor": cty.NumberFloatVal(0.7)},
		Overrides: map[string]cty.Value{"factor": cty.NumberFloatVal(0.9)},
	}

	resolved, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	assert.Equal(t, cty.NumberFloatVal(0.9), resolved["factor"])

	t.Run("connection beats config", func(t *testing.T) {
		src.Overrides = nil
		resolved, err := Resolve(context.Background(), node, src)
		require.NoError(t, err)
		assert.Equal(t, cty.NumberFloatVal(0.7), resolved["factor"])
	})

	t.Run("config alone", func(t *testing.T) {
		src.Connected = nil
		resolved, err := Resolve(context.Background(), node, src)
		require.NoError(t, err)
		assert.Equal(t, cty.NumberFloatVal(0.5), resolved["factor"])
	})
}

func TestResolveDropsUndeclaredParameters(t *testing.T) {
	node := contractNode(config.Contract{
		"declared": {Type: cty.String},
	})

	src := Sources{
		Config:    map[string]cty.Value{"declared": cty.StringVal("keep"), "sneaky": cty.StringVal("drop")},
		Connected: map[string]cty.Value{"injected": cty.StringVal("drop")},
		Overrides: map[string]cty.Value{"admin": cty.BoolVal(true)},
	}

	resolved, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	assert.Equal(t, map[string]cty.Value{"declared": cty.StringVal("keep")}, resolved)
}

func TestResolveEmptyContractReceivesNothing(t *testing.T) {
	node := contractNode(config.Contract{})

	src := Sources{
		Config:    map[string]cty.Value{"a": cty.NumberIntVal(1)},
		Connected: map[string]cty.Value{"b": cty.NumberIntVal(2)},
		Overrides: map[string]cty.Value{"c": cty.NumberIntVal(3)},
	}

	resolved, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolveAppliesDefaults(t *testing.T) {
	node := contractNode(config.Contract{
		"threshold": {Type: cty.Number, Default: ptr(cty.NumberIntVal(100))},
		"label":     {Type: cty.String, Default: ptr(cty.StringVal("run"))},
	})

	t.Run("all sources empty", func(t *testing.T) {
		resolved, err := Resolve(context.Background(), node, Sources{})
		require.NoError(t, err)
		assert.Equal(t, cty.NumberIntVal(100), resolved["threshold"])
		assert.Equal(t, cty.StringVal("run"), resolved["label"])
	})

	t.Run("explicit null takes the default", func(t *testing.T) {
		src := Sources{Config: map[string]cty.Value{"threshold": cty.NullVal(cty.Number)}}
		resolved, err := Resolve(context.Background(), node, src)
		require.NoError(t, err)
		assert.Equal(t, cty.NumberIntVal(100), resolved["threshold"])
	})

	t.Run("provided value wins over default", func(t *testing.T) {
		src := Sources{Overrides: map[string]cty.Value{"threshold": cty.NumberIntVal(80)}}
		resolved, err := Resolve(context.Background(), node, src)
		require.NoError(t, err)
		assert.Equal(t, cty.NumberIntVal(80), resolved["threshold"])
	})
}

func TestResolveMissingRequiredParameter(t *testing.T) {
	node := contractNode(config.Contract{
		"values": {Type: cty.List(cty.Number), Required: true},
	})

	_, err := Resolve(context.Background(), node, Sources{})
	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "target", missing.Node)
	assert.Equal(t, "values", missing.Parameter)
}

func TestResolveConvertsToDeclaredType(t *testing.T) {
	node := contractNode(config.Contract{
		"count": {Type: cty.Number},
	})

	src := Sources{Config: map[string]cty.Value{"count": cty.StringVal("42")}}
	resolved, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	assert.Equal(t, cty.Number, resolved["count"].Type())

	t.Run("unconvertible value fails", func(t *testing.T) {
		src := Sources{Config: map[string]cty.Value{"count": cty.StringVal("not a number")}}
		_, err := Resolve(context.Background(), node, src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot convert")
	})
}

func TestResolveIsDeterministic(t *testing.T) {
	node := contractNode(config.Contract{
		"a": {Type: cty.Number, Default: ptr(cty.NumberIntVal(1))},
		"b": {Type: cty.String},
	})
	src := Sources{
		Config:    map[string]cty.Value{"b": cty.StringVal("x")},
		Overrides: map[string]cty.Value{"a": cty.NumberIntVal(7)},
	}

	first, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	second, err := Resolve(context.Background(), node, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyConnectionFieldMapping(t *testing.T) {
	outputs := map[string]cty.Value{
		"values":  cty.ListVal([]cty.Value{cty.NumberIntVal(1)}),
		"average": cty.NumberFloatVal(95.4),
		"extra":   cty.StringVal("ignored"),
	}

	t.Run("explicit mapping renames and filters", func(t *testing.T) {
		conn := &config.Connection{
			Source: "evaluator",
			Target: "adjuster",
			Fields: map[string]string{"values": "values", "average": "last_average"},
		}
		projected := ApplyConnection(conn, outputs)
		assert.Equal(t, outputs["values"], projected["values"])
		assert.Equal(t, outputs["average"], projected["last_average"])
		assert.NotContains(t, projected, "extra")
		assert.NotContains(t, projected, "average")
	})

	t.Run("empty mapping passes everything through", func(t *testing.T) {
		conn := &config.Connection{Source: "a", Target: "b"}
		projected := ApplyConnection(conn, outputs)
		assert.Equal(t, outputs, projected)
	})

	t.Run("mapping of absent field is skipped", func(t *testing.T) {
		conn := &config.Connection{Fields: map[string]string{"missing": "param"}}
		projected := ApplyConnection(conn, outputs)
		assert.Empty(t, projected)
	})
}
