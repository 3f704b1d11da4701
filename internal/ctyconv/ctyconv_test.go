package ctyconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestToCtyPrimitives(t *testing.T) {
	val, err := ToCty("hello")
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("hello"), val)

	val, err = ToCty(true)
	require.NoError(t, err)
	assert.Equal(t, cty.True, val)

	val, err = ToCty(42)
	require.NoError(t, err)
	assert.Equal(t, cty.Number, val.Type())

	val, err = ToCty(nil)
	require.NoError(t, err)
	assert.True(t, val.IsNull())
}

func TestToCtyStructured(t *testing.T) {
	val, err := ToCty(map[string]any{
		"name":  "run",
		"count": 3,
		"tags":  []any{"a", "b"},
	})
	require.NoError(t, err)

	require.True(t, val.Type().IsObjectType())
	assert.Equal(t, cty.StringVal("run"), val.GetAttr("name"))
	assert.Equal(t, 2, val.GetAttr("tags").LengthInt())
}

func TestToCtyEmptySlice(t *testing.T) {
	val, err := ToCty([]any{})
	require.NoError(t, err)
	assert.Equal(t, cty.EmptyTupleVal, val)
}

func TestToCtyUnsupportedType(t *testing.T) {
	_, err := ToCty(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Go type")
}

func TestFromCtyRoundTrip(t *testing.T) {
	original := map[string]any{
		"label":   "x",
		"enabled": true,
		"count":   float64(7),
		"list":    []any{float64(1), float64(2)},
	}

	val, err := ToCty(original)
	require.NoError(t, err)
	back, err := FromCty(val)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestFromCtyNullAndUnknown(t *testing.T) {
	got, err := FromCty(cty.NullVal(cty.String))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = FromCty(cty.UnknownVal(cty.Number))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSortedKeys(t *testing.T) {
	m := map[string]cty.Value{
		"zeta":  cty.True,
		"alpha": cty.True,
		"mid":   cty.True,
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(nil))
}
