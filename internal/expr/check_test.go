package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCompileRejectsMalformedSource(t *testing.T) {
	_, err := Compile("average <= ")
	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "average <= ", exprErr.Source)
}

func TestCompileRejectsDisallowedFunction(t *testing.T) {
	_, err := Compile(`file("/etc/passwd") == "x"`)
	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Contains(t, exprErr.Detail, `function "file" is not available`)
}

func TestCompileRejectsNestedDisallowedFunction(t *testing.T) {
	_, err := Compile(`abs(length(values)) <= 3`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"length"`)
}

func TestEvalThresholdCheck(t *testing.T) {
	check, err := Compile("average <= 100")
	require.NoError(t, err)
	assert.Equal(t, "average <= 100", check.Source())

	outputs := map[string]cty.Value{"average": cty.NumberFloatVal(95.4)}
	ok, err := check.Eval(outputs, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	outputs["average"] = cty.NumberFloatVal(106)
	ok, err = check.Eval(outputs, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalIterationVariable(t *testing.T) {
	check, err := Compile("iteration >= 2")
	require.NoError(t, err)

	ok, err := check.Eval(nil, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = check.Eval(nil, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalAllowedFunctions(t *testing.T) {
	check, err := Compile("abs(delta) < max(tolerance, 0.5)")
	require.NoError(t, err)

	ok, err := check.Eval(map[string]cty.Value{
		"delta":     cty.NumberFloatVal(-0.2),
		"tolerance": cty.NumberFloatVal(0.1),
	}, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalUnknownVariableIsFatal(t *testing.T) {
	check, err := Compile("missing <= 100")
	require.NoError(t, err)

	_, err = check.Eval(map[string]cty.Value{"average": cty.NumberIntVal(50)}, 0)
	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
}

func TestEvalNonBooleanResultIsFatal(t *testing.T) {
	check, err := Compile("average + 1")
	require.NoError(t, err)

	_, err = check.Eval(map[string]cty.Value{"average": cty.NumberIntVal(5)}, 0)
	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Contains(t, exprErr.Detail, "want bool")
}

func TestEvalConditionalExpression(t *testing.T) {
	check, err := Compile("iteration < 1 ? false : average <= 100")
	require.NoError(t, err)

	ok, err := check.Eval(map[string]cty.Value{"average": cty.NumberIntVal(40)}, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = check.Eval(map[string]cty.Value{"average": cty.NumberIntVal(40)}, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
