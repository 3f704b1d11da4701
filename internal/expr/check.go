// Package expr compiles and evaluates convergence check expressions. An
// expression is a small boolean/arithmetic condition over the terminal node's
// output namespace ("average <= 100"), parsed with HCL syntax and evaluated
// against a sandboxed scope: only the terminal outputs, the current iteration
// index, and a short allowlist of numeric functions are visible. It is
// deliberately not a general code evaluator.
package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/gridloop/internal/ctyconv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Error is a fatal convergence expression failure: a parse error, a call to
// a function outside the sandbox, or an evaluation that does not yield a
// boolean. Detected at build time where statically feasible, otherwise on
// first evaluation.
type Error struct {
	Source string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("convergence expression %q: %s", e.Source, e.Detail)
}

// allowedFunctions is the complete sandbox function surface.
var allowedFunctions = map[string]function.Function{
	"abs":   stdlib.AbsoluteFunc,
	"min":   stdlib.MinFunc,
	"max":   stdlib.MaxFunc,
	"floor": stdlib.FloorFunc,
	"ceil":  stdlib.CeilFunc,
}

// Check is a compiled convergence expression. Compile once at graph build
// time; Eval once per cycle iteration.
type Check struct {
	source string
	expr   hclsyntax.Expression
}

// Compile parses and statically validates a convergence expression. Parse
// failures and references to functions outside the sandbox are reported
// here, before any iteration runs.
func Compile(source string) (*Check, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(source), "convergence_check", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &Error{Source: source, Detail: diags.Error()}
	}

	calls := make(map[string]struct{})
	collectFunctionCalls(expr, calls)
	for name := range calls {
		if _, ok := allowedFunctions[name]; !ok {
			return nil, &Error{Source: source, Detail: fmt.Sprintf("function %q is not available in convergence expressions", name)}
		}
	}

	return &Check{source: source, expr: expr}, nil
}

// Source returns the original expression text.
func (c *Check) Source() string {
	return c.source
}

// Eval evaluates the expression against the given output namespace. Every
// output field is a root variable; `iteration` is also in scope. References
// to anything else fail the evaluation.
func (c *Check) Eval(outputs map[string]cty.Value, iteration int) (bool, error) {
	vars := make(map[string]cty.Value, len(outputs)+1)
	for _, name := range ctyconv.SortedKeys(outputs) {
		vars[name] = outputs[name]
	}
	vars["iteration"] = cty.NumberIntVal(int64(iteration))

	evalCtx := &hcl.EvalContext{
		Variables: vars,
		Functions: allowedFunctions,
	}

	val, diags := c.expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, &Error{Source: c.source, Detail: diags.Error()}
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, &Error{Source: c.source, Detail: fmt.Sprintf("result is %s, want bool", val.Type().FriendlyName())}
	}
	if boolVal.IsNull() || !boolVal.IsKnown() {
		return false, &Error{Source: c.source, Detail: "result is null or unknown"}
	}
	return boolVal.True(), nil
}

// collectFunctionCalls walks the syntax tree gathering every function call
// name, so the sandbox can be enforced before evaluation.
func collectFunctionCalls(expr hclsyntax.Expression, calls map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		calls[e.Name] = struct{}{}
		for _, arg := range e.Args {
			collectFunctionCalls(arg, calls)
		}
	case *hclsyntax.BinaryOpExpr:
		collectFunctionCalls(e.LHS, calls)
		collectFunctionCalls(e.RHS, calls)
	case *hclsyntax.UnaryOpExpr:
		collectFunctionCalls(e.Val, calls)
	case *hclsyntax.ConditionalExpr:
		collectFunctionCalls(e.Condition, calls)
		collectFunctionCalls(e.TrueResult, calls)
		collectFunctionCalls(e.FalseResult, calls)
	case *hclsyntax.ParenthesesExpr:
		collectFunctionCalls(e.Expression, calls)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			collectFunctionCalls(item, calls)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			collectFunctionCalls(item.KeyExpr, calls)
			collectFunctionCalls(item.ValueExpr, calls)
		}
	case *hclsyntax.IndexExpr:
		collectFunctionCalls(e.Collection, calls)
		collectFunctionCalls(e.Key, calls)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			collectFunctionCalls(part, calls)
		}
	case *hclsyntax.TemplateWrapExpr:
		collectFunctionCalls(e.Wrapped, calls)
	}
}
