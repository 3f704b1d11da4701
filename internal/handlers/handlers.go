// Package handlers provides the built-in node handler set. These are small,
// self-contained collaborators used by the example workflows and the system
// tests; anything heavier (HTTP, model inference, file I/O) belongs in
// external handler modules registered the same way.
package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/ctyconv"
	"github.com/vk/gridloop/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Core registers the built-in handlers and convergence callbacks.
type Core struct{}

func (Core) Register(r *registry.Registry) {
	r.RegisterHandler("emit", &Emit{})
	r.RegisterHandler("adjust", &Adjust{})
	r.RegisterHandler("evaluate", &Evaluate{})
	r.RegisterHandler("print", &Print{})
	r.RegisterCallback("no_adjustment_needed", NoAdjustmentNeeded)
}

var _ registry.Module = Core{}

func numberVal(f float64) cty.Value {
	return cty.NumberVal(big.NewFloat(f))
}

func numberList(values []float64) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	elems := make([]cty.Value, len(values))
	for i, v := range values {
		elems[i] = numberVal(v)
	}
	return cty.ListVal(elems)
}

func toFloats(val cty.Value) ([]float64, error) {
	if val.IsNull() || !val.CanIterateElements() {
		return nil, fmt.Errorf("expected a list of numbers, got %s", val.Type().FriendlyName())
	}
	out := make([]float64, 0, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.Number {
			return nil, fmt.Errorf("expected a number element, got %s", elem.Type().FriendlyName())
		}
		f, _ := elem.AsBigFloat().Float64()
		out = append(out, f)
	}
	return out, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Emit outputs its configured values unchanged. The usual source node at
// the head of a workflow.
type Emit struct{}

func (Emit) DeclareParams() config.Contract {
	return config.Contract{
		"values": {Type: cty.DynamicPseudoType, Required: true, Description: "the value set to emit"},
	}
}

func (Emit) Run(_ context.Context, call *registry.Call) (*registry.Result, error) {
	return &registry.Result{
		Outputs: map[string]cty.Value{"values": call.Inputs["values"]},
	}, nil
}

// Adjust scales a number list by a factor while adjustment is requested,
// and appends each produced average to a `history` list in carried state.
type Adjust struct{}

func (Adjust) DeclareParams() config.Contract {
	factorDefault := numberVal(0.9)
	needsDefault := cty.True
	return config.Contract{
		"values":           {Type: cty.List(cty.Number), Required: true, Description: "numbers to adjust"},
		"factor":           {Type: cty.Number, Default: &factorDefault, Description: "multiplier applied per iteration"},
		"needs_adjustment": {Type: cty.Bool, Default: &needsDefault, Description: "whether to scale this iteration"},
	}
}

func (Adjust) Run(_ context.Context, call *registry.Call) (*registry.Result, error) {
	values, err := toFloats(call.Inputs["values"])
	if err != nil {
		return nil, fmt.Errorf("adjust: %w", err)
	}
	factor, _ := call.Inputs["factor"].AsBigFloat().Float64()

	if call.Inputs["needs_adjustment"].True() {
		for i := range values {
			values[i] *= factor
		}
	}
	average := mean(values)

	history := []cty.Value{}
	if call.State.Type().IsObjectType() && call.State.Type().HasAttribute("history") {
		prior := call.State.GetAttr("history")
		for it := prior.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			history = append(history, elem)
		}
	}
	history = append(history, numberVal(average))

	return &registry.Result{
		Outputs: map[string]cty.Value{
			"values":  numberList(values),
			"average": numberVal(average),
		},
		State: cty.ObjectVal(map[string]cty.Value{
			"history": cty.TupleVal(history),
		}),
	}, nil
}

// Evaluate computes the mean of a number list and flags whether another
// adjustment pass is needed.
type Evaluate struct{}

func (Evaluate) DeclareParams() config.Contract {
	thresholdDefault := numberVal(100)
	return config.Contract{
		"values":    {Type: cty.List(cty.Number), Required: true, Description: "numbers to evaluate"},
		"threshold": {Type: cty.Number, Default: &thresholdDefault, Description: "acceptable average"},
	}
}

func (Evaluate) Run(_ context.Context, call *registry.Call) (*registry.Result, error) {
	values, err := toFloats(call.Inputs["values"])
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	threshold, _ := call.Inputs["threshold"].AsBigFloat().Float64()
	average := mean(values)

	return &registry.Result{
		Outputs: map[string]cty.Value{
			"values":           call.Inputs["values"],
			"average":          numberVal(average),
			"needs_adjustment": cty.BoolVal(average > threshold),
		},
	}, nil
}

// Print logs whatever reaches it. Its contract is empty, so no connected or
// injected value ever reaches Run; it is a pure sink.
type Print struct{}

func (Print) DeclareParams() config.Contract {
	return config.Contract{}
}

func (Print) Run(ctx context.Context, call *registry.Call) (*registry.Result, error) {
	logger := ctxlog.FromContext(ctx)
	loggable := make(map[string]any, len(call.Inputs))
	for name, val := range call.Inputs {
		converted, err := ctyconv.FromCty(val)
		if err != nil {
			converted = fmt.Sprintf("[unloggable: %v]", err)
		}
		loggable[name] = converted
	}
	logger.Info("🖨️ print", "run_id", call.RunID, "iteration", call.Iteration, "inputs", loggable)
	return &registry.Result{}, nil
}

// NoAdjustmentNeeded is a convergence callback that stops a cycle as soon as
// the terminal node reports needs_adjustment = false.
func NoAdjustmentNeeded(results map[string]cty.Value, _ int, _ cty.Value) (bool, error) {
	flag, ok := results["needs_adjustment"]
	if !ok || flag.IsNull() || flag.Type() != cty.Bool {
		return false, fmt.Errorf("terminal output has no boolean needs_adjustment field")
	}
	return !flag.True(), nil
}
