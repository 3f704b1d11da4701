// Package testutil provides tiny handler implementations for tests.
package testutil

import (
	"context"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/registry"
)

// FuncHandler adapts a contract and a function into a registry.Handler.
type FuncHandler struct {
	Contract config.Contract
	RunFn    func(ctx context.Context, call *registry.Call) (*registry.Result, error)
}

func (h *FuncHandler) DeclareParams() config.Contract {
	if h.Contract == nil {
		return config.Contract{}
	}
	return h.Contract
}

func (h *FuncHandler) Run(ctx context.Context, call *registry.Call) (*registry.Result, error) {
	if h.RunFn == nil {
		return &registry.Result{}, nil
	}
	return h.RunFn(ctx, call)
}

var _ registry.Handler = (*FuncHandler)(nil)

// Noop returns a handler with an empty contract that does nothing.
func Noop() *FuncHandler {
	return &FuncHandler{}
}
