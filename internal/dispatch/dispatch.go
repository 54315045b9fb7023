// Package dispatch adapts tool backends to the sandbox runtime's
// handler contract: an in-process registry for embedded use and an
// HTTP forwarder for remote tool services.
package dispatch

import (
	"context"
	"fmt"

	"github.com/scriptward/scriptward/internal/enclave"
)

// Handler executes one named tool call. Implementations receive the
// run's context and the fully resolved argument object.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registry returns a ToolFunc that dispatches to in-process handlers
// by name. The handler table is copied; later mutation of the input
// map does not change routing.
func Registry(handlers map[string]Handler) enclave.ToolFunc {
	own := make(map[string]Handler, len(handlers))
	for name, h := range handlers {
		own[name] = h
	}
	return func(ctx context.Context, name string, args map[string]any) (any, error) {
		h, ok := own[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		return h(ctx, args)
	}
}

// Echo returns a single-tool registry whose "echo" tool reflects its
// arguments back to the script. The MCP server wires it in when no
// tool endpoint is configured.
func Echo() enclave.ToolFunc {
	return Registry(map[string]Handler{
		"echo": func(_ context.Context, args map[string]any) (any, error) {
			if args == nil {
				return map[string]any{}, nil
			}
			return args, nil
		},
	})
}
