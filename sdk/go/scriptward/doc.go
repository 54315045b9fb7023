// Package scriptward provides in-process script enforcement for Go agent
// frameworks. It runs untrusted scripts through the full pipeline: a
// mandatory pre-scan, rule validation, risk scoring, then execution in a
// bounded enclave where oversized values travel as opaque references a
// script can pass but never read.
//
// Usage:
//
//	ward, err := scriptward.New(
//	    scriptward.WithLevel("strict"),
//	    scriptward.WithBlockThreshold(0.7),
//	)
//	if err != nil {
//	    return err
//	}
//	defer ward.Close()
//
//	result, err := ward.Run(ctx, source, map[string]scriptward.Handler{
//	    "search": func(ctx context.Context, args map[string]any) (any, error) {
//	        return index.Search(ctx, args)
//	    },
//	})
//	var blocked *scriptward.BlockedError
//	if errors.As(err, &blocked) {
//	    log.Printf("refused at %s: %s", blocked.Stage, blocked.Reason)
//	}
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/scriptward/scriptward/sdk/go/scriptward.
package scriptward
