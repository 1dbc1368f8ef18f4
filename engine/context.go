package engine

import "context"

type wfCtxKey struct{}

// WithWorkflowContext returns a child context that carries wf. Engine
// adapters use this when invoking activity handlers so tool executors can
// retrieve the originating WorkflowContext if they need it (for example,
// to check cancellation state directly).
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, wfCtxKey{}, wf)
}

// WorkflowContextFromContext extracts a WorkflowContext from ctx if
// present.
func WorkflowContextFromContext(ctx context.Context) WorkflowContext {
	if v := ctx.Value(wfCtxKey{}); v != nil {
		if wf, ok := v.(WorkflowContext); ok {
			return wf
		}
	}
	return nil
}
