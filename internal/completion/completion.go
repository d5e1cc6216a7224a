// Package completion abstracts the text-completion service behind a single
// Complete call. The pipeline treats the returned text as untrusted and
// parses it defensively.
package completion

import "context"

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Completer interface; used by tests.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
