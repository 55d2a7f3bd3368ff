// Package progress carries an optional status callback through a context.
// The CLI installs one that drives its spinner; the MCP server installs none.
package progress

import (
	"context"
	"fmt"
)

// Func receives human-readable status lines.
type Func func(msg string)

type key struct{}

// With returns a context carrying fn.
func With(ctx context.Context, fn Func) context.Context {
	return context.WithValue(ctx, key{}, fn)
}

// Report calls the callback in ctx, if any.
func Report(ctx context.Context, msg string) {
	if fn, ok := ctx.Value(key{}).(Func); ok && fn != nil {
		fn(msg)
	}
}

// Reportf formats msg before reporting it.
func Reportf(ctx context.Context, format string, args ...any) {
	if fn, ok := ctx.Value(key{}).(Func); ok && fn != nil {
		fn(fmt.Sprintf(format, args...))
	}
}
