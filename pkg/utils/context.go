package utils

import (
	"context"
	"time"
)

// WithOptionalTimeout bounds ctx by timeout when it is positive. The returned
// cancel func is never nil.
func WithOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
