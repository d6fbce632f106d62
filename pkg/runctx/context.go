// Package runctx carries per-run state (logger, viper instance, run id) on a
// context.Context.
package runctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	slogctx "github.com/veqryn/slog-context"
)

// Context key type - struct to avoid collisions with other packages
type contextKey struct{ name string }

var viperKey = contextKey{"viper"}

// Logger returns a logger from context with additional attributes
func Logger(ctx context.Context, args ...any) *slog.Logger {
	return slogctx.FromCtx(ctx).With(args...)
}

// NewViper creates an owned viper instance with :: delimiter.
// The :: delimiter allows dots in keys such as extra flag names (e.g. log.level).
func NewViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter("::"))
}

// ContextWithViper returns a context with viper instance stored
func ContextWithViper(ctx context.Context, v *viper.Viper) context.Context {
	return context.WithValue(ctx, viperKey, v)
}

// Viper returns the viper instance from context.
// Panics if viper was not set - this is a programming error.
func Viper(ctx context.Context) *viper.Viper {
	v, ok := ctx.Value(viperKey).(*viper.Viper)
	if !ok {
		panic("viper not found in context - must call ContextWithViper first")
	}
	return v
}

// ContextWithRunID tags the context's logger with a fresh run id.
func ContextWithRunID(ctx context.Context) context.Context {
	return slogctx.With(ctx, slog.String("run", uuid.New().String()))
}
