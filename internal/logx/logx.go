// Package logx is the ambient structured logger used by the mcapsrc
// bridge. Decoder-facing packages (wire, handlers, defs,
// refcount, sink) never import it: they report failure through returned
// errors, not log lines.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

type tagsKey struct{}

// With returns a context carrying kvs appended to any tags already present,
// so a field survives through a call chain without being threaded as a
// parameter. len(kvs) must be even.
func With(ctx context.Context, kvs ...any) context.Context {
	if len(kvs)%2 != 0 {
		panic("logx: With requires an even number of arguments")
	}
	existing, _ := ctx.Value(tagsKey{}).([]any)
	merged := make([]any, 0, len(existing)+len(kvs))
	merged = append(merged, existing...)
	merged = append(merged, kvs...)
	return context.WithValue(ctx, tagsKey{}, merged)
}

func emit(ctx context.Context, level slog.Level, msg string, kvs []any) {
	handler := slog.Default().Handler()
	if !handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	tags, _ := ctx.Value(tagsKey{}).([]any)
	for i := 0; i+1 < len(tags); i += 2 {
		r.Add(tags[i], tags[i+1])
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		r.Add(kvs[i], kvs[i+1])
	}
	if err := handler.Handle(ctx, r); err != nil {
		fmt.Printf("logx: handler error: %v\n", err)
	}
}

func Infof(ctx context.Context, format string, args ...any) {
	emit(ctx, slog.LevelInfo, fmt.Sprintf(format, args...), nil)
}

func Warnf(ctx context.Context, format string, args ...any) {
	emit(ctx, slog.LevelWarn, fmt.Sprintf(format, args...), nil)
}

func Errorf(ctx context.Context, format string, args ...any) {
	emit(ctx, slog.LevelError, fmt.Sprintf(format, args...), nil)
}

func Debugf(ctx context.Context, format string, args ...any) {
	emit(ctx, slog.LevelDebug, fmt.Sprintf(format, args...), nil)
}

// Infow and friends take structured key-value pairs instead of a format
// string, for call sites that want queryable fields rather than prose.
func Infow(ctx context.Context, msg string, kvs ...any) {
	emit(ctx, slog.LevelInfo, msg, kvs)
}

func Warnw(ctx context.Context, msg string, kvs ...any) {
	emit(ctx, slog.LevelWarn, msg, kvs)
}

func Errorw(ctx context.Context, msg string, kvs ...any) {
	emit(ctx, slog.LevelError, msg, kvs)
}
