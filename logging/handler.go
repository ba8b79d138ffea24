package logging

import (
	"context"
	"log/slog"
)

// componentKey names the attribute the loader's subsystems tag their
// loggers with (loader, kernel, bpffs, store). The handler reads it to
// select the effective level from the Spec.
const componentKey = "component"

// specHandler enforces a Spec's per-component levels in front of an
// inner handler. The component binds through the first top-level
// "component" attribute; attributes added inside a group are record
// payload and never rebind it.
type specHandler struct {
	inner     slog.Handler
	spec      *Spec
	component string
	grouped   bool
}

// NewSpecHandler wraps inner with level filtering driven by spec.
func NewSpecHandler(inner slog.Handler, spec *Spec) slog.Handler {
	return &specHandler{inner: inner, spec: spec}
}

func (h *specHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.spec.LevelFor(h.component).ToSlog()
}

func (h *specHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *specHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	if !h.grouped {
		for _, a := range attrs {
			if a.Key == componentKey {
				next.component = a.Value.String()
			}
		}
	}
	return &next
}

func (h *specHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	next.grouped = true
	return &next
}
