// Package logctx enriches slog records with request-scoped context: which
// device the peripheral is running as, and which sync pass a client log
// line belongs to.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends context-derived groups to
// every record.
type Handler struct {
	slog.Handler
}

type deviceDataKey struct{}

// DeviceData identifies the peripheral role's device.
type DeviceData struct {
	Name string
	Addr string
}

// WithDevice attaches device identity to the context.
func WithDevice(ctx context.Context, d *DeviceData) context.Context {
	return context.WithValue(ctx, deviceDataKey{}, d)
}

type passDataKey struct{}

// PassData identifies one sync pass on the client role.
type PassData struct {
	PassID       string
	PeripheralID string
}

// WithPass attaches sync pass identity to the context.
func WithPass(ctx context.Context, p *PassData) context.Context {
	return context.WithValue(ctx, passDataKey{}, p)
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if d, ok := ctx.Value(deviceDataKey{}).(*DeviceData); ok {
		r.AddAttrs(slog.Group("device",
			slog.String("name", d.Name),
			slog.String("addr", d.Addr),
		))
	}
	if p, ok := ctx.Value(passDataKey{}).(*PassData); ok {
		r.AddAttrs(slog.Group("pass",
			slog.String("id", p.PassID),
			slog.String("peripheral_id", p.PeripheralID),
		))
	}
	return h.Handler.Handle(ctx, r)
}
