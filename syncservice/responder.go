// Package syncservice is the peripheral side of the session sync protocol:
// a stateless responder that answers cursor queries, and the GATT service
// that exposes it (together with live CSC telemetry) over BLE.
package syncservice

import (
	"log/slog"

	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/syncwire"
)

// SessionSource answers the one query the responder needs. The session
// manager implements it; only closed sessions are visible, so a session
// cannot be synced until its boundary is final.
type SessionSource interface {
	ClosedSince(cursor int64) []sessions.Session
}

// Responder handles one sync request per invocation. It is a pure read:
// it never mutates state and never tracks which client has seen what, so
// any number of clients can replay overlapping cursor ranges safely.
type Responder struct {
	src SessionSource
	log *slog.Logger
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithResponderLogger sets the logger. Defaults to slog.Default().
func WithResponderLogger(log *slog.Logger) ResponderOption {
	return func(r *Responder) { r.log = log }
}

// NewResponder creates a responder over src.
func NewResponder(src SessionSource, opts ...ResponderOption) *Responder {
	r := &Responder{src: src, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one raw request and returns the encoded response. A
// malformed request yields an error payload rather than silence, so the
// client can tell "bad request" from "dropped connection".
func (r *Responder) Handle(req []byte) []byte {
	cursor, err := syncwire.ParseCursor(req)
	if err != nil {
		r.log.Warn("rejected sync request", "err", err)
		return syncwire.EncodeError(err.Error())
	}

	since := r.src.ClosedSince(int64(cursor))
	resp, err := syncwire.EncodeResponse(since)
	if err != nil {
		r.log.Error("encode sync response", "err", err)
		return syncwire.EncodeError("internal error")
	}

	if len(since) == 0 {
		r.log.Info("sync exhausted", "cursor", cursor)
	} else {
		r.log.Info("serving session",
			"cursor", cursor,
			"start_time", since[0].StartTime,
			"remaining", len(since)-1,
			"response_bytes", len(resp))
	}
	return resp
}
