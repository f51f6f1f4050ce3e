// Package syncclient drives one bounded sync pass against a connected
// peripheral: verify the transport can carry a response, resolve the cursor
// from the durable store, then loop request/confirm/advance until the
// responder reports nothing newer.
//
// The loop is deliberately straight-line sequential code over an abstract
// Transport; cancellation and the pass budget are expressed through the
// context, not callback state.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/biketracker/biketracker-go/healthstore"
	"github.com/biketracker/biketracker-go/syncwire"
)

// Pass-level failure classes. Wrapped errors preserve detail; callers can
// errors.Is against these to tell "found but incompatible" from "not found"
// from "store trouble".
var (
	// ErrMTUTooSmall means the negotiated payload size cannot carry one
	// response. No query is attempted.
	ErrMTUTooSmall = errors.New("syncclient: negotiated MTU below response minimum")
	// ErrMalformedResponse means a response failed to parse or carried a
	// responder error. The pass stops without advancing the cursor.
	ErrMalformedResponse = errors.New("syncclient: malformed sync response")
	// ErrStoreUnavailable means the durable store kept rejecting the same
	// record past the retry bound.
	ErrStoreUnavailable = errors.New("syncclient: durable store unavailable")
	// ErrBudgetExceeded means the pass ran out of wall-clock budget.
	// Progress already written stays written.
	ErrBudgetExceeded = errors.New("syncclient: pass budget exceeded")
)

// Transport is the connected peripheral as the client sees it: one
// write-then-read characteristic exchange plus the negotiated payload size.
type Transport interface {
	// MTU reports the negotiated ATT MTU for the sync characteristic.
	MTU() (uint16, error)
	// WriteRequest sends one cursor request.
	WriteRequest(ctx context.Context, data []byte) error
	// ReadResponse reads back the response to the preceding write.
	ReadResponse(ctx context.Context) ([]byte, error)
}

// Result summarizes a pass. Synced counts records durably written during
// this pass; Remaining is the responder's last reported backlog, nonzero
// only when the pass ended early.
type Result struct {
	Synced    int
	Remaining int
}

// Defaults for pass tuning.
const (
	DefaultBudget        = 30 * time.Second
	DefaultUpsertRetries = 3
)

// Option configures a Client.
type Option func(*Client)

// WithBudget sets the wall-clock budget for one pass.
func WithBudget(d time.Duration) Option {
	return func(c *Client) { c.budget = d }
}

// WithUpsertRetries bounds consecutive upsert failures on the same cursor.
func WithUpsertRetries(n int) Option {
	return func(c *Client) { c.upsertRetries = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client runs sync passes for one peripheral. A Client is not safe for
// concurrent passes; the scheduler must not overlap them.
type Client struct {
	transport    Transport
	store        healthstore.Store
	peripheralID string

	budget        time.Duration
	upsertRetries int
	log           *slog.Logger
}

// New creates a sync client bound to a transport, a durable store and the
// peripheral's identity (used to tag and look up records).
func New(transport Transport, store healthstore.Store, peripheralID string, opts ...Option) *Client {
	c := &Client{
		transport:     transport,
		store:         store,
		peripheralID:  peripheralID,
		budget:        DefaultBudget,
		upsertRetries: DefaultUpsertRetries,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync runs one pass to completion, abort, or budget exhaustion. Partial
// progress is always reported in Result; every record counted in Synced is
// durably stored even when err is non-nil.
func (c *Client) Sync(ctx context.Context) (Result, error) {
	var res Result

	mtu, err := c.transport.MTU()
	if err != nil {
		return res, fmt.Errorf("read negotiated MTU: %w", err)
	}
	if mtu < syncwire.MinResponseMTU {
		return res, fmt.Errorf("%w: negotiated %d, need %d", ErrMTUTooSmall, mtu, syncwire.MinResponseMTU)
	}

	cursor, err := c.store.MaxStartTime(ctx, c.peripheralID)
	if err != nil {
		return res, fmt.Errorf("resolve sync cursor: %w", err)
	}
	c.log.Info("starting sync pass", "peripheral_id", c.peripheralID, "cursor", cursor, "mtu", mtu)

	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, c.passErr(err)
		}

		if err := c.transport.WriteRequest(ctx, syncwire.EncodeCursor(uint32(cursor))); err != nil {
			return res, c.transportErr("write cursor request", err, ctx)
		}
		raw, err := c.transport.ReadResponse(ctx)
		if err != nil {
			return res, c.transportErr("read sync response", err, ctx)
		}

		resp, err := syncwire.ParseResponse(raw)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if resp.Err != "" {
			return res, fmt.Errorf("%w: responder error: %s", ErrMalformedResponse, resp.Err)
		}
		if resp.Session == nil {
			// Exhausted: everything up to now is synced.
			res.Remaining = 0
			c.log.Info("sync pass complete", "synced", res.Synced)
			return res, nil
		}
		res.Remaining = resp.RemainingSessions

		rec := healthstore.Record{
			PeripheralID: c.peripheralID,
			StartTime:    resp.Session.StartTime,
			EndTime:      resp.Session.EndTime,
			Revolutions:  resp.Session.Revolutions,
		}
		if err := c.store.Upsert(ctx, rec); err != nil {
			failures++
			c.log.Error("record upsert failed; will re-request same session",
				"start_time", rec.StartTime, "attempt", failures, "err", err)
			if failures >= c.upsertRetries {
				return res, fmt.Errorf("%w: %d consecutive failures at cursor %d: %v",
					ErrStoreUnavailable, failures, cursor, err)
			}
			// Cursor stays put: the next request re-fetches the same session.
			continue
		}
		failures = 0
		cursor = rec.StartTime
		res.Synced++
		c.log.Debug("session synced",
			"start_time", rec.StartTime,
			"revolutions", rec.Revolutions,
			"remaining", res.Remaining)
	}
}

func (c *Client) passErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrBudgetExceeded, err)
	}
	return err
}

func (c *Client) transportErr(op string, err error, ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return c.passErr(ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
