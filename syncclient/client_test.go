package syncclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/biketracker/biketracker-go/healthstore"
	"github.com/biketracker/biketracker-go/healthstore/memory"
	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/syncservice"
	"github.com/biketracker/biketracker-go/syncwire"
)

// fakeTransport runs the real responder in-process, so client tests exercise
// the actual wire encoding end to end without a radio.
type fakeTransport struct {
	responder *syncservice.Responder
	mtu       uint16
	pending   []byte
	writes    int
}

type sliceSource struct{ snap sessions.Snapshot }

func (s *sliceSource) ClosedSince(cursor int64) []sessions.Session {
	return s.snap.Since(cursor)
}

func newFakeTransport(history ...sessions.Session) *fakeTransport {
	return &fakeTransport{
		responder: syncservice.NewResponder(&sliceSource{snap: sessions.Snapshot{Sessions: history}}),
		mtu:       185,
	}
}

func (t *fakeTransport) MTU() (uint16, error) { return t.mtu, nil }

func (t *fakeTransport) WriteRequest(ctx context.Context, data []byte) error {
	t.writes++
	t.pending = t.responder.Handle(data)
	return nil
}

func (t *fakeTransport) ReadResponse(ctx context.Context) ([]byte, error) {
	return t.pending, nil
}

// flakyStore fails the next n upserts, then delegates.
type flakyStore struct {
	*memory.Store
	failures int
	err      error
}

func (s *flakyStore) Upsert(ctx context.Context, rec healthstore.Record) error {
	if s.failures != 0 {
		s.failures--
		return s.err
	}
	return s.Store.Upsert(ctx, rec)
}

var history = []sessions.Session{
	{StartTime: 100, EndTime: 150, Revolutions: 10},
	{StartTime: 300, EndTime: 400, Revolutions: 50},
}

func TestFullPass(t *testing.T) {
	store := memory.New()
	c := New(newFakeTransport(history...), store, "AA:BB:CC:DD:EE:FF")

	res, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Synced != 2 || res.Remaining != 0 {
		t.Fatalf("result = %+v, want 2 synced, 0 remaining", res)
	}
	if store.Len() != 2 {
		t.Fatalf("store has %d records, want 2", store.Len())
	}

	rec, ok := store.Get(healthstore.RecordID("AA:BB:CC:DD:EE:FF", 300))
	if !ok {
		t.Fatal("record for session 300 not found under its deterministic id")
	}
	if rec.EndTime != 400 || rec.Revolutions != 50 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestSecondPassWritesNothing(t *testing.T) {
	store := memory.New()
	transport := newFakeTransport(history...)
	c := New(transport, store, "AA:BB:CC:DD:EE:FF")
	ctx := context.Background()

	if _, err := c.Sync(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	res, err := c.Sync(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Synced != 0 {
		t.Fatalf("second pass synced %d records, want 0", res.Synced)
	}
	if store.Len() != 2 {
		t.Fatalf("store has %d records after replay, want 2", store.Len())
	}
}

// Two clients with different starting cursors converge on identical stores.
func TestClientsConverge(t *testing.T) {
	ctx := context.Background()

	fresh := memory.New()
	if _, err := New(newFakeTransport(history...), fresh, "AA:BB").Sync(ctx); err != nil {
		t.Fatalf("fresh client: %v", err)
	}

	partial := memory.New()
	if err := partial.Upsert(ctx, healthstore.Record{
		PeripheralID: "AA:BB", StartTime: 100, EndTime: 150, Revolutions: 10,
	}); err != nil {
		t.Fatal(err)
	}
	res, err := New(newFakeTransport(history...), partial, "AA:BB").Sync(ctx)
	if err != nil {
		t.Fatalf("partial client: %v", err)
	}
	if res.Synced != 1 {
		t.Fatalf("partial client synced %d, want only the missing session", res.Synced)
	}
	if fresh.Len() != partial.Len() {
		t.Fatalf("stores diverged: %d vs %d records", fresh.Len(), partial.Len())
	}
}

func TestMTUTooSmallAbortsBeforeQuerying(t *testing.T) {
	transport := newFakeTransport(history...)
	transport.mtu = 23
	c := New(transport, memory.New(), "AA:BB")

	_, err := c.Sync(context.Background())
	if !errors.Is(err, ErrMTUTooSmall) {
		t.Fatalf("err = %v, want ErrMTUTooSmall", err)
	}
	if transport.writes != 0 {
		t.Fatalf("client queried despite undersized MTU (%d writes)", transport.writes)
	}
}

func TestUpsertFailuresBounded(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: -1, err: errors.New("db down")}
	c := New(newFakeTransport(history...), store, "AA:BB", WithUpsertRetries(3))

	res, err := c.Sync(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if res.Synced != 0 {
		t.Fatalf("synced = %d, want 0", res.Synced)
	}
}

func TestTransientUpsertFailureRecovers(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 2, err: errors.New("db hiccup")}
	transport := newFakeTransport(history...)
	c := New(transport, store, "AA:BB", WithUpsertRetries(3))

	res, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Synced != 2 {
		t.Fatalf("synced = %d, want 2", res.Synced)
	}
	// The failed session was re-requested with the same cursor, not skipped.
	if transport.writes != 5 {
		t.Fatalf("writes = %d, want 5 (2 retries + 2 sessions + exhaustion)", transport.writes)
	}
}

func TestBudgetExceeded(t *testing.T) {
	c := New(newFakeTransport(history...), memory.New(), "AA:BB", WithBudget(-time.Second))

	res, err := c.Sync(context.Background())
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if res.Synced != 0 {
		t.Fatalf("synced = %d, want 0", res.Synced)
	}
}

type garbageTransport struct{ payload []byte }

func (t *garbageTransport) MTU() (uint16, error) { return 185, nil }
func (t *garbageTransport) WriteRequest(ctx context.Context, data []byte) error {
	return nil
}
func (t *garbageTransport) ReadResponse(ctx context.Context) ([]byte, error) {
	return t.payload, nil
}

func TestMalformedResponseStopsPass(t *testing.T) {
	for name, payload := range map[string][]byte{
		"not json":        []byte("not json"),
		"responder error": syncwire.EncodeError("invalid request length"),
	} {
		t.Run(name, func(t *testing.T) {
			c := New(&garbageTransport{payload: payload}, memory.New(), "AA:BB")
			if _, err := c.Sync(context.Background()); !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}
