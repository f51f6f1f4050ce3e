package syncservice

import (
	"testing"

	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/syncwire"
)

// sliceSource serves a fixed closed-session history.
type sliceSource struct {
	snap sessions.Snapshot
}

func (s *sliceSource) ClosedSince(cursor int64) []sessions.Session {
	return s.snap.Since(cursor)
}

func handle(t *testing.T, r *Responder, cursor uint32) *syncwire.Response {
	t.Helper()
	resp, err := syncwire.ParseResponse(r.Handle(syncwire.EncodeCursor(cursor)))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	return resp
}

// Walks a full client conversation: each response's session start becomes the
// next request's cursor, until the responder reports nothing newer.
func TestResponderConversation(t *testing.T) {
	src := &sliceSource{snap: sessions.Snapshot{
		Sessions: []sessions.Session{
			{StartTime: 100, EndTime: 150, Revolutions: 10},
			{StartTime: 300, EndTime: 400, Revolutions: 50},
		},
	}}
	r := NewResponder(src)

	resp := handle(t, r, 0)
	if resp.Session == nil || resp.Session.StartTime != 100 || resp.Session.Revolutions != 10 {
		t.Fatalf("request(0) session = %+v, want start 100", resp.Session)
	}
	if resp.RemainingSessions != 1 {
		t.Fatalf("request(0) remaining = %d, want 1", resp.RemainingSessions)
	}

	resp = handle(t, r, uint32(resp.Session.StartTime))
	if resp.Session == nil || resp.Session.StartTime != 300 {
		t.Fatalf("request(100) session = %+v, want start 300", resp.Session)
	}
	if resp.RemainingSessions != 0 {
		t.Fatalf("request(100) remaining = %d, want 0", resp.RemainingSessions)
	}

	resp = handle(t, r, uint32(resp.Session.StartTime))
	if resp.Session != nil {
		t.Fatalf("request(300) session = %+v, want exhausted", resp.Session)
	}
}

func TestResponderIsStateless(t *testing.T) {
	src := &sliceSource{snap: sessions.Snapshot{
		Sessions: []sessions.Session{{StartTime: 100, EndTime: 150, Revolutions: 10}},
	}}
	r := NewResponder(src)

	// Two clients replaying the same cursor get the same answer.
	for i := 0; i < 2; i++ {
		resp := handle(t, r, 0)
		if resp.Session == nil || resp.Session.StartTime != 100 {
			t.Fatalf("replay %d: session = %+v", i, resp.Session)
		}
	}
}

func TestResponderBadRequest(t *testing.T) {
	r := NewResponder(&sliceSource{})

	resp, err := syncwire.ParseResponse(r.Handle([]byte{1, 2}))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Err == "" {
		t.Fatal("short request did not produce an error payload")
	}
}
