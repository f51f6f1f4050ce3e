package syncwire

import (
	"errors"
	"testing"

	"github.com/biketracker/biketracker-go/sessions"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, cursor := range []uint32{0, 1, 100, 0xFFFFFFFF} {
		got, err := ParseCursor(EncodeCursor(cursor))
		if err != nil {
			t.Fatalf("ParseCursor(%d): %v", cursor, err)
		}
		if got != cursor {
			t.Fatalf("round trip = %d, want %d", got, cursor)
		}
	}
}

func TestCursorLittleEndian(t *testing.T) {
	got := EncodeCursor(0x01020304)
	want := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EncodeCursor = %x, want %x", got, want)
		}
	}
}

func TestParseCursorRejectsWrongLength(t *testing.T) {
	for _, data := range [][]byte{nil, {1}, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		if _, err := ParseCursor(data); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("ParseCursor(%v) err = %v, want ErrBadRequest", data, err)
		}
	}
}

func TestEncodeResponseEmpty(t *testing.T) {
	data, err := EncodeResponse(nil)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if string(data) != `{"session":null,"remaining_sessions":0}` {
		t.Fatalf("empty response = %s", data)
	}
	resp, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Session != nil || resp.RemainingSessions != 0 {
		t.Fatalf("resp = %+v, want absent session", resp)
	}
}

func TestEncodeResponseWithSessions(t *testing.T) {
	data, err := EncodeResponse([]sessions.Session{
		{StartTime: 100, EndTime: 150, Revolutions: 10},
		{StartTime: 300, EndTime: 400, Revolutions: 50},
	})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	resp, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Session == nil || resp.Session.StartTime != 100 {
		t.Fatalf("resp.Session = %+v, want session 100", resp.Session)
	}
	if resp.RemainingSessions != 1 {
		t.Fatalf("remaining = %d, want 1", resp.RemainingSessions)
	}
}

func TestResponseFitsMinimumMTU(t *testing.T) {
	// Worst plausible field widths: 32-bit timestamps and a large count.
	data, err := EncodeResponse([]sessions.Session{
		{StartTime: 4294967295, EndTime: 4294967295, Revolutions: 1000000},
		{}, {}, {},
	})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if len(data) > MinResponseMTU {
		t.Fatalf("response is %d bytes, exceeds the %d-byte MTU floor", len(data), MinResponseMTU)
	}
}

func TestErrorResponse(t *testing.T) {
	data := EncodeError("invalid request length")
	if string(data) != `{"error":"invalid request length"}` {
		t.Fatalf("error payload = %s, want the bare error shape", data)
	}
	resp, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Err != "invalid request length" {
		t.Fatalf("resp.Err = %q", resp.Err)
	}
	if resp.Session != nil {
		t.Fatalf("resp.Session = %+v, want absent", resp.Session)
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	if _, err := ParseResponse([]byte("not json")); err == nil {
		t.Fatal("ParseResponse accepted garbage")
	}
}
