// Package syncwire defines the wire format of the session sync protocol:
// a 4-byte little-endian cursor request and a JSON response carrying at most
// one session plus the count of sessions still pending.
//
// The responder is stateless, so the same request can be replayed by any
// number of clients without coordination; the format carries no per-client
// state.
package syncwire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/biketracker/biketracker-go/sessions"
)

const (
	// RequestSize is the exact length of a cursor request.
	RequestSize = 4

	// MinResponseMTU is the smallest negotiated ATT MTU that can carry a
	// full response payload. Clients must verify the negotiated value meets
	// this before issuing any request; the responder never chunks.
	MinResponseMTU = 185
)

// ErrBadRequest indicates a request that is not a 4-byte cursor.
var ErrBadRequest = errors.New("syncwire: malformed cursor request")

// Response is the responder's answer to one cursor query. Session is nil
// when nothing newer than the cursor exists, which is the client's
// termination condition. Err carries the responder's complaint about a
// malformed request.
type Response struct {
	Session           *sessions.Session `json:"session"`
	RemainingSessions int               `json:"remaining_sessions"`
	Err               string            `json:"error,omitempty"`
}

// EncodeCursor renders a cursor as the 4-byte request payload.
func EncodeCursor(cursor uint32) []byte {
	buf := make([]byte, RequestSize)
	binary.LittleEndian.PutUint32(buf, cursor)
	return buf
}

// ParseCursor extracts the cursor from a request payload.
func ParseCursor(data []byte) (uint32, error) {
	if len(data) != RequestSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBadRequest, len(data), RequestSize)
	}
	return binary.LittleEndian.Uint32(data), nil
}

// EncodeResponse renders a response payload. The first session in the
// ascending result set becomes the answer; the rest are reported as
// remaining.
func EncodeResponse(since []sessions.Session) ([]byte, error) {
	resp := Response{}
	if len(since) > 0 {
		s := since[0]
		resp.Session = &s
		resp.RemainingSessions = len(since) - 1
	}
	return json.Marshal(resp)
}

// EncodeError renders the error response sent for unparseable requests. The
// payload carries only the error field.
func EncodeError(msg string) []byte {
	data, _ := json.Marshal(struct {
		Err string `json:"error"`
	}{Err: msg})
	return data
}

// ParseResponse decodes a response payload.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("syncwire: decode response: %w", err)
	}
	return &resp, nil
}
