// Package sessions implements the peripheral-side session model: the
// Session record, the Snapshot that is persisted as a whole, and the
// Manager state machine that turns a stream of crank pulses into closed
// sessions using an idle-timeout boundary rule.
//
// A session's start time (Unix seconds) is its identity. Start times are
// strictly increasing in creation order, which is the property the sync
// protocol's cursor design relies on.
package sessions
