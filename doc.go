// Package biketracker links a stationary-bike sensor peripheral to a
// periodically-connecting client over BLE.
//
// The peripheral side (sessions, storage, syncservice, csc, pulse) turns
// crank pulses into durable Session records and serves them through a
// stateless, timestamp-cursor sync protocol. The client side (syncclient,
// healthstore) drives bounded sync passes and lands confirmed sessions in a
// durable record store under deterministic ids, so passes are idempotent
// and resumable after any interruption.
//
// See cmd/biketrackerd and cmd/bikesync for the runnable halves.
package biketracker
