// Package csc implements the Cycling Speed and Cadence measurement format
// (service 0x1816, characteristic 0x2A5B) and instantaneous cadence
// derivation from consecutive measurements.
//
// Only crank revolution data is carried: a flags byte, a uint16 cumulative
// revolution count and a uint16 event time in 1/1024 s units, both
// little-endian and both wrapping at their bit width.
package csc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// FlagCrankData marks the crank revolution fields as present.
	FlagCrankData = 0x02

	// MeasurementSize is the length of a crank-only CSC measurement.
	MeasurementSize = 5

	// TimeUnitsPerSecond is the resolution of the event time field.
	TimeUnitsPerSecond = 1024

	// MaxPlausibleRPM bounds derived cadence; values beyond it are treated
	// as sensor glitches and reported as absent.
	MaxPlausibleRPM = 300
)

// ErrShortMeasurement indicates a notification payload that is too small.
var ErrShortMeasurement = errors.New("csc: measurement too short")

// Measurement is one CSC crank sample. Both counters wrap at 16 bits.
type Measurement struct {
	Flags                 uint8
	CumulativeRevolutions uint16
	// LastEventTime is the time of the most recent crank event in
	// 1/1024 second units.
	LastEventTime uint16
}

// MarshalBinary renders the 5-byte wire form.
func (m Measurement) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MeasurementSize)
	buf[0] = m.Flags
	binary.LittleEndian.PutUint16(buf[1:3], m.CumulativeRevolutions)
	binary.LittleEndian.PutUint16(buf[3:5], m.LastEventTime)
	return buf, nil
}

// ParseMeasurement decodes a notification payload.
func ParseMeasurement(data []byte) (Measurement, error) {
	if len(data) < MeasurementSize {
		return Measurement{}, fmt.Errorf("%w: %d bytes", ErrShortMeasurement, len(data))
	}
	if data[0]&FlagCrankData == 0 {
		return Measurement{}, fmt.Errorf("csc: crank data not present (flags 0x%02x)", data[0])
	}
	return Measurement{
		Flags:                 data[0],
		CumulativeRevolutions: binary.LittleEndian.Uint16(data[1:3]),
		LastEventTime:         binary.LittleEndian.Uint16(data[3:5]),
	}, nil
}

// DeriveCadence computes crank RPM from two consecutive measurements.
// It returns ok == false when no rate can be derived: no baseline, a
// non-positive time delta, or an implausible result. A zero revolution
// delta is a real answer (0 RPM), distinct from "unknown".
//
// Both deltas use unsigned 16-bit arithmetic, so counter wraparound between
// samples is handled by construction.
func DeriveCadence(prev *Measurement, curr Measurement) (rpm float64, ok bool) {
	if prev == nil {
		return 0, false
	}
	revDelta := curr.CumulativeRevolutions - prev.CumulativeRevolutions
	if revDelta == 0 {
		return 0, true
	}
	timeDelta := curr.LastEventTime - prev.LastEventTime
	if timeDelta == 0 {
		return 0, false
	}
	rpm = float64(revDelta) * (TimeUnitsPerSecond * 60) / float64(timeDelta)
	if rpm < 0 || rpm > MaxPlausibleRPM {
		return 0, false
	}
	return rpm, true
}

// CrankCounter accumulates crank revolutions into the wrapping counters a
// CSC measurement carries. It is safe for concurrent use: the pulse path
// records revolutions while the notifier reads measurements.
type CrankCounter struct {
	mu          sync.Mutex
	revolutions uint16
	eventTime   uint16
	epoch       time.Time
	now         func() time.Time
}

// NewCrankCounter creates a counter whose event clock starts at now.
func NewCrankCounter() *CrankCounter {
	return newCrankCounter(time.Now)
}

func newCrankCounter(now func() time.Time) *CrankCounter {
	return &CrankCounter{epoch: now(), now: now}
}

// Record registers one crank revolution at the current time.
func (c *CrankCounter) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revolutions++ // wraps at 16 bits by type
	c.eventTime = c.ticks()
}

// Measurement returns the current sample for notification.
func (c *CrankCounter) Measurement() Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Measurement{
		Flags:                 FlagCrankData,
		CumulativeRevolutions: c.revolutions,
		LastEventTime:         c.eventTime,
	}
}

func (c *CrankCounter) ticks() uint16 {
	elapsed := c.now().Sub(c.epoch)
	return uint16(elapsed.Milliseconds() * TimeUnitsPerSecond / 1000)
}
