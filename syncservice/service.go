package syncservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/biketracker/biketracker-go/csc"
)

// Sync service UUIDs. The service UUID doubles as the discovery key for
// clients scanning for bike trackers.
var (
	ServiceUUID     = bluetooth.NewUUID(uuid.MustParse("0000ff00-0000-1000-8000-00805f9b34fb"))
	SessionDataUUID = bluetooth.NewUUID(uuid.MustParse("0000ff01-0000-1000-8000-00805f9b34fb"))
)

// Standard Cycling Speed and Cadence assigned numbers.
var (
	cscServiceUUID     = bluetooth.New16BitUUID(0x1816)
	cscMeasurementUUID = bluetooth.New16BitUUID(0x2A5B)
)

// DefaultNotifyInterval is how often CSC measurements are notified. Slower
// than the profile's nominal 1 Hz so that single-pulse-per-revolution sensors
// don't flicker between a real cadence and zero at slow pedaling.
const DefaultNotifyInterval = 2 * time.Second

// DefaultAdvertisingInterval matches the firmware's 250 ms.
const DefaultAdvertisingInterval = 250 * time.Millisecond

// Config for the BLE service.
type Config struct {
	// DeviceName is the advertised local name.
	DeviceName string
	// NotifyInterval is the CSC notification cadence. Zero means
	// DefaultNotifyInterval.
	NotifyInterval time.Duration
}

// Service registers the sync and CSC GATT services on a BLE adapter and
// keeps the CSC notification loop running.
type Service struct {
	adapter   *bluetooth.Adapter
	responder *Responder
	counter   *csc.CrankCounter
	cfg       Config
	log       *slog.Logger

	sessionChar bluetooth.Characteristic
	cscChar     bluetooth.Characteristic
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger. Defaults to slog.Default().
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService wires a responder and a crank counter to a BLE adapter.
func NewService(adapter *bluetooth.Adapter, responder *Responder, counter *csc.CrankCounter, cfg Config, opts ...ServiceOption) *Service {
	if cfg.DeviceName == "" {
		cfg.DeviceName = "BikeTracker"
	}
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = DefaultNotifyInterval
	}
	s := &Service{
		adapter:   adapter,
		responder: responder,
		counter:   counter,
		cfg:       cfg,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register enables the adapter, adds both GATT services and starts
// advertising.
func (s *Service) Register() error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE stack: %w", err)
	}

	err := s.adapter.AddService(&bluetooth.Service{
		UUID: ServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.sessionChar,
				UUID:   SessionDataUUID,
				Value:  []byte{},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					s.handleSessionDataWrite(client, offset, value)
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add sync service: %w", err)
	}

	err = s.adapter.AddService(&bluetooth.Service{
		UUID: cscServiceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.cscChar,
				UUID:   cscMeasurementUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add CSC service: %w", err)
	}

	adv := s.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.cfg.DeviceName,
		ServiceUUIDs: []bluetooth.UUID{cscServiceUUID, ServiceUUID},
		Interval:     bluetooth.NewDuration(DefaultAdvertisingInterval),
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}

	s.log.Info("BLE services registered", "device_name", s.cfg.DeviceName)
	return nil
}

// Run notifies the current CSC measurement at the configured cadence until
// ctx is done. Measurements are sent continuously, including while idle, so
// clients can derive 0 RPM and detect liveness.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.NotifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m := s.counter.Measurement()
			data, err := m.MarshalBinary()
			if err != nil {
				s.log.Error("encode CSC measurement", "err", err)
				continue
			}
			// Write updates the characteristic value and notifies
			// subscribers; without subscribers it is a cheap no-op.
			if _, err := s.cscChar.Write(data); err != nil {
				s.log.Error("notify CSC measurement", "err", err)
			}
		}
	}
}

func (s *Service) handleSessionDataWrite(client bluetooth.Connection, offset int, value []byte) {
	if offset != 0 {
		s.log.Warn("ignoring offset sync write", "offset", offset)
		return
	}
	s.log.Debug("sync request", "client", client, "bytes", len(value))
	resp := s.responder.Handle(value)
	if _, err := s.sessionChar.Write(resp); err != nil {
		s.log.Error("stage sync response", "err", err)
	}
}
