package syncclient

import (
	"context"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"

	"github.com/biketracker/biketracker-go/syncservice"
)

// BLETransport implements Transport over a connected BLE peripheral's
// session data characteristic.
type BLETransport struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
	addr   string
	log    *slog.Logger
}

var _ Transport = (*BLETransport)(nil)

// DialOption configures DialBLE.
type DialOption func(*BLETransport)

// WithDialLogger sets the logger. Defaults to slog.Default().
func WithDialLogger(log *slog.Logger) DialOption {
	return func(t *BLETransport) { t.log = log }
}

// DialBLE scans for a peripheral advertising the given local name, connects,
// and discovers the sync characteristic. The returned transport is ready for
// a sync pass; its PeripheralID is the device's BLE address.
func DialBLE(ctx context.Context, adapter *bluetooth.Adapter, localName string, opts ...DialOption) (*BLETransport, error) {
	t := &BLETransport{log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable BLE stack: %w", err)
	}

	t.log.Info("scanning", "local_name", localName)
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.LocalName() != localName {
				return
			}
			a.StopScan()
			select {
			case found <- result:
			default:
			}
		})
	}()

	var result bluetooth.ScanResult
	select {
	case <-ctx.Done():
		adapter.StopScan()
		return nil, fmt.Errorf("scan for %q: %w", localName, ctx.Err())
	case err := <-scanErr:
		if err != nil {
			return nil, fmt.Errorf("scan for %q: %w", localName, err)
		}
		// Scan ended via StopScan; the result is already buffered.
		result = <-found
	case result = <-found:
	}

	t.addr = result.Address.String()
	t.log.Info("connecting", "addr", t.addr)
	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", t.addr, err)
	}
	t.device = device

	svcs, err := device.DiscoverServices([]bluetooth.UUID{syncservice.ServiceUUID})
	if err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("discover sync service on %s: %w", t.addr, err)
	}
	if len(svcs) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("device %s does not expose the sync service", t.addr)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{syncservice.SessionDataUUID})
	if err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("discover session data characteristic on %s: %w", t.addr, err)
	}
	if len(chars) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("device %s does not expose the session data characteristic", t.addr)
	}
	t.char = chars[0]
	return t, nil
}

// PeripheralID returns the connected device's BLE address, which tags the
// peripheral's records in the durable store.
func (t *BLETransport) PeripheralID() string { return t.addr }

// MTU reports the ATT MTU negotiated for the sync characteristic.
func (t *BLETransport) MTU() (uint16, error) {
	return t.char.GetMTU()
}

// WriteRequest writes the cursor request to the characteristic.
func (t *BLETransport) WriteRequest(ctx context.Context, data []byte) error {
	return t.do(ctx, func() error {
		_, err := t.char.WriteWithoutResponse(data)
		return err
	})
}

// ReadResponse reads the staged response back from the characteristic.
func (t *BLETransport) ReadResponse(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 512)
	var n int
	err := t.do(ctx, func() error {
		var err error
		n, err = t.char.Read(buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close disconnects from the peripheral.
func (t *BLETransport) Close() error {
	return t.device.Disconnect()
}

// do runs a blocking BLE operation while honoring ctx. The host stack has no
// context-aware calls; on cancellation the operation is abandoned and the
// caller is expected to Close the transport, which unblocks it.
func (t *BLETransport) do(ctx context.Context, op func() error) error {
	done := make(chan error, 1)
	go func() { done <- op() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
