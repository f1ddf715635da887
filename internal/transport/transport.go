// Package transport declares the BLE external contract the core depends
// on. Concrete platform implementations (CoreBluetooth, Android BLE,
// bluez) live outside this module; the core only ever talks to the
// Transport interface.
package transport

import "context"

// State is the adapter's current radio/permission state.
type State int

const (
	StateOff State = iota
	StateOn
	StateUnauthorized
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// PeerHandle opaquely identifies a connected or discovered device at the
// transport layer; it is not the same namespace as wire.PeerID, which is
// derived from the peer's public identity once a session negotiates it.
type PeerHandle string

// Event is the discriminated union of asynchronous transport events.
type Event struct {
	Kind         EventKind
	Peer         PeerHandle
	Notification []byte
	MTU          uint16
}

// EventKind enumerates the Transport's event stream members.
type EventKind int

const (
	EventDeviceDiscovered EventKind = iota
	EventConnected
	EventDisconnected
	EventNotify
	EventMTUChanged
)

// Transport is the external contract consumed by the core. Writes are
// best-effort: the transport's acceptance of a write does not guarantee
// remote delivery, only that the local radio attempted it.
type Transport interface {
	State() State

	StartScan(ctx context.Context) error
	StopScan(ctx context.Context) error

	StartAdvertise(ctx context.Context, serviceUUID string, charUUIDs []string) error
	StopAdvertise(ctx context.Context) error

	Connect(ctx context.Context, peer PeerHandle) error
	Disconnect(ctx context.Context, peer PeerHandle) error

	Write(ctx context.Context, peer PeerHandle, data []byte) error
	Subscribe(ctx context.Context, peer PeerHandle, characteristic string) error

	// Events returns a channel of asynchronous transport events. The
	// channel is closed when the transport is torn down.
	Events() <-chan Event
}
