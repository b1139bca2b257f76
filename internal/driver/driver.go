// Package driver defines the runtime interfaces instrument drivers expose to
// measurement code, and the factory signature the composer uses to
// instantiate them.
//
// Contract interfaces mirror the operation sets in the capability package:
// a driver satisfying the VSource contract implements VSource here. Offline
// (simulated) drivers implement the same interfaces, so measurement logic is
// polymorphic over the capability set and never branches on offline mode.
package driver

import "context"

// Driver is the common surface of every instantiated instrument driver.
// Construction opens the communication channel (RAII: there is no separate
// connect step); Teardown releases it and must be safe to call twice.
type Driver interface {
	// QualifiedName reports the implementation the driver was built from.
	QualifiedName() string

	// Offline reports whether the driver simulates hardware.
	Offline() bool

	// Teardown releases the underlying communication channel.
	Teardown() error
}

// VSource is a voltage-source driver.
type VSource interface {
	Driver
	SetVoltage(v float64) error
	TurnOn() error
	TurnOff() error
}

// VSense is a single-channel voltage-sensing driver.
type VSense interface {
	Driver
	GetVoltage() (float64, error)
}

// Counter is a pulse-counter driver.
type Counter interface {
	Driver
	Count(gateSeconds float64) (int64, error)
	SetGateTime(seconds float64) error
}

// Chassis is a mainframe driver hosting slot-addressed modules. Module
// factories receive the live chassis handle at instantiation time.
type Chassis interface {
	Driver
	// Slot returns a transport handle scoped to one slot address.
	Slot(address string) (Conn, error)
}

// Conn is the minimal transport a chassis exposes to a hosted module.
type Conn interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// Factory constructs a driver from validated configuration values. parent is
// the live chassis driver for slot-hosted modules and nil for top-level
// instruments; slot is the module's slot address ("" for top-level). When
// offline is true the factory must return a simulated driver and perform no
// hardware I/O. Construction may block on I/O timeouts; ctx aborts it.
type Factory func(ctx context.Context, cfg map[string]any, parent Chassis, slot string, offline bool) (Driver, error)
