package driver

import (
	"fmt"
	"math/rand"
	"sync"
)

// Simulated drivers back offline mode: same contract interfaces, no
// hardware I/O. Factories return these when composition runs offline, so
// measurement logic never special-cases simulation.

// SimVSource is a simulated voltage source.
type SimVSource struct {
	name string

	mu      sync.Mutex
	voltage float64
	output  bool
	torn    bool
}

// NewSimVSource creates a simulated voltage source for the named
// implementation.
func NewSimVSource(qualifiedName string) *SimVSource {
	return &SimVSource{name: qualifiedName}
}

func (s *SimVSource) QualifiedName() string { return s.name }
func (s *SimVSource) Offline() bool         { return true }

func (s *SimVSource) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torn = true
	s.output = false
	return nil
}

func (s *SimVSource) SetVoltage(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return fmt.Errorf("%s: driver is torn down", s.name)
	}
	s.voltage = v
	return nil
}

func (s *SimVSource) TurnOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return fmt.Errorf("%s: driver is torn down", s.name)
	}
	s.output = true
	return nil
}

func (s *SimVSource) TurnOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = false
	return nil
}

// Voltage reports the last set voltage; used by tests and the offline
// smoke check.
func (s *SimVSource) Voltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

// OutputOn reports whether the simulated output is enabled.
func (s *SimVSource) OutputOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// SimVSense is a simulated voltage sensor returning uniform noise, matching
// the offline behavior of the hardware voltmeter modules.
type SimVSense struct {
	name string

	mu   sync.Mutex
	torn bool
}

// NewSimVSense creates a simulated voltage sensor.
func NewSimVSense(qualifiedName string) *SimVSense {
	return &SimVSense{name: qualifiedName}
}

func (s *SimVSense) QualifiedName() string { return s.name }
func (s *SimVSense) Offline() bool         { return true }

func (s *SimVSense) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torn = true
	return nil
}

func (s *SimVSense) GetVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return 0, fmt.Errorf("%s: driver is torn down", s.name)
	}
	return rand.Float64(), nil
}

// SimCounter is a simulated pulse counter.
type SimCounter struct {
	name string

	mu   sync.Mutex
	gate float64
	torn bool
}

// NewSimCounter creates a simulated counter with a 1 s gate.
func NewSimCounter(qualifiedName string) *SimCounter {
	return &SimCounter{name: qualifiedName, gate: 1.0}
}

func (s *SimCounter) QualifiedName() string { return s.name }
func (s *SimCounter) Offline() bool         { return true }

func (s *SimCounter) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torn = true
	return nil
}

func (s *SimCounter) SetGateTime(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return fmt.Errorf("%s: driver is torn down", s.name)
	}
	s.gate = seconds
	return nil
}

func (s *SimCounter) Count(gateSeconds float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return 0, fmt.Errorf("%s: driver is torn down", s.name)
	}
	if gateSeconds <= 0 {
		gateSeconds = s.gate
	}
	return int64(rand.Intn(1000)) * int64(gateSeconds*1000), nil
}

// SimChassis is a simulated mainframe: slot connections accept writes and
// answer queries with canned values.
type SimChassis struct {
	name string

	mu   sync.Mutex
	torn bool
}

// NewSimChassis creates a simulated chassis.
func NewSimChassis(qualifiedName string) *SimChassis {
	return &SimChassis{name: qualifiedName}
}

func (s *SimChassis) QualifiedName() string { return s.name }
func (s *SimChassis) Offline() bool         { return true }

func (s *SimChassis) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torn = true
	return nil
}

func (s *SimChassis) Slot(address string) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return nil, fmt.Errorf("%s: chassis is torn down", s.name)
	}
	return &simConn{}, nil
}

type simConn struct{}

func (c *simConn) Write(cmd string) error { return nil }

func (c *simConn) Query(cmd string) (string, error) {
	return fmt.Sprintf("%f", rand.Float64()), nil
}

func (c *simConn) Close() error { return nil }
