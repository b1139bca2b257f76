// Package keysight implements the Keysight 53220A universal counter driver,
// a standalone instrument spoken to over raw-socket SCPI.
package keysight

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
)

const counterName = "keysight.cnt53220a"

// Sources returns the registration entries for the Keysight instruments.
func Sources() []registry.Source {
	return []registry.Source{
		{
			QualifiedName: counterName,
			DisplayName:   "Keysight 53220A Counter",
			Description:   "350 MHz universal frequency counter/timer, raw-socket SCPI",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpCount,
				capability.OpSetGate,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "address", Type: schema.TypeString, Required: true},
					schema.Field{Name: "trigger_level", Type: schema.TypeFloat, Default: 0.1},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory:         newCounter,
		},
	}
}

// Counter is the live 53220A driver configured for totalize counting.
type Counter struct {
	conn net.Conn
	rd   *bufio.Reader

	mu     sync.Mutex
	gate   float64
	closed bool
}

func newCounter(ctx context.Context, cfg map[string]any, _ driver.Chassis, _ string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimCounter(counterName), nil
	}

	address, _ := cfg["address"].(string)
	if !strings.Contains(address, ":") {
		// SCPI raw socket on the standard port.
		address += ":5025"
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("keysight: dial %s: %w", address, err)
	}

	c := &Counter{conn: conn, rd: bufio.NewReader(conn), gate: 1.0}

	setup := []string{
		"*RST",
		"*CLS",
		"CONF:TOT:TIM 1.0",
		fmt.Sprintf("INP1:LEV %.3f", cfg["trigger_level"].(float64)),
		"INP1:COUP DC",
		"INP1:IMP 50",
	}
	for _, cmd := range setup {
		if err := c.write(cmd); err != nil {
			conn.Close()
			return nil, fmt.Errorf("keysight: setup %q: %w", cmd, err)
		}
	}
	return c, nil
}

func (c *Counter) QualifiedName() string { return counterName }
func (c *Counter) Offline() bool         { return false }

func (c *Counter) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// SetGateTime sets the totalize gate used when Count is called with a
// non-positive gate.
func (c *Counter) SetGateTime(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds <= 0 {
		return fmt.Errorf("keysight: gate time must be positive, got %g", seconds)
	}
	if err := c.write(fmt.Sprintf("CONF:TOT:TIM %g", seconds)); err != nil {
		return err
	}
	c.gate = seconds
	return nil
}

// Count totalizes events over the gate window and returns the tally. The
// read deadline covers the gate plus instrument overhead.
func (c *Counter) Count(gateSeconds float64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gateSeconds > 0 && gateSeconds != c.gate {
		if err := c.write(fmt.Sprintf("CONF:TOT:TIM %g", gateSeconds)); err != nil {
			return 0, err
		}
		c.gate = gateSeconds
	}

	if err := c.write("INIT"); err != nil {
		return 0, err
	}
	if err := c.write("FETC?"); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(time.Duration(c.gate*float64(time.Second)) + 5*time.Second)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("keysight: read count: %w", err)
	}

	// The instrument reports totals in scientific notation.
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("keysight: parse count %q: %w", line, err)
	}
	return int64(v), nil
}

func (c *Counter) write(cmd string) error {
	if c.closed {
		return fmt.Errorf("keysight: connection is closed")
	}
	_, err := c.conn.Write([]byte(cmd + "\n"))
	return err
}
