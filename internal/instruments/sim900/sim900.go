// Package sim900 implements drivers for the SRS SIM900 mainframe and the
// SIM-series modules it hosts. The mainframe owns the communication channel
// (serial device node or terminal-server TCP endpoint); hosted modules
// multiplex over it with SNDT/GETN framing addressed by slot.
package sim900

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
)

const (
	mainframeName = "sim900.mainframe"
	sim928Name    = "sim900.sim928"
	sim970Name    = "sim900.sim970"

	mainframeSlots = 8
)

// Sources returns the registration entries for the SIM900 family.
func Sources() []registry.Source {
	return []registry.Source{
		{
			QualifiedName: mainframeName,
			DisplayName:   "SRS SIM900 Mainframe",
			Description:   "8-slot mainframe hosting SIM-series modules over serial or GPIB-LAN",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpHostSlots,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "port", Type: schema.TypeString, Required: true},
					schema.Field{Name: "gpib_address", Type: schema.TypeInt, Default: 2},
					schema.Field{Name: "timeout_ms", Type: schema.TypeInt, Default: 2000},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			ChassisSlots:    mainframeSlots,
			Factory:         newMainframe,
		},
		{
			QualifiedName: sim928Name,
			DisplayName:   "SRS SIM928 Isolated Voltage Source",
			Description:   "battery-isolated voltage source module, ±20 V",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpSetVoltage,
				capability.OpTurnOn,
				capability.OpTurnOff,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "settling_time_ms", Type: schema.TypeInt, Default: 100},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory:         newSIM928,
		},
		{
			QualifiedName: sim970Name,
			DisplayName:   "SRS SIM970 Quad Voltmeter",
			Description:   "four-channel 5.5 digit voltmeter module",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpGetVoltage,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "channel", Type: schema.TypeInt, Required: true},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory:         newSIM970,
		},
	}
}

// Mainframe is the live SIM900 chassis driver. All hosted modules share its
// channel; writes are serialized under the mainframe lock.
type Mainframe struct {
	rwc io.ReadWriteCloser
	rd  *bufio.Reader

	mu     sync.Mutex
	closed bool
}

func newMainframe(ctx context.Context, cfg map[string]any, _ driver.Chassis, _ string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimChassis(mainframeName), nil
	}

	port, _ := cfg["port"].(string)
	timeout := time.Duration(cfg["timeout_ms"].(int)) * time.Millisecond

	rwc, err := openPort(ctx, port, timeout)
	if err != nil {
		return nil, fmt.Errorf("sim900: open %s: %w", port, err)
	}

	m := &Mainframe{rwc: rwc, rd: bufio.NewReader(rwc)}

	// Flush stale module buffers left over from a previous session.
	if err := m.write("FLSH"); err != nil {
		rwc.Close()
		return nil, fmt.Errorf("sim900: flush: %w", err)
	}
	return m, nil
}

// openPort connects to the mainframe. A host:port address dials a
// GPIB-LAN terminal server; anything else is opened as a serial device node.
func openPort(ctx context.Context, port string, timeout time.Duration) (io.ReadWriteCloser, error) {
	if strings.Contains(port, ":") {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", port)
	}
	return os.OpenFile(port, os.O_RDWR, 0)
}

func (m *Mainframe) QualifiedName() string { return mainframeName }
func (m *Mainframe) Offline() bool         { return false }

func (m *Mainframe) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.rwc.Close()
}

// Slot returns a transport handle multiplexing this slot's module over the
// mainframe channel.
func (m *Mainframe) Slot(address string) (driver.Conn, error) {
	slot, err := strconv.Atoi(address)
	if err != nil || slot < 1 || slot > mainframeSlots {
		return nil, fmt.Errorf("sim900: invalid slot address %q", address)
	}
	return &slotConn{m: m, slot: slot}, nil
}

func (m *Mainframe) write(cmd string) error {
	if m.closed {
		return fmt.Errorf("sim900: mainframe channel is closed")
	}
	_, err := io.WriteString(m.rwc, cmd+"\n")
	return err
}

func (m *Mainframe) readLine() (string, error) {
	line, err := m.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// slotConn frames module commands for one slot. The mainframe answers GETN?
// with a #3nnn length-prefixed payload; the prefix is stripped before the
// payload is returned.
type slotConn struct {
	m    *Mainframe
	slot int
}

func (c *slotConn) Write(cmd string) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.write(fmt.Sprintf("SNDT %d,\"%s\"", c.slot, cmd))
}

func (c *slotConn) Query(cmd string) (string, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.write(fmt.Sprintf("SNDT %d,\"%s\"", c.slot, cmd)); err != nil {
		return "", err
	}
	if err := c.m.write(fmt.Sprintf("GETN? %d,128", c.slot)); err != nil {
		return "", err
	}
	line, err := c.m.readLine()
	if err != nil {
		return "", err
	}
	return stripLengthPrefix(line), nil
}

func (c *slotConn) Close() error { return nil }

func stripLengthPrefix(s string) string {
	if len(s) < 2 || s[0] != '#' {
		return s
	}
	digits := int(s[1] - '0')
	if digits < 0 || digits > 9 || len(s) < 2+digits {
		return s
	}
	return s[2+digits:]
}

// SIM928 is the live voltage-source module driver.
type SIM928 struct {
	conn     driver.Conn
	settling time.Duration

	mu     sync.Mutex
	closed bool
}

func newSIM928(_ context.Context, cfg map[string]any, parent driver.Chassis, slot string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimVSource(sim928Name), nil
	}
	if parent == nil {
		return nil, fmt.Errorf("sim928: module requires a hosting mainframe")
	}

	conn, err := parent.Slot(slot)
	if err != nil {
		return nil, fmt.Errorf("sim928: slot %s: %w", slot, err)
	}

	return &SIM928{
		conn:     conn,
		settling: time.Duration(cfg["settling_time_ms"].(int)) * time.Millisecond,
	}, nil
}

func (s *SIM928) QualifiedName() string { return sim928Name }
func (s *SIM928) Offline() bool         { return false }

func (s *SIM928) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	// Leave the output off; the module keeps its last voltage otherwise.
	if err := s.conn.Write("OPOF"); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

func (s *SIM928) SetVoltage(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Write(fmt.Sprintf("VOLT %.4f", v)); err != nil {
		return err
	}
	time.Sleep(s.settling)
	return nil
}

func (s *SIM928) TurnOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write("OPON")
}

func (s *SIM928) TurnOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write("OPOF")
}

// SIM970 is the live voltmeter module driver, reading one of the module's
// four channels.
type SIM970 struct {
	conn    driver.Conn
	channel int

	mu     sync.Mutex
	closed bool
}

func newSIM970(_ context.Context, cfg map[string]any, parent driver.Chassis, slot string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimVSense(sim970Name), nil
	}
	if parent == nil {
		return nil, fmt.Errorf("sim970: module requires a hosting mainframe")
	}

	channel := cfg["channel"].(int)
	if channel < 1 || channel > 4 {
		return nil, fmt.Errorf("sim970: channel %d out of range 1..4", channel)
	}

	conn, err := parent.Slot(slot)
	if err != nil {
		return nil, fmt.Errorf("sim970: slot %s: %w", slot, err)
	}
	return &SIM970{conn: conn, channel: channel}, nil
}

func (s *SIM970) QualifiedName() string { return sim970Name }
func (s *SIM970) Offline() bool         { return false }

func (s *SIM970) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *SIM970) GetVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.conn.Query(fmt.Sprintf("VOLT? %d", s.channel))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("sim970: parse reading %q: %w", resp, err)
	}
	return v, nil
}
