// Package dbay implements drivers for the DBay modular DAC rack. The rack
// exposes an HTTP JSON API; the chassis driver owns the client, and hosted
// modules address themselves by slot index in the request payload.
package dbay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/snspd-lab/labwizard/internal/capability"
	"github.com/snspd-lab/labwizard/internal/driver"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/schema"
)

const (
	mainframeName = "dbay.mainframe"
	dac4dName     = "dbay.dac4d"

	mainframeSlots = 16
)

// Sources returns the registration entries for the DBay family.
func Sources() []registry.Source {
	return []registry.Source{
		{
			QualifiedName: mainframeName,
			DisplayName:   "DBay Rack",
			Description:   "modular DAC rack controlled over an HTTP JSON API",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpHostSlots,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "ip_address", Type: schema.TypeString, Required: true},
					schema.Field{Name: "port", Type: schema.TypeInt, Default: 8345},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			ChassisSlots:    mainframeSlots,
			Factory:         newMainframe,
		},
		{
			QualifiedName: dac4dName,
			DisplayName:   "DBay DAC4D",
			Description:   "four-channel precision voltage source card",
			Provides: []capability.Operation{
				capability.OpDisconnect,
				capability.OpSetVoltage,
				capability.OpTurnOn,
				capability.OpTurnOff,
			},
			Schema: func() (*schema.Schema, error) {
				return schema.New(
					schema.Field{Name: "channel", Type: schema.TypeInt, Required: true},
					schema.Field{Name: "offline", Type: schema.TypeBool},
				), nil
			},
			SupportsOffline: true,
			Factory:         newDAC4D,
		},
	}
}

// Mainframe is the live DBay rack driver.
type Mainframe struct {
	base   string
	client *http.Client

	mu     sync.Mutex
	closed bool
}

func newMainframe(ctx context.Context, cfg map[string]any, _ driver.Chassis, _ string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimChassis(mainframeName), nil
	}

	ip, _ := cfg["ip_address"].(string)
	port := cfg["port"].(int)

	m := &Mainframe{
		base:   fmt.Sprintf("http://%s:%d", ip, port),
		client: &http.Client{Timeout: 5 * time.Second},
	}

	// Probe the rack so a wrong address fails at composition, not first use.
	if _, err := m.get(ctx, "/full-state"); err != nil {
		return nil, fmt.Errorf("dbay: probe %s: %w", m.base, err)
	}
	return m, nil
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
	m.client.CloseIdleConnections()
	return nil
}

// Slot returns a transport handle addressing one rack slot. Write sends a
// JSON command body; Query fetches the slot's state document.
func (m *Mainframe) Slot(address string) (driver.Conn, error) {
	slot, err := strconv.Atoi(address)
	if err != nil || slot < 0 || slot >= mainframeSlots {
		return nil, fmt.Errorf("dbay: invalid slot address %q", address)
	}
	return &slotConn{m: m, slot: slot}, nil
}

func (m *Mainframe) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.base+path, nil)
	if err != nil {
		return "", err
	}
	return m.do(req)
}

func (m *Mainframe) put(path, body string) (string, error) {
	req, err := http.NewRequest(http.MethodPut, m.base+path, bytes.NewBufferString(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return m.do(req)
}

func (m *Mainframe) do(req *http.Request) (string, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", fmt.Errorf("dbay: rack connection is closed")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dbay: %s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	return string(payload), nil
}

type slotConn struct {
	m    *Mainframe
	slot int
}

func (c *slotConn) Write(cmd string) error {
	_, err := c.m.put(fmt.Sprintf("/device/%d", c.slot), cmd)
	return err
}

func (c *slotConn) Query(string) (string, error) {
	return c.m.get(context.Background(), fmt.Sprintf("/device/%d/state", c.slot))
}

func (c *slotConn) Close() error { return nil }

// vsourceCommand is the JSON body the rack expects for a voltage-source
// channel update.
type vsourceCommand struct {
	Channel    int     `json:"channel"`
	Voltage    float64 `json:"voltage"`
	Activated  bool    `json:"activated"`
	Heading    string  `json:"heading"`
	MeasuredMV float64 `json:"measured_voltage"`
}

// DAC4D is the live voltage-source card driver for one channel.
type DAC4D struct {
	conn    driver.Conn
	channel int

	mu      sync.Mutex
	voltage float64
	active  bool
	closed  bool
}

func newDAC4D(_ context.Context, cfg map[string]any, parent driver.Chassis, slot string, offline bool) (driver.Driver, error) {
	if offline {
		return driver.NewSimVSource(dac4dName), nil
	}
	if parent == nil {
		return nil, fmt.Errorf("dac4d: card requires a hosting rack")
	}

	channel := cfg["channel"].(int)
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("dac4d: channel %d out of range 0..3", channel)
	}

	conn, err := parent.Slot(slot)
	if err != nil {
		return nil, fmt.Errorf("dac4d: slot %s: %w", slot, err)
	}
	return &DAC4D{conn: conn, channel: channel}, nil
}

func (d *DAC4D) QualifiedName() string { return dac4dName }
func (d *DAC4D) Offline() bool         { return false }

func (d *DAC4D) Teardown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.active = false
	if err := d.push(); err != nil {
		d.conn.Close()
		return err
	}
	return d.conn.Close()
}

func (d *DAC4D) SetVoltage(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voltage = v
	return d.push()
}

func (d *DAC4D) TurnOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	return d.push()
}

func (d *DAC4D) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	return d.push()
}

// push sends the card's full channel state; the rack API is idempotent
// full-state, not incremental.
func (d *DAC4D) push() error {
	body, err := json.Marshal(vsourceCommand{
		Channel:   d.channel,
		Voltage:   d.voltage,
		Activated: d.active,
	})
	if err != nil {
		return err
	}
	return d.conn.Write(string(body))
}
