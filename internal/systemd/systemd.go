// Package systemd reports on and restarts the audio server units a dawio
// stream depends on, over D-Bus.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnits are the audio server units the API may touch.
var DefaultUnits = []string{
	"jack.service",
	"pipewire.service",
	"pipewire-pulse.service",
	"wireplumber.service",
	"pulseaudio.service",
}

// ErrUnitNotAllowed is returned for units outside the allow list.
var ErrUnitNotAllowed = errors.New("unit is not an audio server unit")

// conn is the part of *dbus.Conn the manager uses.
type conn interface {
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]any, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// UnitStatus is the state of one unit.
type UnitStatus struct {
	Name        string `json:"name" example:"pipewire.service"`
	Description string `json:"description,omitempty"`
	LoadState   string `json:"load_state" example:"loaded"`
	ActiveState string `json:"active_state" example:"active"`
	SubState    string `json:"sub_state" example:"running"`
}

// Manager talks to the user or system service manager.
type Manager struct {
	conn  conn
	units []string
}

// NewManager connects to the user manager, where desktop audio servers
// run, or to the system manager when system is set.
func NewManager(ctx context.Context, system bool, units []string) (*Manager, error) {
	var (
		c   *dbus.Conn
		err error
	)
	if system {
		c, err = dbus.NewSystemConnectionContext(ctx)
	} else {
		c, err = dbus.NewUserConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return newManager(c, units), nil
}

func newManager(c conn, units []string) *Manager {
	if len(units) == 0 {
		units = DefaultUnits
	}
	return &Manager{conn: c, units: units}
}

// Units returns the allow list.
func (m *Manager) Units() []string {
	return slices.Clone(m.units)
}

func (m *Manager) check(unit string) (string, error) {
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	if !slices.Contains(m.units, unit) {
		return "", fmt.Errorf("%s: %w", unit, ErrUnitNotAllowed)
	}
	return unit, nil
}

// Status returns the state of unit. A bare name gets ".service" appended.
func (m *Manager) Status(ctx context.Context, unit string) (UnitStatus, error) {
	unit, err := m.check(unit)
	if err != nil {
		return UnitStatus{}, err
	}
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return UnitStatus{}, fmt.Errorf("query %s: %w", unit, err)
	}
	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	return UnitStatus{
		Name:        unit,
		Description: str("Description"),
		LoadState:   str("LoadState"),
		ActiveState: str("ActiveState"),
		SubState:    str("SubState"),
	}, nil
}

// Restart restarts unit and waits for systemd to report the job result.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	unit, err := m.check(unit)
	if err != nil {
		return err
	}
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart %s: job %s", unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
