//go:build linux

// Package hotplug watches kernel uevents over netlink so that sound cards
// appearing or disappearing can be noticed without polling /dev/snd.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Actions reported by the kernel.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// Subsystem names used for filtering.
const (
	SubsystemSound = "sound"
	SubsystemUSB   = "usb"
)

// Event is a parsed kernel uevent.
type Event struct {
	Action    string
	KObj      string // e.g. /devices/pci0000:00/.../sound/card1
	Subsystem string
	DevName   string // relative to /dev, e.g. snd/controlC1
	Env       map[string]string
}

// SoundCard returns the card number of a sound subsystem event. Only the
// card object and its control node carry it; PCM and MIDI nodes are
// reported as not ok so each card is seen once per action.
func (e Event) SoundCard() (int, bool) {
	if e.Subsystem != SubsystemSound {
		return 0, false
	}
	if rest, ok := strings.CutPrefix(e.DevName, "snd/controlC"); ok {
		n, err := strconv.Atoi(rest)
		return n, err == nil
	}
	if e.DevName != "" {
		return 0, false
	}
	i := strings.LastIndex(e.KObj, "/card")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(e.KObj[i+len("/card"):])
	return n, err == nil
}

// Monitor listens for kernel uevents.
type Monitor struct {
	fd        int
	filtersMu sync.RWMutex
	filters   map[string]struct{}
}

// NewMonitor binds a netlink socket to the kernel broadcast group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	tv := unix.Timeval{Usec: 250_000}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, filters: make(map[string]struct{})}, nil
}

// AddSubsystemFilter restricts events to the given subsystems. Without
// filters every event passes. Safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.filtersMu.Lock()
	m.filters[subsystem] = struct{}{}
	m.filtersMu.Unlock()
}

func (m *Monitor) accepts(subsystem string) bool {
	m.filtersMu.RLock()
	defer m.filtersMu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[subsystem]
	return ok
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events until ctx is done or the socket fails. The events
// channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		event, ok := ParseUEvent(buf[:n])
		if !ok || !m.accepts(event.Subsystem) {
			continue
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". Messages relayed by
// udev start with a binary "libudev" header and are rejected.
func ParseUEvent(data []byte) (Event, bool) {
	if bytes.HasPrefix(data, []byte("libudev")) {
		return Event{}, false
	}
	parts := bytes.Split(data, []byte{0})
	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return Event{}, false
	}
	event := Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVNAME":
			event.DevName = value
		}
	}
	return event, true
}
