package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs drives a LED through /sys/class/leds/<name>/{trigger,brightness}.
type sysfs struct {
	root string
	name string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{root: root, name: name}
}

func (s *sysfs) Set(led, pattern string) error {
	if led != s.name {
		return fmt.Errorf("LED %q not driven by this controller", led)
	}
	dir := filepath.Join(s.root, s.name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("LED %q: %w", led, err)
	}

	trigger, brightness := "none", "0"
	switch pattern {
	case PatternSolid:
		brightness = "1"
	case PatternHeartbeat:
		trigger, brightness = "heartbeat", "1"
	case PatternOff:
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("set LED trigger: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string { return []string{s.name} }
