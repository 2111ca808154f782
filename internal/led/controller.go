// Package led shows the state of a dawio stream on a board LED: solid while
// the stream runs, heartbeat while its device is unplugged and off when it
// stopped.
package led

// Patterns a Controller understands.
const (
	PatternSolid     = "solid"
	PatternHeartbeat = "heartbeat"
	PatternOff       = "off"
)

// Controller drives one or more named LEDs.
type Controller interface {
	// Set switches led to pattern.
	Set(led, pattern string) error

	// Available returns the LED names this controller can drive.
	Available() []string
}

type noop struct{}

func (noop) Set(string, string) error { return nil }
func (noop) Available() []string      { return []string{} }
