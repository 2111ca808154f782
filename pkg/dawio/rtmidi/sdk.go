package rtmidi

import "errors"

// ErrUnavailable is returned by the SDK when rtmidi was not compiled in.
var ErrUnavailable = errors.New("rtmidi support not compiled in")

// Output is an open MIDI output port.
type Output interface {
	Send(msg []byte) error
	Close() error
}

// SDK is the slice of rtmidi the driver uses. Ports are addressed by the
// name rtmidi reports for them.
type SDK interface {
	Ins() ([]string, error)
	Outs() ([]string, error)

	// Listen opens an input and calls recv with every complete message,
	// SysEx included. fail may be called more than once.
	Listen(name string, recv func(msg []byte), fail func(error)) (stop func(), err error)

	OpenOutput(name string) (Output, error)
}
