// Package all registers every backend compiled into the binary with
// dawio.DefaultHost. Import it for its side effect:
//
//	import _ "github.com/smazurov/dawio/pkg/dawio/all"
//
// Native bindings that need system libraries are behind build tags: jack
// (libjack), asio (PortAudio with ASIO) and rtmidi (RtMidi). Without the
// tag the backend is still registered and reports itself not installed.
package all

import "github.com/smazurov/dawio/pkg/dawio"

func init() {
	Register(dawio.DefaultHost())
}

// Register adds the backends for the running platform to h.
func Register(h *dawio.Host) {
	registerPlatform(h)
	registerJack(h)
}
