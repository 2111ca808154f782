//go:build linux

package alsa

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenRawMidi opens the raw MIDI node of hw:card,device. Input files are
// non-blocking so reads park in the runtime poller and Close unblocks them.
func OpenRawMidi(card, device int, input bool) (*os.File, error) {
	path := fmt.Sprintf("%s/midiC%dD%d", devSnd, card, device)
	flag := os.O_WRONLY
	if input {
		flag = os.O_RDONLY | unix.O_NONBLOCK
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open raw midi %s: %w", FormatALSADevice(card, device), err)
	}
	return f, nil
}
