package alsa

import "github.com/smazurov/dawio/pkg/dawio"

// midiParser splits a raw MIDI byte stream into messages. It expands
// running status, passes real-time bytes through wherever they appear, and
// drops SysEx messages that do not fit a MIDI event.
type midiParser struct {
	status   byte
	msg      [dawio.MaxMidiMsgSize]byte
	n        int
	need     int
	sysex    bool
	overflow bool
}

// channelLen is the length of a channel voice message including status.
func channelLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	default:
		return 3
	}
}

// commonLen is the length of a system common message including status.
func commonLen(status byte) int {
	switch status {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	default:
		return 1
	}
}

func (p *midiParser) feed(data []byte, emit func([]byte)) {
	for _, b := range data {
		switch {
		case b >= 0xF8:
			rt := [1]byte{b}
			emit(rt[:])
		case b == 0xF0:
			p.sysex, p.overflow = true, false
			p.status, p.need = 0, 0
			p.msg[0], p.n = b, 1
		case b == 0xF7:
			if !p.sysex {
				continue
			}
			p.sysex = false
			if p.overflow || p.n >= len(p.msg) {
				p.n = 0
				continue
			}
			p.msg[p.n] = b
			p.n++
			emit(p.msg[:p.n])
			p.n = 0
		case b >= 0xF0:
			// System common cancels running status and any open SysEx.
			p.sysex = false
			p.status = 0
			p.msg[0], p.n, p.need = b, 1, commonLen(b)
			p.complete(emit)
		case b >= 0x80:
			p.sysex = false
			p.status = b
			p.msg[0], p.n, p.need = b, 1, channelLen(b)
		case p.sysex:
			if p.n >= len(p.msg)-1 {
				p.overflow = true
				continue
			}
			p.msg[p.n] = b
			p.n++
		default:
			if p.need == 0 {
				if p.status == 0 {
					continue
				}
				p.msg[0], p.n, p.need = p.status, 1, channelLen(p.status)
			}
			p.msg[p.n] = b
			p.n++
			p.complete(emit)
		}
	}
}

func (p *midiParser) complete(emit func([]byte)) {
	if p.n < p.need {
		return
	}
	emit(p.msg[:p.n])
	p.n, p.need = 0, 0
}
