//go:build linux

package alsa

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const devSnd = "/dev/snd"

// Cards returns the sound cards present. Card numbers may have gaps when a
// card was unplugged, so every slot up to the kernel limit is probed.
func Cards() ([]Card, error) {
	var cards []Card
	for n := 0; n < 32; n++ {
		fd, err := openControl(n)
		if err != nil {
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			return cards, fmt.Errorf("open control %d: %w", n, err)
		}
		card, err := cardInfo(fd, n)
		unix.Close(fd)
		if err != nil {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func openControl(card int) (int, error) {
	return unix.Open(fmt.Sprintf("%s/controlC%d", devSnd, card), unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

func cardInfo(fd, n int) (Card, error) {
	var info sndCtlCardInfo
	if err := ioctl(fd, sndrvCtlIoctlCardInfo, unsafe.Pointer(&info)); err != nil {
		return Card{}, err
	}
	return Card{
		Number:   n,
		ID:       cstr(info.id[:]),
		Driver:   cstr(info.driver[:]),
		Name:     cstr(info.name[:]),
		LongName: cstr(info.longname[:]),
	}, nil
}

// ListDevices returns every PCM device direction on every card, with the
// capabilities that could be probed. Devices busy in another process are
// still listed, without capabilities.
func ListDevices() ([]Device, error) {
	cards, err := Cards()
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, card := range cards {
		fd, err := openControl(card.Number)
		if err != nil {
			continue
		}
		devices = append(devices, cardDevices(fd, card)...)
		unix.Close(fd)
	}
	return devices, nil
}

func cardDevices(fd int, card Card) []Device {
	var devices []Device
	deviceNum := int32(-1)
	for {
		if err := ioctl(fd, sndrvCtlIoctlPCMNextDevice, unsafe.Pointer(&deviceNum)); err != nil || deviceNum < 0 {
			return devices
		}
		for _, stream := range []Stream{StreamCapture, StreamPlayback} {
			info := sndPCMInfo{device: uint32(deviceNum), stream: int32(stream)}
			if err := ioctl(fd, sndrvCtlIoctlPCMInfo, unsafe.Pointer(&info)); err != nil {
				continue
			}
			dev := Device{
				CardNumber:   card.Number,
				CardID:       card.ID,
				CardName:     card.Name,
				DeviceNumber: int(deviceNum),
				DeviceName:   cstr(info.name[:]),
				Type:         stream,
				ALSADevice:   FormatALSADevice(card.Number, int(deviceNum)),
			}
			if caps, err := QueryCapabilities(card.Number, int(deviceNum), stream); err == nil {
				dev.SupportedRates = caps.Rates
				dev.MinChannels = caps.MinChannels
				dev.MaxChannels = caps.MaxChannels
				dev.SupportedFormats = caps.Formats
				dev.MinBufferSize = caps.MinBufferSize
				dev.MaxBufferSize = caps.MaxBufferSize
				dev.MinPeriodSize = caps.MinPeriodSize
				dev.MaxPeriodSize = caps.MaxPeriodSize
			}
			devices = append(devices, dev)
		}
	}
}

// Capabilities is the refined hardware configuration space of a PCM.
type Capabilities struct {
	Rates         []int
	MinRate       int
	MaxRate       int
	MinChannels   int
	MaxChannels   int
	Formats       []Format
	MinBufferSize int
	MaxBufferSize int
	MinPeriodSize int
	MaxPeriodSize int
}

// QueryCapabilities opens the PCM briefly and refines an unconstrained
// parameter set restricted to interleaved access.
func QueryCapabilities(card, device int, stream Stream) (*Capabilities, error) {
	fd, err := openPCM(card, device, stream, unix.O_NONBLOCK)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var hw sndPCMHwParams
	hw.init()
	hw.setMask(sndrvPCMHwParamAccess, sndrvPCMAccessRwInterleaved)
	if err := ioctl(fd, sndrvPCMIoctlHwRefine, unsafe.Pointer(&hw)); err != nil {
		return nil, err
	}

	caps := &Capabilities{}
	minCh, maxCh := hw.getInterval(sndrvPCMHwParamChannels)
	caps.MinChannels, caps.MaxChannels = int(minCh), int(maxCh)

	minRate, maxRate := hw.getInterval(sndrvPCMHwParamRate)
	caps.MinRate, caps.MaxRate = int(minRate), int(maxRate)
	for _, rate := range CommonSampleRates {
		if uint32(rate) >= minRate && uint32(rate) <= maxRate {
			caps.Rates = append(caps.Rates, rate)
		}
	}

	for _, format := range CommonFormats {
		if hw.checkMask(sndrvPCMHwParamFormat, uint32(format)) {
			caps.Formats = append(caps.Formats, format)
		}
	}

	minBuf, maxBuf := hw.getInterval(sndrvPCMHwParamBufferSize)
	caps.MinBufferSize, caps.MaxBufferSize = int(minBuf), int(maxBuf)

	minPer, maxPer := hw.getInterval(sndrvPCMHwParamPeriodSize)
	caps.MinPeriodSize, caps.MaxPeriodSize = int(minPer), int(maxPer)

	return caps, nil
}

// ListRawMidi returns the raw MIDI devices of every card.
func ListRawMidi() ([]RawMidiDevice, error) {
	cards, err := Cards()
	if err != nil {
		return nil, err
	}
	var devices []RawMidiDevice
	for _, card := range cards {
		fd, err := openControl(card.Number)
		if err != nil {
			continue
		}
		deviceNum := int32(-1)
		for {
			if err := ioctl(fd, sndrvCtlIoctlRawmidiNextDevice, unsafe.Pointer(&deviceNum)); err != nil || deviceNum < 0 {
				break
			}
			dev := RawMidiDevice{CardNumber: card.Number, CardName: card.Name, DeviceNumber: int(deviceNum)}
			for _, stream := range []Stream{StreamCapture, StreamPlayback} {
				info := sndRawmidiInfo{device: uint32(deviceNum), stream: rawmidiStream(stream)}
				if err := ioctl(fd, sndrvCtlIoctlRawmidiInfo, unsafe.Pointer(&info)); err != nil {
					continue
				}
				dev.Name = cstr(info.name[:])
				dev.Input = dev.Input || info.flags&sndrvRawmidiInfoInput != 0
				dev.Output = dev.Output || info.flags&sndrvRawmidiInfoOutput != 0
			}
			if dev.Input || dev.Output {
				devices = append(devices, dev)
			}
		}
		unix.Close(fd)
	}
	return devices, nil
}

// rawmidiStream maps a PCM direction to the raw MIDI stream number, where
// output is 0 and input is 1.
func rawmidiStream(s Stream) int32 {
	if s == StreamCapture {
		return 1
	}
	return 0
}
