//go:build linux

package alsa

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HwParams is a requested or negotiated PCM configuration. Sizes are in
// frames.
type HwParams struct {
	Format     Format
	Channels   int
	Rate       int
	PeriodSize int
	Periods    int
}

// BufferSize returns PeriodSize * Periods.
func (h HwParams) BufferSize() int {
	return h.PeriodSize * h.Periods
}

// FrameBytes returns the size of one interleaved frame.
func (h HwParams) FrameBytes() int {
	return h.Channels * h.Format.Bytes()
}

// Bytes returns the storage size of one sample.
func (f Format) Bytes() int {
	switch f {
	case FormatS8, FormatU8:
		return 1
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatS243LE:
		return 3
	case FormatFloat64LE, FormatFloat64BE:
		return 8
	default:
		return 4
	}
}

// PCM is an open PCM device in blocking mode.
type PCM struct {
	fd     int
	stream Stream
	params HwParams
}

func openPCM(card, device int, stream Stream, flags int) (int, error) {
	path := fmt.Sprintf("%s/pcmC%dD%d%c", devSnd, card, device, stream.suffix())
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|flags, 0)
}

// OpenPCM opens one direction of hw:card,device.
func OpenPCM(card, device int, stream Stream) (*PCM, error) {
	fd, err := openPCM(card, device, stream, 0)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return nil, fmt.Errorf("open %s %s: device busy: %w", FormatALSADevice(card, device), stream, err)
		}
		return nil, fmt.Errorf("open %s %s: %w", FormatALSADevice(card, device), stream, err)
	}
	return &PCM{fd: fd, stream: stream}, nil
}

// Configure negotiates hardware and software parameters. Format, channels and
// rate must be accepted exactly; period size and count are clamped to what
// the device allows. It returns the parameters in effect.
func (p *PCM) Configure(want HwParams) (HwParams, error) {
	var hw sndPCMHwParams
	hw.init()
	hw.setMask(sndrvPCMHwParamAccess, sndrvPCMAccessRwInterleaved)
	hw.setMask(sndrvPCMHwParamFormat, uint32(want.Format))
	hw.setInterval(sndrvPCMHwParamChannels, uint32(want.Channels))
	hw.setInterval(sndrvPCMHwParamRate, uint32(want.Rate))
	if err := ioctl(p.fd, sndrvPCMIoctlHwRefine, unsafe.Pointer(&hw)); err != nil {
		return HwParams{}, fmt.Errorf("refine %s/%dch/%dHz: %w", want.Format, want.Channels, want.Rate, err)
	}

	minPer, maxPer := hw.getInterval(sndrvPCMHwParamPeriodSize)
	hw.setInterval(sndrvPCMHwParamPeriodSize, clampU32(uint32(max(want.PeriodSize, 1)), minPer, maxPer))
	if err := ioctl(p.fd, sndrvPCMIoctlHwRefine, unsafe.Pointer(&hw)); err != nil {
		return HwParams{}, fmt.Errorf("refine period size %d: %w", want.PeriodSize, err)
	}
	minPeriods, maxPeriods := hw.getInterval(sndrvPCMHwParamPeriods)
	hw.setInterval(sndrvPCMHwParamPeriods, clampU32(uint32(max(want.Periods, 2)), minPeriods, maxPeriods))

	if err := ioctl(p.fd, sndrvPCMIoctlHwParams, unsafe.Pointer(&hw)); err != nil {
		return HwParams{}, fmt.Errorf("hw params: %w", err)
	}

	got := want
	rate, _ := hw.getInterval(sndrvPCMHwParamRate)
	channels, _ := hw.getInterval(sndrvPCMHwParamChannels)
	period, _ := hw.getInterval(sndrvPCMHwParamPeriodSize)
	periods, _ := hw.getInterval(sndrvPCMHwParamPeriods)
	got.Rate, got.Channels = int(rate), int(channels)
	got.PeriodSize, got.Periods = int(period), int(periods)

	if err := p.swParams(got); err != nil {
		return HwParams{}, err
	}
	p.params = got
	return got, nil
}

// swParams makes playback start once the buffer is full and capture start
// on the first read.
func (p *PCM) swParams(h HwParams) error {
	sw := sndPCMSwParams{
		periodStep:    1,
		availMin:      uframes(h.PeriodSize),
		xferAlign:     1,
		stopThreshold: uframes(h.BufferSize()),
	}
	sw.startThreshold = 1
	if p.stream == StreamPlayback {
		sw.startThreshold = uframes(h.BufferSize())
	}
	if err := ioctl(p.fd, sndrvPCMIoctlSwParams, unsafe.Pointer(&sw)); err != nil {
		return fmt.Errorf("sw params: %w", err)
	}
	return nil
}

// Params returns the negotiated configuration.
func (p *PCM) Params() HwParams {
	return p.params
}

// Prepare readies the PCM for transfers, also after an xrun.
func (p *PCM) Prepare() error {
	if err := ioctl(p.fd, sndrvPCMIoctlPrepare, nil); err != nil {
		return transferError(err)
	}
	return nil
}

// Drop stops the PCM immediately, discarding pending frames.
func (p *PCM) Drop() error {
	return ioctl(p.fd, sndrvPCMIoctlDrop, nil)
}

// ReadInterleaved blocks until frames frames were captured into buf.
func (p *PCM) ReadInterleaved(buf []byte, frames int) (int, error) {
	return p.transfer(sndrvPCMIoctlReadiFrames, buf, frames)
}

// WriteInterleaved blocks until frames frames from buf were queued.
func (p *PCM) WriteInterleaved(buf []byte, frames int) (int, error) {
	return p.transfer(sndrvPCMIoctlWriteiFrames, buf, frames)
}

func (p *PCM) transfer(req uintptr, buf []byte, frames int) (int, error) {
	if frames == 0 {
		return 0, nil
	}
	if need := frames * p.params.FrameBytes(); len(buf) < need {
		return 0, fmt.Errorf("buffer holds %d bytes, need %d", len(buf), need)
	}
	x := sndXferi{buf: uintptr(unsafe.Pointer(&buf[0])), frames: uframes(frames)}
	for {
		err := ioctl(p.fd, req, unsafe.Pointer(&x))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, transferError(err)
		}
		return int(x.result), nil
	}
}

// Close releases the device.
func (p *PCM) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

func clampU32(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}
