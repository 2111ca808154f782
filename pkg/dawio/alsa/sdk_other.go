//go:build !linux || !(amd64 || arm64 || arm)

package alsa

import (
	"context"
	"errors"
	"io"
)

var errUnsupported = errors.New("alsa is only available on linux")

type unsupportedSDK struct{}

// NativeSDK reports ALSA as not installed on this platform.
func NativeSDK() SDK { return unsupportedSDK{} }

func (unsupportedSDK) Version() string             { return "" }
func (unsupportedSDK) Devices() ([]PCMInfo, error) { return nil, errUnsupported }

func (unsupportedSDK) OpenPCM(int, int, Direction) (PCM, error) { return nil, errUnsupported }

func (unsupportedSDK) MidiPorts() ([]MidiPortInfo, error) { return nil, errUnsupported }

func (unsupportedSDK) OpenMidi(int, int, bool) (io.ReadWriteCloser, error) {
	return nil, errUnsupported
}

func (unsupportedSDK) WatchCards(ctx context.Context, fn func(int, bool)) error {
	return errUnsupported
}
