//go:build !asio

package asio

import "fmt"

type unsupportedSDK struct{}

// NativeSDK returns an SDK that reports ASIO as not installed. Build with
// -tags asio to use PortAudio.
func NativeSDK() SDK { return unsupportedSDK{} }

func (unsupportedSDK) Init() error {
	return fmt.Errorf("%w: built without the asio tag", ErrNoHostAPI)
}

func (unsupportedSDK) Version() string { return "" }

func (unsupportedSDK) Devices() ([]Device, error) { return nil, ErrNoHostAPI }

func (unsupportedSDK) Supports(int, int, int, uint32) bool { return false }

func (unsupportedSDK) Open(StreamConfig, ProcessFunc) (Stream, error) {
	return nil, ErrNoHostAPI
}
