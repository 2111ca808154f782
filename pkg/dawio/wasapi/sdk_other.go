//go:build !windows || !cgo

package wasapi

import "errors"

var errUnsupported = errors.New("wasapi is only available on windows with cgo")

type unsupportedSDK struct{}

// NativeSDK returns an SDK whose Init always fails, so the backend reports
// itself as not installed.
func NativeSDK() SDK { return unsupportedSDK{} }

func (unsupportedSDK) Init() error { return errUnsupported }

func (unsupportedSDK) Version() string { return "" }

func (unsupportedSDK) Endpoints(DataFlow) ([]Endpoint, error) { return nil, errUnsupported }

func (unsupportedSDK) MixFormat(string, DataFlow) (WaveFormat, error) {
	return WaveFormat{}, errUnsupported
}

func (unsupportedSDK) IsFormatSupported(string, DataFlow, ShareMode, WaveFormat) bool {
	return false
}

func (unsupportedSDK) Open(ClientConfig) (Client, error) { return nil, errUnsupported }
