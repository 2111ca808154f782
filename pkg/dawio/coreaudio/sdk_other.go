//go:build !darwin || !cgo

package coreaudio

type unsupportedSDK struct{}

// NativeSDK returns an SDK that reports CoreAudio as not installed.
func NativeSDK() SDK { return unsupportedSDK{} }

func (unsupportedSDK) Version() string { return "" }

func (unsupportedSDK) Devices() ([]Device, error) { return nil, ErrUnavailable }

func (unsupportedSDK) Open(SessionConfig, RenderFunc, func(error)) (Session, error) {
	return nil, ErrUnavailable
}
