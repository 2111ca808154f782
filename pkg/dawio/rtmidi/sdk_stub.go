//go:build !rtmidi

package rtmidi

type unsupportedSDK struct{}

// NativeSDK returns an SDK that reports RtMidi as not installed. Build with
// -tags rtmidi to use it.
func NativeSDK() SDK { return unsupportedSDK{} }

func (unsupportedSDK) Ins() ([]string, error) { return nil, ErrUnavailable }

func (unsupportedSDK) Outs() ([]string, error) { return nil, ErrUnavailable }

func (unsupportedSDK) Listen(string, func([]byte), func(error)) (func(), error) {
	return nil, ErrUnavailable
}

func (unsupportedSDK) OpenOutput(string) (Output, error) { return nil, ErrUnavailable }
