//go:build rtmidi

package rtmidi

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// NativeSDK returns the SDK backed by RtMidi. The driver is created on first
// use and shared by every port.
func NativeSDK() SDK { return &nativeSDK{} }

type nativeSDK struct {
	once sync.Once
	drv  *rtmididrv.Driver
	err  error
}

func (n *nativeSDK) driver() (*rtmididrv.Driver, error) {
	n.once.Do(func() {
		n.drv, n.err = rtmididrv.New()
		if n.err != nil {
			n.err = fmt.Errorf("start rtmidi: %w", n.err)
		}
	})
	return n.drv, n.err
}

func (n *nativeSDK) Ins() ([]string, error) {
	drv, err := n.driver()
	if err != nil {
		return nil, err
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

func (n *nativeSDK) Outs() ([]string, error) {
	drv, err := n.driver()
	if err != nil {
		return nil, err
	}
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}

func (n *nativeSDK) findIn(name string) (drivers.In, error) {
	drv, err := n.driver()
	if err != nil {
		return nil, err
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if in.String() == name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("midi input %q not found", name)
}

func (n *nativeSDK) Listen(name string, recv func([]byte), fail func(error)) (func(), error) {
	in, err := n.findIn(name)
	if err != nil {
		return nil, err
	}
	if err := in.Open(); err != nil {
		return nil, err
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		recv(msg.Bytes())
	}, midi.UseSysEx(), midi.HandleError(fail))
	if err != nil {
		_ = in.Close()
		return nil, err
	}
	return func() {
		stop()
		_ = in.Close()
	}, nil
}

func (n *nativeSDK) OpenOutput(name string) (Output, error) {
	drv, err := n.driver()
	if err != nil {
		return nil, err
	}
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if out.String() != name {
			continue
		}
		if err := out.Open(); err != nil {
			return nil, err
		}
		return &output{out: out}, nil
	}
	return nil, fmt.Errorf("midi output %q not found", name)
}

type output struct {
	mu  sync.Mutex
	out drivers.Out
}

func (o *output) Send(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.out.Send(msg)
}

func (o *output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.out.Close()
}
