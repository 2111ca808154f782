//go:build jack

package jack

import (
	"fmt"
	"unsafe"

	gojack "github.com/hairlesshobo/go-jack"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Native returns the SDK backed by libjack.
func Native() SDK { return nativeSDK{} }

type nativeSDK struct{}

func (nativeSDK) Version() string { return "" }

func (nativeSDK) Open(name string) (Client, error) {
	c, status := gojack.ClientOpen(name, gojack.NoStartServer)
	if c == nil {
		return nil, fmt.Errorf("open jack client %q: %w", name, gojack.StrError(int(status)))
	}
	return &nativeClient{c: c}, nil
}

type nativeClient struct {
	c *gojack.Client
}

func jackErr(op string, code int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", op, gojack.StrError(code))
}

func (n *nativeClient) Name() string       { return n.c.GetName() }
func (n *nativeClient) SampleRate() uint32 { return n.c.GetSampleRate() }
func (n *nativeClient) BufferSize() uint32 { return n.c.GetBufferSize() }

func (n *nativeClient) SetProcessCallback(fn func(uint32) int) error {
	return jackErr("set process callback", n.c.SetProcessCallback(fn))
}

func (n *nativeClient) SetSampleRateCallback(fn func(uint32) int) error {
	return jackErr("set sample rate callback", n.c.SetSampleRateCallback(fn))
}

func (n *nativeClient) SetXRunCallback(fn func() int) error {
	return jackErr("set xrun callback", n.c.SetXRunCallback(fn))
}

func (n *nativeClient) SetShutdownCallback(fn func(string)) {
	n.c.OnShutdown(func() { fn("jack server shut down") })
}

func (n *nativeClient) SetPortRegistrationCallback(fn func(string, bool)) error {
	return jackErr("set port registration callback", n.c.SetPortRegistrationCallback(func(id gojack.PortId, registered bool) {
		name := ""
		if p := n.c.GetPortById(id); p != nil {
			name = p.GetName()
		}
		fn(name, registered)
	}))
}

func (n *nativeClient) RegisterPort(shortName, portType string, flags PortFlags) (Port, error) {
	p := n.c.PortRegister(shortName, portType, uint64(flags), 0)
	if p == nil {
		return nil, fmt.Errorf("jack refused to register port %s", shortName)
	}
	return &nativePort{p: p}, nil
}

func (n *nativeClient) UnregisterPort(p Port) error {
	np, ok := p.(*nativePort)
	if !ok {
		return fmt.Errorf("port %s does not belong to this client", p.Name())
	}
	return jackErr("unregister port", n.c.PortUnregister(np.p))
}

func (n *nativeClient) Connect(src, dst string) error {
	return jackErr(fmt.Sprintf("connect %s -> %s", src, dst), n.c.Connect(src, dst))
}

func (n *nativeClient) Disconnect(src, dst string) error {
	return jackErr(fmt.Sprintf("disconnect %s -> %s", src, dst), n.c.Disconnect(src, dst))
}

func (n *nativeClient) Ports(portType string, flags PortFlags) []string {
	return n.c.GetPorts("", portType, uint64(flags))
}

func (n *nativeClient) Activate() error   { return jackErr("activate", n.c.Activate()) }
func (n *nativeClient) Deactivate() error { return jackErr("deactivate", n.c.Deactivate()) }
func (n *nativeClient) Close() error      { return jackErr("close", n.c.Close()) }

type nativePort struct {
	p *gojack.Port

	// out is reused by WriteMidi.
	out gojack.MidiData
	buf [dawio.MaxMidiMsgSize]byte
}

func (p *nativePort) Name() string { return p.p.GetName() }

// AudioBuffer reinterprets the port buffer; AudioSample is a float32.
func (p *nativePort) AudioBuffer(nframes uint32) []float32 {
	buf := p.p.GetBuffer(nframes)
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}

func (p *nativePort) ReadMidi(nframes uint32, sink MidiSink) {
	for _, ev := range p.p.GetMidiEvents(nframes) {
		sink.PushMidi(ev.Time, ev.Buffer)
	}
}

func (p *nativePort) ClearMidi(nframes uint32) { p.p.MidiClearBuffer(nframes) }

func (p *nativePort) WriteMidi(nframes, time uint32, data []byte) error {
	n := copy(p.buf[:], data)
	p.out.Time = time
	p.out.Buffer = p.buf[:n]
	if code := p.p.MidiEventWrite(&p.out, nframes); code != 0 {
		return gojack.StrError(code)
	}
	return nil
}
