package dawio

// ProcessHandler is implemented by user code. All three methods run on the
// audio thread.
type ProcessHandler interface {
	// Init is called once before the first Process. Per-stream state may be
	// allocated here.
	Init(info *StreamInfo)

	// StreamChanged is called after a successful live reconfiguration and
	// before the next Process.
	StreamChanged(info *StreamInfo)

	// Process is called once per block. It must not allocate, block, or
	// take unbounded locks.
	Process(info ProcessInfo)
}

// ProcessInfo is the per-cycle view handed to Process. Every slice is
// borrowed from the engine and must not be retained past the call.
type ProcessInfo struct {
	// AudioInputs and AudioOutputs hold one buffer per channel, each exactly
	// Frames long. Outputs arrive zeroed.
	AudioInputs  [][]float32
	AudioOutputs [][]float32

	Frames int

	// SilentAudioInputs[i] is true iff every sample of AudioInputs[i] is
	// exactly 0. It is only computed when RunOptions.CheckForSilentInputs
	// is set; otherwise every entry is false.
	SilentAudioInputs []bool

	// MidiInputs must not be mutated. MidiOutputs arrive cleared and may be
	// appended to up to their capacity.
	MidiInputs  []*MidiBuffer
	MidiOutputs []*MidiBuffer
}

// ProcessFunc adapts a function to ProcessHandler with no-op Init and
// StreamChanged.
type ProcessFunc func(ProcessInfo)

// Init implements ProcessHandler.
func (f ProcessFunc) Init(*StreamInfo) {}

// StreamChanged implements ProcessHandler.
func (f ProcessFunc) StreamChanged(*StreamInfo) {}

// Process implements ProcessHandler.
func (f ProcessFunc) Process(info ProcessInfo) { f(info) }
