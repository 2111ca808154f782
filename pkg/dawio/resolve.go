package dawio

import (
	"context"
	"fmt"
	"math"
	"math/bits"
)

// PlannedPort is one stream channel bound to a device port.
type PlannedPort struct {
	// DeviceIndex is the port index within the device, or -1 when a Jack
	// port name did not match any system port.
	DeviceIndex int    `json:"device_index"`
	SystemName  string `json:"system_name"`

	// Found is false for ports kept under the permissive port policy.
	Found bool `json:"found"`
}

// MidiPlannedPort is one MIDI port of a plan.
type MidiPlannedPort struct {
	Config MidiPortConfig `json:"config"`
	Found  bool           `json:"found"`
}

// MidiPlan is the resolved MIDI part of a Plan.
type MidiPlan struct {
	Backend    Backend           `json:"backend"`
	In         []MidiPlannedPort `json:"in"`
	Out        []MidiPlannedPort `json:"out"`
	BufferSize uint32            `json:"buffer_size"`
}

// Plan is a concrete, runnable stream configuration.
type Plan struct {
	Backend        Backend               `json:"backend"`
	BackendVersion string                `json:"backend_version,omitempty"`
	Device         AudioDeviceDescriptor `json:"device"`

	// InputDevice and OutputDevice are the enumerated devices the ports
	// belong to. They are the same device unless LinkedInOut was used.
	InputDevice  *AudioDeviceInfo `json:"input_device,omitempty"`
	OutputDevice *AudioDeviceInfo `json:"output_device,omitempty"`

	Inputs  []PlannedPort `json:"inputs"`
	Outputs []PlannedPort `json:"outputs"`

	SampleRate   uint32                `json:"sample_rate"`
	BufferSize   StreamAudioBufferSize `json:"buffer_size"`
	MaxBlockSize uint32                `json:"max_block_size"`
	Exclusive    bool                  `json:"exclusive"`

	Midi *MidiPlan `json:"midi,omitempty"`
}

// StreamInfo builds the initial stream info for the plan with generic port
// names. Adapters adjust names and connection flags as ports bind.
func (p Plan) StreamInfo() StreamInfo {
	info := StreamInfo{
		Backend:        p.Backend,
		BackendVersion: p.BackendVersion,
		AudioDevice:    p.Device,
		InPorts:        PortInfos("in", p.Inputs),
		OutPorts:       PortInfos("out", p.Outputs),
		SampleRate:     p.SampleRate,
		BufferSize:     p.BufferSize,
	}
	if p.BufferSize.Kind == BufferFixed {
		lat := p.BufferSize.Frames
		info.EstimatedLatency = &lat
	}
	if p.Midi != nil {
		info.Midi = p.Midi.StreamInfo()
	}
	return info
}

// PortInfos names planned ports prefix_1, prefix_2, ...
func PortInfos(prefix string, ports []PlannedPort) []AudioPortStreamInfo {
	out := make([]AudioPortStreamInfo, len(ports))
	for i, p := range ports {
		out[i] = AudioPortStreamInfo{
			Name:              fmt.Sprintf("%s_%d", prefix, i+1),
			ConnectedToIndex:  p.DeviceIndex,
			ConnectedToName:   p.SystemName,
			ConnectedToSystem: p.Found,
		}
	}
	return out
}

// ChannelMap returns the device channel of each planned port for
// Layout.InChannels and Layout.OutChannels. Unbound ports map to -1.
func ChannelMap(ports []PlannedPort) []int {
	m := make([]int, len(ports))
	for i, p := range ports {
		m[i] = p.DeviceIndex
		if !p.Found {
			m[i] = -1
		}
	}
	return m
}

// BindPorts plans a port change against the channel names of one device
// direction. An index outside names is an InvalidPort error.
func BindPorts(indices []int, names []string) ([]PlannedPort, error) {
	ports := make([]PlannedPort, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(names) {
			return nil, NewChangeAudioPortsError(InvalidPort, fmt.Sprintf("port index %d out of range", idx), nil)
		}
		ports[i] = PlannedPort{DeviceIndex: idx, SystemName: names[idx], Found: true}
	}
	return ports, nil
}

// StreamInfo builds the MIDI stream info for the plan.
func (m *MidiPlan) StreamInfo() *MidiStreamInfo {
	info := &MidiStreamInfo{
		Backend:    m.Backend,
		InPorts:    make([]MidiPortStreamInfo, len(m.In)),
		OutPorts:   make([]MidiPortStreamInfo, len(m.Out)),
		BufferSize: m.BufferSize,
	}
	for i, p := range m.In {
		info.InPorts[i] = MidiPortStreamInfo{ID: p.Config.DeviceID, Name: fmt.Sprintf("midi_in_%d", i+1), ConnectedToSystem: p.Found}
	}
	for i, p := range m.Out {
		info.OutPorts[i] = MidiPortStreamInfo{ID: p.Config.DeviceID, Name: fmt.Sprintf("midi_out_%d", i+1), ConnectedToSystem: p.Found}
	}
	return info
}

// Resolve turns cfg into a Plan against inv. It has no side effects; every
// failure is returned as a *RunConfigError.
func Resolve(cfg Config, opts RunOptions, inv Inventory) (Plan, error) {
	r := resolver{cfg: cfg, opts: opts.normalized(), inv: inv}
	return r.resolve()
}

// EstimatedSampleRateAndLatency resolves cfg with default options and returns
// the sample rate and, when the block size is fixed, the latency in frames.
func (h *Host) EstimatedSampleRateAndLatency(ctx context.Context, cfg Config) (uint32, *uint32, error) {
	inv, err := h.Inventory(ctx)
	if err != nil {
		return 0, nil, err
	}
	plan, err := Resolve(cfg, DefaultRunOptions(), inv)
	if err != nil {
		return 0, nil, err
	}
	return plan.SampleRate, plan.StreamInfo().EstimatedLatency, nil
}

// EstimatedSampleRateAndLatency calls DefaultHost().EstimatedSampleRateAndLatency.
func EstimatedSampleRateAndLatency(ctx context.Context, cfg Config) (uint32, *uint32, error) {
	return defaultHost.EstimatedSampleRateAndLatency(ctx, cfg)
}

type resolver struct {
	cfg  Config
	opts RunOptions
	inv  Inventory
}

func (r *resolver) resolve() (Plan, error) {
	if err := r.validate(); err != nil {
		return Plan{}, err
	}
	backend, err := r.pickBackend()
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Backend: backend.Backend, BackendVersion: backend.Version}

	in, out, desc, err := r.pickDevices(backend)
	if err != nil {
		return Plan{}, err
	}
	plan.Device = desc
	plan.InputDevice, plan.OutputDevice = in, out
	primary := out
	if primary == nil {
		primary = in
	}

	plan.Exclusive = r.cfg.TakeExclusive && backend.Backend.HasExclusiveMode()
	if plan.Exclusive {
		for _, dev := range []*AudioDeviceInfo{in, out} {
			if dev != nil && (dev.Exclusive == nil || len(dev.Exclusive.SampleRates) == 0) {
				return Plan{}, &RunConfigError{Kind: KindCouldNotUseExclusive, Backend: backend.Backend, Device: dev.ID}
			}
		}
	}

	rates, def := sampleRates(in, out, plan.Exclusive)
	if plan.SampleRate, err = r.pickSampleRate(rates, def); err != nil {
		return Plan{}, err
	}
	if plan.BufferSize, plan.MaxBlockSize, err = r.pickBlockSize(*primary, plan.Exclusive); err != nil {
		return Plan{}, err
	}

	if in != nil {
		if plan.Inputs, err = r.pickPorts(*in, true); err != nil {
			return Plan{}, err
		}
	}
	if out != nil {
		if plan.Outputs, err = r.pickPorts(*out, false); err != nil {
			return Plan{}, err
		}
	}
	if err := r.checkStereo(plan.Outputs); err != nil {
		return Plan{}, err
	}

	if plan.Midi, err = r.resolveMidi(plan.Backend); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (r *resolver) validate() error {
	if v, ok := r.cfg.SampleRate.Get(); ok && v == 0 {
		return malformed("sample rate must be positive")
	}
	if v, ok := r.cfg.BlockSize.Get(); ok && v == 0 {
		return malformed("block size must be positive")
	}
	for _, sel := range []AutoOption[[]int]{r.cfg.InputChannels, r.cfg.OutputChannels} {
		if list, ok := sel.Get(); ok {
			for _, idx := range list {
				if idx < 0 {
					return malformed("negative channel index %d", idx)
				}
			}
		}
	}
	switch d := r.cfg.audioDevice().(type) {
	case JackPorts:
		if b, ok := r.cfg.AudioBackend.Get(); ok && b != BackendJack {
			return malformed("jack ports selected for backend %s", b)
		}
	case LinkedInOut:
		if d.Input == nil && d.Output == nil {
			return malformed("linked device config has neither input nor output")
		}
	}
	if b := r.opts.ErrorBehavior.SampleRateConfigError; b.Kind == SampleRateTryNextBestWithMinMax && b.Min > b.Max {
		return malformed("sample rate range %d..%d is empty", b.Min, b.Max)
	}
	return nil
}

func usableBackend(info AudioBackendInfo) bool {
	return info.Running() && len(info.Devices) > 0
}

func (r *resolver) pickBackend() (AudioBackendInfo, error) {
	_, jackPorts := r.cfg.audioDevice().(JackPorts)
	want, explicit := r.cfg.AudioBackend.Get()
	if jackPorts && !explicit {
		want, explicit = BackendJack, true
	}
	if !explicit {
		if info, ok := r.preferredBackend(""); ok {
			return info, nil
		}
		return AudioBackendInfo{}, &RunConfigError{Kind: KindAudioBackendNotFound}
	}

	info, ok := r.inv.AudioBackend(want)
	var err error
	switch {
	case !ok && want == BackendJack:
		err = &RunConfigError{Kind: KindJackNotEnabledForPlatform, Backend: want}
	case !ok:
		err = &RunConfigError{Kind: KindAudioBackendNotFound, Backend: want}
	case !info.Running():
		err = backendUnusable(want, info.Status)
	case len(info.Devices) == 0:
		err = &RunConfigError{Kind: KindAudioBackendNotFound, Backend: want}
	default:
		return info, nil
	}
	if jackPorts || r.opts.ErrorBehavior.AudioBackendNotFound == NotFoundReturnWithError {
		return AudioBackendInfo{}, err
	}
	if next, ok := r.preferredBackend(want); ok {
		return next, nil
	}
	return AudioBackendInfo{}, err
}

func (r *resolver) preferredBackend(exclude Backend) (AudioBackendInfo, bool) {
	for _, info := range r.inv.Audio {
		if info.Backend != exclude && usableBackend(info) {
			return info, true
		}
	}
	return AudioBackendInfo{}, false
}

func (r *resolver) pickDevices(info AudioBackendInfo) (in, out *AudioDeviceInfo, desc AudioDeviceDescriptor, err error) {
	single := func(dev AudioDeviceInfo, kind string) (*AudioDeviceInfo, *AudioDeviceInfo, AudioDeviceDescriptor, error) {
		id := dev.ID
		return &dev, &dev, AudioDeviceDescriptor{Kind: kind, Device: &id}, nil
	}

	if info.SystemWideDevice {
		dev, err := r.autoDevice(info)
		if err != nil {
			return nil, nil, desc, err
		}
		kind := "single"
		if info.Backend == BackendJack {
			kind = "jack"
		}
		return single(dev, kind)
	}

	switch d := r.cfg.audioDevice().(type) {
	case JackPorts:
		dev, err := r.autoDevice(info)
		if err != nil {
			return nil, nil, desc, err
		}
		return single(dev, "jack")

	case LinkedInOut:
		desc.Kind = "linked"
		if d.Input != nil {
			dev, err := r.findDevice(info, *d.Input)
			if err != nil {
				return nil, nil, desc, err
			}
			in = &dev
			desc.Input = &dev.ID
		}
		if d.Output != nil {
			dev, err := r.findDevice(info, *d.Output)
			if err != nil {
				return nil, nil, desc, err
			}
			out = &dev
			desc.Output = &dev.ID
		}
		return in, out, desc, nil

	case SingleDevice:
		if id, ok := d.ID.Get(); ok {
			dev, err := r.findDevice(info, id)
			if err != nil {
				return nil, nil, desc, err
			}
			return single(dev, "single")
		}
		dev, err := r.autoDevice(info)
		if err != nil {
			return nil, nil, desc, err
		}
		return single(dev, "single")
	}
	return nil, nil, desc, malformed("unknown audio device config %T", r.cfg.AudioDevice)
}

func (r *resolver) findDevice(info AudioBackendInfo, id DeviceID) (AudioDeviceInfo, error) {
	if dev, ok := info.Device(id); ok {
		return dev, nil
	}
	if r.opts.ErrorBehavior.AudioDeviceNotFound == NotFoundTryNextBest {
		return r.autoDevice(info)
	}
	return AudioDeviceInfo{}, &RunConfigError{Kind: KindAudioDeviceNotFound, Backend: info.Backend, Device: id}
}

// autoDevice applies the preferred-device tie-break, skipping devices without
// a stereo output when one is required.
func (r *resolver) autoDevice(info AudioBackendInfo) (AudioDeviceInfo, error) {
	if !r.opts.MustHaveStereoOutput {
		dev, ok := PreferredAudioDevice(info)
		if !ok {
			return AudioDeviceInfo{}, &RunConfigError{Kind: KindAudioDeviceNotFound, Backend: info.Backend}
		}
		return dev, nil
	}
	if d := info.DefaultDevice; d != nil && *d >= 0 && *d < len(info.Devices) && len(info.Devices[*d].OutPorts) >= 2 {
		return info.Devices[*d], nil
	}
	for _, dev := range info.Devices {
		if len(dev.OutPorts) >= 2 {
			return dev, nil
		}
	}
	return AudioDeviceInfo{}, &RunConfigError{Kind: KindAutoNoStereoOutputFound, Backend: info.Backend}
}

// sampleRates returns the rates both devices support and the preferred
// default.
func sampleRates(in, out *AudioDeviceInfo, exclusive bool) ([]uint32, uint32) {
	ratesOf := func(d *AudioDeviceInfo) []uint32 {
		if exclusive && d.Exclusive != nil {
			return d.Exclusive.SampleRates
		}
		return d.SampleRates
	}
	switch {
	case in == nil:
		return ratesOf(out), out.DefaultSampleRate
	case out == nil || in.ID.Matches(out.ID):
		return ratesOf(in), in.DefaultSampleRate
	}
	var common []uint32
	for _, sr := range ratesOf(out) {
		if containsRate(ratesOf(in), sr) {
			common = append(common, sr)
		}
	}
	return common, out.DefaultSampleRate
}

func containsRate(rates []uint32, sr uint32) bool {
	for _, r := range rates {
		if r == sr {
			return true
		}
	}
	return false
}

func (r *resolver) pickSampleRate(rates []uint32, def uint32) (uint32, error) {
	want, explicit := r.cfg.SampleRate.Get()
	if len(rates) == 0 {
		return 0, &RunConfigError{Kind: KindCouldNotUseSampleRate, SampleRate: want}
	}
	if !explicit {
		for _, pref := range []uint32{48000, 44100, def} {
			if pref != 0 && containsRate(rates, pref) {
				return pref, nil
			}
		}
		return rates[0], nil
	}
	if containsRate(rates, want) {
		return want, nil
	}
	switch b := r.opts.ErrorBehavior.SampleRateConfigError; b.Kind {
	case SampleRateTryNextBest:
		if sr, ok := closestRate(rates, want, 0, math.MaxUint32); ok {
			return sr, nil
		}
	case SampleRateTryNextBestWithMinMax:
		if sr, ok := closestRate(rates, want, b.Min, b.Max); ok {
			return sr, nil
		}
	}
	return 0, &RunConfigError{Kind: KindCouldNotUseSampleRate, SampleRate: want}
}

// closestRate returns the advertised rate in [lo, hi] closest to want,
// preferring the higher rate on a tie.
func closestRate(rates []uint32, want, lo, hi uint32) (uint32, bool) {
	var best uint32
	bestDist := uint64(math.MaxUint64)
	for _, sr := range rates {
		if sr < lo || sr > hi {
			continue
		}
		dist := absDiff(sr, want)
		if dist < bestDist || (dist == bestDist && sr > best) {
			best, bestDist = sr, dist
		}
	}
	return best, bestDist != math.MaxUint64
}

func absDiff(a, b uint32) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

func (r *resolver) pickBlockSize(dev AudioDeviceInfo, exclusive bool) (StreamAudioBufferSize, uint32, error) {
	rng := dev.FixedBufferSize
	if exclusive && dev.Exclusive != nil && dev.Exclusive.FixedBufferSize != nil {
		rng = dev.Exclusive.FixedBufferSize
	}
	want, explicit := r.cfg.BlockSize.Get()

	unfixed := func(limit uint32) (StreamAudioBufferSize, uint32, error) {
		return UnfixedWithMaxSize(limit), limit, nil
	}
	if rng == nil {
		if explicit {
			return unfixed(want)
		}
		return unfixed(r.opts.MaxBufferSize)
	}
	if !explicit {
		n := rng.Default
		if !rng.accepts(n) {
			var ok bool
			if n, ok = rng.nearest(n); !ok {
				return StreamAudioBufferSize{}, 0, &RunConfigError{Kind: KindCouldNotUseBlockSize, BlockSize: rng.Default}
			}
		}
		return Fixed(n), n, nil
	}
	if rng.accepts(want) {
		return Fixed(want), want, nil
	}

	notUsable := &RunConfigError{Kind: KindCouldNotUseBlockSize, BlockSize: want}
	switch r.opts.ErrorBehavior.BufferSizeConfigError {
	case BufferSizeTryNextBestThenFallbackToUnfixedSize:
		if n, ok := rng.nearest(want); ok {
			return Fixed(n), n, nil
		}
		return unfixed(r.opts.MaxBufferSize)
	case BufferSizeTryNextBestThenReturnError:
		if n, ok := rng.nearest(want); ok {
			return Fixed(n), n, nil
		}
		return StreamAudioBufferSize{}, 0, notUsable
	case BufferSizeFallbackToUnfixedSize:
		return unfixed(r.opts.MaxBufferSize)
	default:
		return StreamAudioBufferSize{}, 0, notUsable
	}
}

func (rng FixedBufferSizeRange) accepts(n uint32) bool {
	if n == 0 || n < rng.Min || n > rng.Max {
		return false
	}
	return !rng.MustBePowerOfTwo || isPowerOfTwo(n)
}

// nearest clamps n into the range and, when required, rounds it to the
// closest power of two inside the range. Ties go to the larger size.
func (rng FixedBufferSizeRange) nearest(n uint32) (uint32, bool) {
	if rng.Max == 0 || rng.Min > rng.Max {
		return 0, false
	}
	c := min(max(n, rng.Min, 1), rng.Max)
	if !rng.MustBePowerOfTwo {
		return c, true
	}
	var best uint32
	bestDist := uint64(math.MaxUint64)
	for shift := 0; shift < 32; shift++ {
		p := uint32(1) << shift
		if p < rng.Min || p > rng.Max {
			continue
		}
		dist := absDiff(p, c)
		if dist < bestDist || (dist == bestDist && p > best) {
			best, bestDist = p, dist
		}
	}
	return best, bestDist != math.MaxUint64
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && bits.OnesCount32(n) == 1
}

func (r *resolver) pickPorts(dev AudioDeviceInfo, input bool) ([]PlannedPort, error) {
	ports, layout, dir := dev.OutPorts, dev.DefaultOutputLayout, "output"
	sel := r.cfg.OutputChannels
	if input {
		ports, layout, dir = dev.InPorts, dev.DefaultInputLayout, "input"
		sel = r.cfg.InputChannels
	}

	if jp, ok := r.cfg.audioDevice().(JackPorts); ok {
		names := jp.Out
		if input {
			names = jp.In
		}
		if list, ok := names.Get(); ok {
			return r.portsByName(ports, list)
		}
		return r.autoPorts(ports, layout, input), nil
	}

	list, ok := sel.Get()
	if !ok {
		return r.autoPorts(ports, layout, input), nil
	}
	out := make([]PlannedPort, 0, len(list))
	for _, idx := range list {
		if idx < len(ports) {
			out = append(out, PlannedPort{DeviceIndex: idx, SystemName: ports[idx], Found: true})
			continue
		}
		name := fmt.Sprintf("%s %d", dir, idx)
		if !r.opts.PermissivePorts() {
			return nil, &RunConfigError{Kind: KindAudioPortNotFound, Port: name, Device: dev.ID}
		}
		out = append(out, PlannedPort{DeviceIndex: idx, SystemName: name})
	}
	return out, nil
}

func (r *resolver) portsByName(ports, names []string) ([]PlannedPort, error) {
	out := make([]PlannedPort, 0, len(names))
	for _, name := range names {
		idx := indexOf(ports, name)
		if idx < 0 && !r.opts.PermissivePorts() {
			return nil, &RunConfigError{Kind: KindAudioPortNotFound, Port: name}
		}
		out = append(out, PlannedPort{DeviceIndex: idx, SystemName: name, Found: idx >= 0})
	}
	return out, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// autoPorts follows the device's default layout. Without a layout, inputs
// take the first port and outputs the first two.
func (r *resolver) autoPorts(ports []string, layout ChannelLayout, input bool) []PlannedPort {
	if input && !r.opts.AutoAudioInputs {
		return []PlannedPort{}
	}
	chans := layout.PrimaryChannels()
	if len(chans) == 0 {
		n := 2
		if input {
			n = 1
		}
		for i := 0; i < min(n, len(ports)); i++ {
			chans = append(chans, i)
		}
	}
	out := make([]PlannedPort, 0, len(chans))
	for _, idx := range chans {
		if idx >= 0 && idx < len(ports) {
			out = append(out, PlannedPort{DeviceIndex: idx, SystemName: ports[idx], Found: true})
		}
	}
	return out
}

func (r *resolver) checkStereo(outputs []PlannedPort) error {
	if !r.opts.MustHaveStereoOutput {
		return nil
	}
	found := 0
	for _, p := range outputs {
		if p.Found {
			found++
		}
	}
	if found >= 2 {
		return nil
	}
	explicit := !r.cfg.OutputChannels.IsAuto()
	if jp, ok := r.cfg.audioDevice().(JackPorts); ok {
		explicit = !jp.Out.IsAuto()
	}
	if explicit {
		return &RunConfigError{Kind: KindConfigHasNoStereoOutput}
	}
	return &RunConfigError{Kind: KindAutoNoStereoOutputFound}
}

func (r *resolver) resolveMidi(audio Backend) (*MidiPlan, error) {
	mc := r.cfg.Midi
	if mc == nil {
		return nil, nil
	}
	inList, inSet := mc.In.Get()
	outList, outSet := mc.Out.Get()
	if inSet && outSet && len(inList) == 0 && len(outList) == 0 {
		return nil, nil
	}

	info, err := r.pickMidiBackend(audio)
	if err != nil {
		if r.opts.ErrorBehavior.MidiBackendNotFound == NotFoundReturnWithError {
			return nil, err
		}
		return nil, nil
	}

	plan := &MidiPlan{Backend: info.Backend, BufferSize: r.opts.MidiBufferSize}
	if plan.In, err = r.midiPorts(mc.In, info.InDevices, info.DefaultIn, info.Backend); err != nil {
		return nil, err
	}
	if plan.Out, err = r.midiPorts(mc.Out, info.OutDevices, info.DefaultOut, info.Backend); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *resolver) pickMidiBackend(audio Backend) (MidiBackendInfo, error) {
	if want, ok := r.cfg.Midi.Backend.Get(); ok {
		if info, found := r.inv.MidiBackend(want); found && info.Running() {
			return info, nil
		}
		if r.opts.ErrorBehavior.MidiBackendNotFound == NotFoundReturnWithError {
			return MidiBackendInfo{}, &RunConfigError{Kind: KindMidiBackendNotFound, Backend: want}
		}
	}
	if info, ok := r.inv.MidiBackend(audio); ok && info.Running() {
		return info, nil
	}
	for _, info := range r.inv.Midi {
		if info.Running() && len(info.InDevices)+len(info.OutDevices) > 0 {
			return info, nil
		}
	}
	return MidiBackendInfo{}, &RunConfigError{Kind: KindMidiBackendNotFound}
}

func (r *resolver) midiPorts(sel AutoOption[[]MidiPortConfig], devices []MidiDeviceInfo, def *int, b Backend) ([]MidiPlannedPort, error) {
	list, ok := sel.Get()
	if !ok {
		dev, found := preferredMidiDevice(devices, def)
		if !found {
			return []MidiPlannedPort{}, nil
		}
		return []MidiPlannedPort{{Config: MidiPortConfig{DeviceID: dev.ID}, Found: true}}, nil
	}
	out := make([]MidiPlannedPort, 0, len(list))
	for _, pc := range list {
		if dev, found := findMidiDevice(devices, pc.DeviceID); found {
			pc.DeviceID = dev.ID
			out = append(out, MidiPlannedPort{Config: pc, Found: true})
			continue
		}
		if r.opts.ErrorBehavior.MidiDeviceNotFound == MidiDeviceReturnWithError {
			return nil, &RunConfigError{Kind: KindMidiDeviceNotFound, Backend: b, Device: pc.DeviceID}
		}
		out = append(out, MidiPlannedPort{Config: pc})
	}
	return out, nil
}
