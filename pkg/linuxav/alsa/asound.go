//go:build linux

package alsa

// Kernel structures shared by every architecture. Layouts follow
// include/uapi/sound/asound.h.

// IOCTLs that do not depend on the word size.
const (
	sndrvCtlIoctlCardInfo          = 0x81785501
	sndrvCtlIoctlPCMNextDevice     = 0x80045530
	sndrvCtlIoctlPCMInfo           = 0xc1205531
	sndrvCtlIoctlRawmidiNextDevice = 0xc0045540
	sndrvCtlIoctlRawmidiInfo       = 0xc10c5541

	sndrvPCMIoctlPrepare = 0x00004140
	sndrvPCMIoctlDrop    = 0x00004143
)

// Hardware parameter indices.
const (
	sndrvPCMHwParamAccess        = 0
	sndrvPCMHwParamFormat        = 1
	sndrvPCMHwParamFirstMask     = 0
	sndrvPCMHwParamLastMask      = 2
	sndrvPCMHwParamChannels      = 10
	sndrvPCMHwParamRate          = 11
	sndrvPCMHwParamPeriodSize    = 13
	sndrvPCMHwParamPeriods       = 15
	sndrvPCMHwParamBufferSize    = 17
	sndrvPCMHwParamFirstInterval = 8
	sndrvPCMHwParamLastInterval  = 19

	sndrvMaskMax = 256

	sndrvPCMAccessRwInterleaved = 3

	intervalInteger = 1 << 2
)

// Raw MIDI info flags.
const (
	sndrvRawmidiInfoOutput = 0x00000001
	sndrvRawmidiInfoInput  = 0x00000002
)

// sndCtlCardInfo has size 376 bytes.
type sndCtlCardInfo struct {
	card       int32
	_          [4]byte
	id         [16]byte
	driver     [16]byte
	name       [32]byte
	longname   [80]byte
	reserved   [16]byte
	mixername  [80]byte
	components [128]byte
}

// sndPCMInfo has size 288 bytes.
type sndPCMInfo struct {
	device          uint32
	subdevice       uint32
	stream          int32
	card            int32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
	devClass        int32
	devSubclass     int32
	subdevicesCount uint32
	subdevicesAvail uint32
	syncID          [16]byte
	reserved        [64]byte
}

// sndRawmidiInfo has size 268 bytes.
type sndRawmidiInfo struct {
	device          uint32
	subdevice       uint32
	stream          int32
	card            int32
	flags           uint32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
	subdevicesCount uint32
	subdevicesAvail uint32
	reserved        [64]byte
}

type sndMask struct {
	bits [(sndrvMaskMax + 31) / 32]uint32
}

type sndInterval struct {
	minVal uint32
	maxVal uint32
	bit    uint32
}

// sndPCMHwParams is 608 bytes on 64-bit and 604 on 32-bit ARM; only
// fifoSize changes width.
type sndPCMHwParams struct {
	flags     uint32
	masks     [sndrvPCMHwParamLastMask - sndrvPCMHwParamFirstMask + 1]sndMask
	mres      [5]sndMask
	intervals [sndrvPCMHwParamLastInterval - sndrvPCMHwParamFirstInterval + 1]sndInterval
	ires      [9]sndInterval
	rmask     uint32
	cmask     uint32
	info      uint32
	msbits    uint32
	rateNum   uint32
	rateDen   uint32
	fifoSize  uframes
	reserved  [64]byte
}

// sndPCMSwParams is 136 bytes on 64-bit and 104 on 32-bit ARM.
type sndPCMSwParams struct {
	tstampMode       int32
	periodStep       uint32
	sleepMin         uint32
	availMin         uframes
	xferAlign        uframes
	startThreshold   uframes
	stopThreshold    uframes
	silenceThreshold uframes
	silenceSize      uframes
	boundary         uframes
	proto            uint32
	tstampType       uint32
	reserved         [56]byte
}

// sndXferi is the READI/WRITEI argument.
type sndXferi struct {
	result sframes
	buf    uintptr
	frames uframes
}

func (p *sndPCMHwParams) init() {
	for i := range p.masks {
		for j := range p.masks[i].bits {
			p.masks[i].bits[j] = 0xFFFFFFFF
		}
	}
	for i := range p.intervals {
		p.intervals[i] = sndInterval{maxVal: 0xFFFFFFFF}
	}
	p.rmask = 0xFFFFFFFF
	p.cmask = 0
	p.info = 0xFFFFFFFF
}

func (p *sndPCMHwParams) setMask(param, val uint32) {
	m := &p.masks[param-sndrvPCMHwParamFirstMask]
	clear(m.bits[:])
	m.bits[val>>5] = 1 << (val & 0x1F)
}

func (p *sndPCMHwParams) checkMask(param, val uint32) bool {
	return p.masks[param-sndrvPCMHwParamFirstMask].bits[val>>5]&(1<<(val&0x1F)) != 0
}

func (p *sndPCMHwParams) setInterval(param, val uint32) {
	p.intervals[param-sndrvPCMHwParamFirstInterval] = sndInterval{minVal: val, maxVal: val, bit: intervalInteger}
}

func (p *sndPCMHwParams) getInterval(param uint32) (minVal, maxVal uint32) {
	iv := p.intervals[param-sndrvPCMHwParamFirstInterval]
	return iv.minVal, iv.maxVal
}
