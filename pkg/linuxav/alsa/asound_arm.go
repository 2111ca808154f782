//go:build linux && arm

package alsa

import "unsafe"

type (
	uframes = uint32
	sframes = int32
)

var (
	_ [376]byte = [unsafe.Sizeof(sndCtlCardInfo{})]byte{}
	_ [288]byte = [unsafe.Sizeof(sndPCMInfo{})]byte{}
	_ [268]byte = [unsafe.Sizeof(sndRawmidiInfo{})]byte{}
	_ [604]byte = [unsafe.Sizeof(sndPCMHwParams{})]byte{}
	_ [104]byte = [unsafe.Sizeof(sndPCMSwParams{})]byte{}
	_ [12]byte  = [unsafe.Sizeof(sndXferi{})]byte{}
)

// PCM IOCTLs on 32-bit ARM, where snd_pcm_uframes_t is 4 bytes.
const (
	sndrvPCMIoctlHwRefine     = 0xc25c4110
	sndrvPCMIoctlHwParams     = 0xc25c4111
	sndrvPCMIoctlSwParams     = 0xc0684113
	sndrvPCMIoctlWriteiFrames = 0x400c4150
	sndrvPCMIoctlReadiFrames  = 0x800c4151
)
