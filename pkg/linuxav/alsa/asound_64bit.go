//go:build linux && (amd64 || arm64)

package alsa

import "unsafe"

type (
	uframes = uint64
	sframes = int64
)

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [376]byte = [unsafe.Sizeof(sndCtlCardInfo{})]byte{}
	_ [288]byte = [unsafe.Sizeof(sndPCMInfo{})]byte{}
	_ [268]byte = [unsafe.Sizeof(sndRawmidiInfo{})]byte{}
	_ [608]byte = [unsafe.Sizeof(sndPCMHwParams{})]byte{}
	_ [136]byte = [unsafe.Sizeof(sndPCMSwParams{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(sndXferi{})]byte{}
)

// PCM IOCTLs whose argument size depends on the word size.
const (
	sndrvPCMIoctlHwRefine     = 0xc2604110
	sndrvPCMIoctlHwParams     = 0xc2604111
	sndrvPCMIoctlSwParams     = 0xc0884113
	sndrvPCMIoctlWriteiFrames = 0x40184150
	sndrvPCMIoctlReadiFrames  = 0x80184151
)
