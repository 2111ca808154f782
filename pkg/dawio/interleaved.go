package dawio

import (
	"fmt"
	"slices"
)

// ChangeInterleavedPorts republishes the layout of e with new channel maps.
// It serves the AudioPorts capability of backends that exchange interleaved
// device buffers. inNames and outNames are the channel names of the open
// device directions. Nil in or out leaves that direction unchanged.
func ChangeInterleavedPorts(e *Engine, in, out *[]int, inNames, outNames []string) (uint64, error) {
	l := e.Layout()
	if in != nil {
		ports, err := BindPorts(*in, inNames)
		if err != nil {
			return 0, err
		}
		l.Info.InPorts = PortInfos("in", ports)
		l.InChannels = slices.Clone(*in)
	}
	if out != nil {
		ports, err := BindPorts(*out, outNames)
		if err != nil {
			return 0, err
		}
		l.Info.OutPorts = PortInfos("out", ports)
		l.OutChannels = slices.Clone(*out)
	}
	gen, err := e.Reconfigure(l)
	if err != nil {
		return 0, NewChangeAudioPortsError(ChangePlatformSpecific, "", err)
	}
	return gen, nil
}

// ChangeMaxChunk republishes the layout of e with n as the largest block
// handed to Process, for backends whose device period is not fixed.
func ChangeMaxChunk(e *Engine, n, limit uint32) (uint64, error) {
	if n == 0 || (limit > 0 && n > limit) {
		return 0, NewChangeBlockSizeError(InvalidBlockSize, fmt.Sprintf("block size %d outside 1..%d", n, limit), nil)
	}
	l := e.Layout()
	l.MaxFrames = int(n)
	l.Info.BufferSize = UnfixedWithMaxSize(n)
	gen, err := e.Reconfigure(l)
	if err != nil {
		return 0, NewChangeBlockSizeError(ChangePlatformSpecific, "", err)
	}
	return gen, nil
}
