//go:build linux

// Package alsa is a pure Go binding to the ALSA kernel interface under
// /dev/snd. It enumerates cards, PCM devices and raw MIDI ports, negotiates
// hardware parameters, and moves interleaved frames with the READI/WRITEI
// ioctls.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
//	devices, err := alsa.ListDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s %s: %s (%s)\n", dev.ALSADevice, dev.Type, dev.DeviceName, dev.CardName)
//	    fmt.Printf("  Rates: %v\n", dev.SupportedRates)
//	    fmt.Printf("  Channels: %d-%d\n", dev.MinChannels, dev.MaxChannels)
//	}
//
// # Streaming
//
//	pcm, err := alsa.OpenPCM(1, 0, alsa.StreamPlayback)
//	got, err := pcm.Configure(alsa.HwParams{Format: alsa.FormatS16LE, Channels: 2, Rate: 48000, PeriodSize: 256, Periods: 2})
//	err = pcm.Prepare()
//	n, err := pcm.WriteInterleaved(buf, got.PeriodSize)
package alsa
