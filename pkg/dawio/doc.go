// Package dawio is a backend-neutral audio and MIDI I/O layer for a
// digital audio workstation.
//
// It covers the whole lifecycle of a realtime stream:
//
//   - Enumeration of audio and MIDI backends and their devices
//     (EnumerateAudioBackend, FindPreferredAudioDevice, Inventory, ...).
//   - Negotiation of a concrete plan from a declarative Config
//     (Resolve), with per-error-class policies in RunOptions.
//   - Running the plan on a backend (Run), which hands a ProcessHandler to
//     the realtime thread and returns a StreamHandle.
//   - Live reconfiguration through the StreamHandle control plane and
//     asynchronous reporting through a lock-free StreamMsg channel.
//
// # Backends
//
// Backends live in sub-packages and register themselves on import, the
// same way database/sql drivers do:
//
//	import _ "github.com/smazurov/dawio/pkg/dawio/all"
//
// A backend that was not compiled in reports StatusNotInstalled.
//
// # Realtime rules
//
// ProcessHandler.Process runs on the audio thread. It must not allocate,
// block, or take locks that can be held for an unbounded time. Every buffer
// in ProcessInfo is preallocated by the engine and only valid for the
// duration of one call.
//
// # Example
//
//	handle, err := dawio.Run(ctx, dawio.DefaultConfig(), dawio.DefaultRunOptions(), handler)
//	if err != nil {
//	    return err
//	}
//	defer handle.Close()
//
//	for msg := range handle.Messages().Wait(ctx) {
//	    log.Println(msg)
//	}
package dawio
