// Package nats exposes a dawio stream on NATS: stream events are published
// for other processes to follow and control subjects change the running
// stream. An embedded server is available for single-host setups.
//
// # Subject Hierarchy
//
//	dawio.streams.{stream_id}.msgs          # Stream messages (errors, device changes)
//	dawio.streams.{stream_id}.state         # Lifecycle changes
//	dawio.streams.{stream_id}.stats         # Periodic engine counters
//	dawio.control.{stream_id}.ports         # Select device channels
//	dawio.control.{stream_id}.jack-ports    # Select Jack system ports
//	dawio.control.{stream_id}.block-size    # Change the maximum block size
//	dawio.control.{stream_id}.midi          # Open and close MIDI ports
//	dawio.control.{stream_id}.restart       # Reopen the stream from its profile
//
// Publications are core NATS, fire-and-forget. Control messages sent as
// requests get a Reply; plain publishes are applied without one.
//
// # Debugging with nats CLI
//
// Follow everything a stream reports:
//
//	nats sub "dawio.streams.>"
//
// Route the output to channels 3 and 4:
//
//	nats req dawio.control.main.ports '{"outputs":[2,3]}'
//
// Shrink the block size:
//
//	nats req dawio.control.main.block-size '{"frames":128}'
//
// Open a MIDI input:
//
//	nats req dawio.control.main.midi '{"inputs":[{"name":"Launchkey MK3"}]}'
//
// # Message Formats
//
// Stream subjects carry the JSON of the corresponding bus event, for
// example on dawio.streams.main.msgs:
//
//	{
//	  "stream_id": "main",
//	  "msg": {"kind": "audio_device_disconnected", "device": {"name": "USB Audio"}},
//	  "timestamp": "2026-01-01T12:00:00Z"
//	}
//
// Replies to control requests:
//
//	{"ok": false, "error": "invalid port: port index 7 out of range", "kind": "invalid port"}
package nats
