// Package logging configures the process-wide slog setup used by the dawio
// binary.
//
// Every subsystem asks for its own logger:
//
//	logger := logging.GetLogger("session")
//	logger.Info("Stream started", "backend", "jack")
//
// Levels are set globally and per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"jack": "debug"},
//	})
//
// Records go to stdout (text or json) when stdout is usable, to the systemd
// journal under the identifier "dawio" when journald is running, and always
// to an in-memory History that the HTTP API serves at /api/logs:
//
//	journalctl -t dawio MODULE=alsa
//
// Library code under pkg/ never imports this package. It takes a
// *slog.Logger through dawio.RunOptions and the binary passes
// GetLogger("dawio") in.
package logging
