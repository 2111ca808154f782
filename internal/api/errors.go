package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/internal/systemd"
	"github.com/smazurov/dawio/pkg/dawio"
)

// changeError maps a refused stream change to an HTTP status.
func changeError(err error) error {
	if errors.Is(err, session.ErrNotRunning) {
		return huma.Error409Conflict("Stream is not running", err)
	}
	kind, ok := dawio.ChangeKind(err)
	if !ok {
		return huma.Error500InternalServerError("Stream change failed", err)
	}
	switch kind {
	case dawio.InvalidPort, dawio.InvalidBlockSize, dawio.InvalidMidiDevice:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case dawio.NotSupportedByBackend:
		return huma.Error501NotImplemented("Not supported by the stream's backend", err)
	case dawio.StreamClosed:
		return huma.Error409Conflict("Stream is closed", err)
	default:
		return huma.Error500InternalServerError("Stream change failed", err)
	}
}

func unitError(msg string, err error) error {
	if errors.Is(err, systemd.ErrUnitNotAllowed) {
		return huma.Error403Forbidden(err.Error())
	}
	return huma.Error500InternalServerError(msg, err)
}
