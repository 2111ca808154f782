package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/dawio/internal/api/models"
)

func (s *Server) registerSystemdRoutes() {
	units := s.options.Systemd
	if units == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-unit-status",
		Method:      http.MethodGet,
		Path:        "/api/systemd/{unit}/status",
		Summary:     "Audio Server Status",
		Description: "Get the state of an audio server unit (jack, pipewire, pipewire-pulse, wireplumber, pulseaudio)",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 403},
	}, func(ctx context.Context, input *models.UnitInput) (*models.SystemdUnitStatusResponse, error) {
		status, err := units.Status(ctx, input.Unit)
		if err != nil {
			return nil, unitError("Failed to get unit status", err)
		}
		return &models.SystemdUnitStatusResponse{Body: status}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-unit",
		Method:      http.MethodPost,
		Path:        "/api/systemd/{unit}/restart",
		Summary:     "Restart Audio Server",
		Description: "Restart an audio server unit. A running stream sees the server shut down.",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 403},
	}, func(ctx context.Context, input *models.UnitInput) (*models.SystemdUnitActionResponse, error) {
		if err := units.Restart(ctx, input.Unit); err != nil {
			return nil, unitError("Failed to restart unit", err)
		}
		unit := input.Unit
		if !strings.Contains(unit, ".") {
			unit += ".service"
		}
		s.logger.Info("Audio server restarted", "unit", unit)
		return &models.SystemdUnitActionResponse{
			Body: models.SystemdUnitAction{
				Unit:    unit,
				Action:  "restart",
				Success: true,
			},
		}, nil
	})
}
