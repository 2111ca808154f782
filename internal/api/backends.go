package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/dawio/internal/api/models"
	"github.com/smazurov/dawio/pkg/dawio"
)

func (s *Server) registerBackendRoutes() {
	host := s.options.Host

	huma.Register(s.api, huma.Operation{
		OperationID: "list-backends",
		Method:      http.MethodGet,
		Path:        "/api/backends",
		Summary:     "List Audio Backends",
		Description: "Enumerate every audio backend of this platform with its devices",
		Tags:        []string{"backends"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.BackendsResponse, error) {
		out := &models.BackendsResponse{Body: models.BackendsData{Backends: []dawio.AudioBackendInfo{}}}
		for _, b := range host.AvailableAudioBackends() {
			info, err := host.EnumerateAudioBackend(ctx, b)
			if err != nil {
				return nil, huma.Error500InternalServerError("Enumeration failed", err)
			}
			out.Body.Backends = append(out.Body.Backends, info)
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-backend",
		Method:      http.MethodGet,
		Path:        "/api/backends/{backend}",
		Summary:     "Get Audio Backend",
		Description: "Enumerate one audio backend. Backends without a driver report not_installed.",
		Tags:        []string{"backends"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *models.BackendInput) (*models.BackendResponse, error) {
		b, err := dawio.ParseBackend(input.Backend)
		if err != nil {
			return nil, huma.Error404NotFound("Unknown backend "+input.Backend, err)
		}
		info, err := host.EnumerateAudioBackend(ctx, b)
		if err != nil {
			return nil, huma.Error500InternalServerError("Enumeration failed", err)
		}
		return &models.BackendResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-midi-backends",
		Method:      http.MethodGet,
		Path:        "/api/midi/backends",
		Summary:     "List MIDI Backends",
		Description: "Enumerate every MIDI backend of this platform with its ports",
		Tags:        []string{"backends"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.MidiBackendsResponse, error) {
		out := &models.MidiBackendsResponse{Body: models.MidiBackendsData{Backends: []dawio.MidiBackendInfo{}}}
		for _, b := range host.AvailableMidiBackends() {
			info, err := host.EnumerateMidiBackend(ctx, b)
			if err != nil {
				return nil, huma.Error500InternalServerError("Enumeration failed", err)
			}
			out.Body.Backends = append(out.Body.Backends, info)
		}
		return out, nil
	})
}
