package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/dawio/internal/api/models"
)

func (s *Server) streamInfo() (*models.StreamInfoResponse, error) {
	st := s.options.Stream.Status()
	if st.Info == nil {
		return nil, huma.Error409Conflict("Stream is not running")
	}
	return &models.StreamInfoResponse{Body: *st.Info}, nil
}

func (s *Server) registerStreamRoutes() {
	stream := s.options.Stream
	errs := []int{401, 409, 422, 501}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "Get Stream",
		Description: "Get the state, plan, stream info and counters of the stream",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.StreamResponse, error) {
		return &models.StreamResponse{Body: stream.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "change-ports",
		Method:      http.MethodPost,
		Path:        "/api/stream/ports",
		Summary:     "Change Audio Ports",
		Description: "Select device channels without restarting the stream",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      errs,
	}, func(ctx context.Context, input *models.PortsRequest) (*models.StreamInfoResponse, error) {
		if err := stream.ChangePorts(input.Body.Inputs, input.Body.Outputs); err != nil {
			return nil, changeError(err)
		}
		return s.streamInfo()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "change-jack-ports",
		Method:      http.MethodPost,
		Path:        "/api/stream/jack-ports",
		Summary:     "Change Jack Ports",
		Description: "Reconnect the stream to Jack system ports by name",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      errs,
	}, func(ctx context.Context, input *models.JackPortsRequest) (*models.StreamInfoResponse, error) {
		if err := stream.ChangeJackPorts(input.Body.Inputs, input.Body.Outputs); err != nil {
			return nil, changeError(err)
		}
		return s.streamInfo()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "change-block-size",
		Method:      http.MethodPost,
		Path:        "/api/stream/block-size",
		Summary:     "Change Block Size",
		Description: "Change the largest block handed to the process handler",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      errs,
	}, func(ctx context.Context, input *models.BlockSizeRequest) (*models.StreamInfoResponse, error) {
		if err := stream.ChangeBlockSize(input.Body.Frames); err != nil {
			return nil, changeError(err)
		}
		return s.streamInfo()
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "change-midi",
		Method:      http.MethodPost,
		Path:        "/api/stream/midi",
		Summary:     "Change MIDI Ports",
		Description: "Open and close MIDI ports of the running stream",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      errs,
	}, func(ctx context.Context, input *models.MidiPortsRequest) (*models.StreamInfoResponse, error) {
		if err := stream.ChangeMidi(models.ToConfig(input.Body.Inputs), models.ToConfig(input.Body.Outputs)); err != nil {
			return nil, changeError(err)
		}
		return s.streamInfo()
	})
}
