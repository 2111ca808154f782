package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/dawio/internal/api/models"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/logging"
)

// LogEvent converts a history entry to its bus event.
func LogEvent(e logging.Entry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        e.Seq,
		Timestamp:  e.Time.Format(time.RFC3339Nano),
		Level:      e.Level,
		Module:     e.Module,
		Message:    e.Message,
		Attributes: e.Attrs,
	}
}

// registerLogRoutes registers the log history and streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Recent log entries, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		entries := []logging.Entry{}
		for _, e := range logging.GetHistory().Since(input.Since) {
			if input.Module == "" || e.Module == input.Module {
				entries = append(entries, e)
			}
		}
		if len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		return &models.LogsResponse{Body: models.LogsData{Entries: entries}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.options.Bus, eventCh)
		defer unsubscribe()

		var last uint64
		for _, entry := range logging.GetHistory().Since(0) {
			if err := send.Data(LogEvent(entry)); err != nil {
				return
			}
			last = entry.Seq
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				// Entries logged while the history was sent arrive twice
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq <= last {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
