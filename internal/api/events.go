package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/metrics/exporters"
)

func streamEventTypes() map[string]any {
	types := map[string]any{
		"stream-msg":       events.StreamMsgEvent{},
		"stream-state":     events.StreamStateEvent{},
		"stream-changed":   events.StreamChangedEvent{},
		"profile-reloaded": events.ProfileReloadedEvent{},
	}
	maps.Copy(types, exporters.EventTypes())
	return types
}

// currentState describes the stream as a state event, sent first on every
// connection.
func (s *Server) currentState() events.StreamStateEvent {
	st := s.options.Stream.Status()
	ev := events.StreamStateEvent{
		StreamID:  st.ID,
		State:     st.State,
		Error:     st.Error,
		Timestamp: time.Now(),
	}
	if st.Info != nil {
		ev.Backend = st.Info.Backend
		ev.SampleRate = st.Info.SampleRate
	}
	return ev
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Stream messages, lifecycle changes, reconfigurations, profile reloads and counters",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, streamEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		bus := s.options.Bus
		eventCh := make(chan any, 64)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamMsgEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamStateEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamChangedEvent](bus, eventCh),
			events.SubscribeToChannel[events.ProfileReloadedEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamStatsEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(s.currentState()); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
