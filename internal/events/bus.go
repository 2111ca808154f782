// Package events is the controller-side event bus. Sessions publish what
// their streams report; the API, NATS and metrics layers subscribe.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of T.
func Publish[T Event](b *Bus, ev T) {
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers fn for events of type T and returns the unsubscribe
// function.
//
//	unsub := events.Subscribe(bus, func(e events.StreamMsgEvent) { ... })
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	return event.Subscribe(b.dispatcher, fn)
}

// Publish publishes any of the known event types. Unknown types are
// ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StreamMsgEvent:
		Publish(b, e)
	case StreamStateEvent:
		Publish(b, e)
	case StreamStatsEvent:
		Publish(b, e)
	case StreamChangedEvent:
		Publish(b, e)
	case ProfileReloadedEvent:
		Publish(b, e)
	case LogEntryEvent:
		Publish(b, e)
	}
}
