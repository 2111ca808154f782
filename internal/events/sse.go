package events

// SubscribeToChannel forwards events of type T into ch without blocking
// the publisher; events that do not fit are dropped. huma's SSE handlers
// select on channels rather than taking callbacks.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return Subscribe(bus, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
