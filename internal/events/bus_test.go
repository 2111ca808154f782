package events

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	var zero T
	return zero
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	got := make(chan StreamMsgEvent, 1)
	unsub := Subscribe(bus, func(e StreamMsgEvent) { got <- e })
	defer unsub()

	dev := dawio.DeviceID{Name: "Scarlett 2i2"}
	Publish(bus, StreamMsgEvent{StreamID: "main", Msg: dawio.AudioDeviceDisconnected(dev)})

	e := receive(t, got)
	if e.StreamID != "main" || e.Msg.Kind != dawio.MsgAudioDeviceDisconnected || e.Msg.Device != dev {
		t.Errorf("event = %+v", e)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()
	a := make(chan StreamStateEvent, 1)
	b := make(chan StreamStateEvent, 1)
	defer Subscribe(bus, func(e StreamStateEvent) { a <- e })()
	defer Subscribe(bus, func(e StreamStateEvent) { b <- e })()

	bus.Publish(StreamStateEvent{StreamID: "main", State: "running"})
	receive(t, a)
	receive(t, b)
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	got := make(chan StreamStatsEvent, 2)
	unsub := Subscribe(bus, func(e StreamStatsEvent) { got <- e })

	Publish(bus, StreamStatsEvent{StreamID: "main"})
	receive(t, got)
	unsub()

	Publish(bus, StreamStatsEvent{StreamID: "main"})
	select {
	case <-got:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventsAreTyped(t *testing.T) {
	bus := New()
	msgs := make(chan StreamMsgEvent, 1)
	changes := make(chan StreamChangedEvent, 1)
	defer Subscribe(bus, func(e StreamMsgEvent) { msgs <- e })()
	defer Subscribe(bus, func(e StreamChangedEvent) { changes <- e })()

	bus.Publish(StreamChangedEvent{StreamID: "main", Change: "block-size"})
	if e := receive(t, changes); e.Change != "block-size" {
		t.Errorf("change = %q", e.Change)
	}
	select {
	case e := <-msgs:
		t.Fatalf("message subscriber received %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := New()
	const publishers, each = 8, 50
	got := make(chan LogEntryEvent, publishers*each)
	defer Subscribe(bus, func(e LogEntryEvent) { got <- e })()

	var wg sync.WaitGroup
	for p := range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				bus.Publish(LogEntryEvent{Seq: uint64(p*each + i), Level: "info"})
			}
		}()
	}
	wg.Wait()
	for range publishers * each {
		receive(t, got)
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	defer SubscribeToChannel[ProfileReloadedEvent](bus, ch)()

	Publish(bus, ProfileReloadedEvent{Path: "first"})
	first := receive(t, (<-chan any)(ch)).(ProfileReloadedEvent)
	if first.Path != "first" {
		t.Fatalf("path = %q", first.Path)
	}

	for range 5 {
		Publish(bus, ProfileReloadedEvent{Path: "burst"})
	}
	time.Sleep(50 * time.Millisecond)
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want the channel capacity of 1", len(ch))
	}
}

func TestStreamMsgEventJSON(t *testing.T) {
	e := StreamMsgEvent{
		StreamID: "main",
		Msg:      dawio.AudioInPortNotFound("system:capture_9"),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"kind":"audio_in_port_not_found"`) ||
		!strings.Contains(string(data), `"name":"system:capture_9"`) {
		t.Errorf("json = %s", data)
	}
}
