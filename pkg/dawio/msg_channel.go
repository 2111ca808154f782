package dawio

import (
	"context"
	"sync/atomic"
	"time"
)

type msgSlot struct {
	seq atomic.Uint64
	msg StreamMsg
}

// msgChannel is a bounded lock-free queue of StreamMsg. Any number of
// producers may push (the audio thread plus backend notification threads);
// exactly one consumer pops. Push never blocks and never allocates.
type msgChannel struct {
	mask  uint64
	slots []msgSlot

	_   [56]byte
	enq atomic.Uint64
	_   [56]byte
	deq atomic.Uint64

	sealed        atomic.Bool
	closedPending atomic.Bool
	terminated    atomic.Bool
	dropped       atomic.Uint64
}

func newMsgChannel(capacity int) *msgChannel {
	size := nextPowerOfTwo(uint32(max(capacity, 2)))
	c := &msgChannel{
		mask:  uint64(size - 1),
		slots: make([]msgSlot, size),
	}
	for i := range c.slots {
		c.slots[i].seq.Store(uint64(i))
	}
	return c
}

func (c *msgChannel) push(msg StreamMsg) bool {
	pos := c.enq.Load()
	var slot *msgSlot
	for {
		slot = &c.slots[pos&c.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos)
		if diff == 0 {
			if c.enq.CompareAndSwap(pos, pos+1) {
				break
			}
			pos = c.enq.Load()
		} else if diff < 0 {
			return false
		} else {
			pos = c.enq.Load()
		}
	}
	slot.msg = msg
	slot.seq.Store(pos + 1)
	return true
}

func (c *msgChannel) pop() (StreamMsg, bool) {
	pos := c.deq.Load()
	slot := &c.slots[pos&c.mask]
	if int64(slot.seq.Load())-int64(pos+1) < 0 {
		return StreamMsg{}, false
	}
	msg := slot.msg
	slot.msg = StreamMsg{}
	slot.seq.Store(pos + c.mask + 1)
	c.deq.Store(pos + 1)
	return msg, true
}

func (c *msgChannel) empty() bool {
	pos := c.deq.Load()
	return int64(c.slots[pos&c.mask].seq.Load())-int64(pos+1) < 0
}

// MsgProducer is the sending end of a stream's message channel. It is
// handed to adapters; user code only sees the MsgConsumer.
type MsgProducer struct {
	ch *msgChannel
}

// TryPush enqueues msg. It returns false and counts a drop when the channel
// is full or already sealed by Closed.
func (p MsgProducer) TryPush(msg StreamMsg) bool {
	if p.ch.sealed.Load() || !p.ch.push(msg) {
		p.ch.dropped.Add(1)
		return false
	}
	return true
}

// Dropped returns the number of messages dropped so far.
func (p MsgProducer) Dropped() uint64 {
	return p.ch.dropped.Load()
}

// pushClosed seals the channel with the terminal message. If the channel is
// full, Closed is delivered by the consumer once the queue drains.
func (p MsgProducer) pushClosed() {
	if p.ch.sealed.Swap(true) {
		return
	}
	if !p.ch.push(ClosedMsg()) {
		p.ch.closedPending.Store(true)
	}
}

// MsgConsumer is the receiving end of a stream's message channel. It must be
// used from a single goroutine.
type MsgConsumer struct {
	ch *msgChannel
}

// Capacity returns the channel capacity.
func (c *MsgConsumer) Capacity() int {
	return len(c.ch.slots)
}

// IsEmpty reports whether no message is ready.
func (c *MsgConsumer) IsEmpty() bool {
	if c.ch.terminated.Load() {
		return true
	}
	return c.ch.empty() && !c.ch.closedPending.Load()
}

// Pop returns the next message. Nothing is returned after Closed.
func (c *MsgConsumer) Pop() (StreamMsg, bool) {
	if c.ch.terminated.Load() {
		return StreamMsg{}, false
	}
	msg, ok := c.ch.pop()
	if !ok {
		if c.ch.closedPending.CompareAndSwap(true, false) {
			c.ch.terminated.Store(true)
			return ClosedMsg(), true
		}
		return StreamMsg{}, false
	}
	if msg.Kind == MsgClosed {
		c.ch.terminated.Store(true)
	}
	return msg, true
}

// PopEach calls fn for up to limit messages (limit <= 0 means no limit),
// stopping early when fn returns false or the queue drains. It returns the
// number of messages handed to fn.
func (c *MsgConsumer) PopEach(fn func(StreamMsg) bool, limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		msg, ok := c.Pop()
		if !ok {
			break
		}
		n++
		if !fn(msg) {
			break
		}
	}
	return n
}

// Closed reports whether Closed has been consumed.
func (c *MsgConsumer) Closed() bool {
	return c.ch.terminated.Load()
}

// Wait returns a channel that yields messages as they arrive. The channel is
// closed after Closed is delivered or ctx is done. Wait takes over the
// consumer; do not call Pop concurrently.
func (c *MsgConsumer) Wait(ctx context.Context) <-chan StreamMsg {
	out := make(chan StreamMsg)
	go func() {
		defer close(out)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			for {
				msg, ok := c.Pop()
				if !ok {
					break
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
				if msg.Kind == MsgClosed {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// NewMsgChannel creates a message channel with at least capacity slots.
// Backends normally get theirs from Run; this is exported for adapter tests.
func NewMsgChannel(capacity int) (MsgProducer, *MsgConsumer) {
	ch := newMsgChannel(capacity)
	return MsgProducer{ch: ch}, &MsgConsumer{ch: ch}
}

func nextPowerOfTwo(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
