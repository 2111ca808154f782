package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one log record kept in the History.
type Entry struct {
	Seq     uint64         `json:"seq"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Module  string         `json:"module"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// String renders e as one text line with sorted key=value attributes.
func (e Entry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s [%s] %s", e.Time.Format(time.RFC3339Nano), strings.ToUpper(e.Level), e.Module, e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

// History keeps the most recent entries in a fixed-size ring. Sequence
// numbers start at 1 and never repeat.
type History struct {
	mu   sync.RWMutex
	ring []Entry
	next uint64
}

// NewHistory creates a history holding up to size entries.
func NewHistory(size int) *History {
	return &History{ring: make([]Entry, size)}
}

// Append stores e, assigning its sequence number.
func (h *History) Append(e Entry) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	e.Seq = h.next
	h.ring[int((h.next-1)%uint64(len(h.ring)))] = e
	return e
}

// Since returns the retained entries with a sequence number above seq, in
// order.
func (h *History) Since(seq uint64) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	size := uint64(len(h.ring))
	first := uint64(1)
	if h.next > size {
		first = h.next - size + 1
	}
	first = max(first, seq+1)
	if first > h.next {
		return nil
	}
	out := make([]Entry, 0, h.next-first+1)
	for s := first; s <= h.next; s++ {
		out = append(out, h.ring[int((s-1)%size)])
	}
	return out
}

// Tail returns up to n of the newest entries, oldest first.
func (h *History) Tail(n int) []Entry {
	all := h.Since(0)
	if n >= 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int(min(h.next, uint64(len(h.ring))))
}

type historyHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newHistoryHandler(level slog.Leveler) *historyHandler {
	return &historyHandler{level: level}
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   levelName(r.Level),
		Module:  "main",
		Message: r.Message,
		Attrs:   map[string]any{},
	}
	add := func(a slog.Attr) bool {
		if a.Key == "module" && len(h.groups) == 0 {
			e.Module = a.Value.String()
			return true
		}
		flatten(e.Attrs, h.groups, a)
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	e = history.Append(e)
	if fn := entryListener(); fn != nil {
		fn(e)
	}
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &historyHandler{level: h.level, attrs: append(slices.Clip(h.attrs), attrs...), groups: h.groups}
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &historyHandler{level: h.level, attrs: h.attrs, groups: append(slices.Clip(h.groups), name)}
}

// flatten stores a under a dotted key, expanding groups.
func flatten(dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := append(slices.Clip(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flatten(dst, sub, ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
		} else if s, ok := a.Value.Any().(fmt.Stringer); ok {
			dst[key] = s.String()
		} else {
			dst[key] = a.Value.Any()
		}
	default:
		dst[key] = a.Value.Any()
	}
}
