package dawio

import (
	"errors"
	"slices"
	"testing"
)

func TestMidiBufferPushRaw(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
		wantLen int
	}{
		{"note on", []byte{0x90, 60, 100}, nil, 1},
		{"eight bytes", make([]byte, 8), nil, 1},
		{"nine bytes", make([]byte, 9), &EventTooLongError{Len: 9}, 0},
		{"empty", []byte{}, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMidiBuffer(4)
			err := b.PushRaw(3, tt.data)
			var tooLong *EventTooLongError
			if tt.wantErr != nil {
				if !errors.As(err, &tooLong) || tooLong.Len != 9 {
					t.Fatalf("err = %v, want EventTooLong(9)", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Len() != tt.wantLen {
				t.Errorf("len = %d, want %d", b.Len(), tt.wantLen)
			}
		})
	}
}

func TestMidiBufferOversizedLeavesBufferUnchanged(t *testing.T) {
	b := NewMidiBuffer(4)
	if err := b.PushRaw(0, []byte{0xB0, 7, 100}); err != nil {
		t.Fatal(err)
	}
	before := slices.Clone(b.Events())

	err := b.PushRaw(1, []byte{0xF0, 1, 2, 3, 4, 5, 6, 7, 0xF7})
	var tooLong *EventTooLongError
	if !errors.As(err, &tooLong) || tooLong.Len != 9 {
		t.Fatalf("err = %v, want EventTooLong(9)", err)
	}
	if !slices.Equal(b.Events(), before) {
		t.Errorf("buffer changed: %v", b.Events())
	}
}

func TestMidiBufferFull(t *testing.T) {
	b := NewMidiBuffer(2)
	for i := range 2 {
		if err := b.PushRaw(uint32(i), []byte{0x80, 60, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.PushRaw(2, []byte{0x80, 60, 0}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
	if b.Len() != 2 || b.Cap() != 2 {
		t.Errorf("len/cap = %d/%d", b.Len(), b.Cap())
	}
	b.Clear()
	if !b.IsEmpty() {
		t.Error("Clear left events behind")
	}
}

func TestMidiBufferExtendAllOrNothing(t *testing.T) {
	b := NewMidiBuffer(3)
	ev, _ := NewRawMidi(0, []byte{0x90, 1, 2})
	if err := b.ExtendFromSlice([]RawMidi{ev, ev}); err != nil {
		t.Fatal(err)
	}
	if err := b.ExtendFromSlice([]RawMidi{ev, ev}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}
}

func TestMidiBufferClearAndCopyFromTruncates(t *testing.T) {
	src := NewMidiBuffer(4)
	for i := range 4 {
		_ = src.PushRaw(uint32(i), []byte{0x90, byte(i), 1})
	}
	dst := NewMidiBuffer(2)
	_ = dst.PushRaw(9, []byte{0xFE})

	dst.ClearAndCopyFrom(src)
	if dst.Len() != 2 {
		t.Fatalf("len = %d, want 2", dst.Len())
	}
	if dst.Events()[1].DeltaFrames != 1 {
		t.Errorf("second event delta = %d, want 1", dst.Events()[1].DeltaFrames)
	}
}

func TestRawMidiBytes(t *testing.T) {
	ev, err := NewRawMidi(12, []byte{0x90, 64, 127})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ev.Bytes(), []byte{0x90, 64, 127}) || ev.DeltaFrames != 12 {
		t.Errorf("event = %+v", ev)
	}
	if _, err := NewRawMidi(0, make([]byte, 9)); err == nil {
		t.Error("NewRawMidi accepted 9 bytes")
	}
}

func TestMidiBufferPushDoesNotAllocate(t *testing.T) {
	b := NewMidiBuffer(64)
	data := []byte{0x90, 60, 100}
	allocs := testing.AllocsPerRun(100, func() {
		b.Clear()
		for range 32 {
			_ = b.PushRaw(0, data)
		}
	})
	if allocs != 0 {
		t.Errorf("PushRaw allocated %.1f times per run", allocs)
	}
}
