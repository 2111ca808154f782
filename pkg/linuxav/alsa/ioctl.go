//go:build linux

package alsa

import (
	"bytes"
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Errors returned by PCM transfers.
var (
	// ErrXrun reports an overrun or underrun. Call Prepare to recover.
	ErrXrun = errors.New("alsa: xrun")

	// ErrDisconnected reports that the device was unplugged.
	ErrDisconnected = errors.New("alsa: device disconnected")
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// transferError maps the errno of a PCM transfer to the package errors.
func transferError(err error) error {
	switch {
	case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ESTRPIPE), errors.Is(err, unix.EBADFD):
		return ErrXrun
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO), errors.Is(err, unix.EIO):
		return ErrDisconnected
	default:
		return err
	}
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
