package device

import (
	"fmt"
	"unsafe"
)

// Side names the authoritative residence of a RoamingArray.
type Side int

const (
	NoSide Side = iota
	HostSide
	AccelSide
)

// RoamingArray is a buffer that can live in host or accelerator memory and
// copies itself across on demand. Exactly one side is the source of truth;
// setting one side invalidates the other. Backing storage for the lazy
// side is allocated on first cross-side access and reused afterwards.
//
// Not safe for concurrent use; callers serialize.
type RoamingArray[T any] struct {
	dev  *Device
	side Side

	host  []T
	accel []T

	// Owned backing buffers, kept for Release. A span set directly via
	// SetHost/SetAccel is borrowed, not owned.
	hostOwned  []byte
	accelOwned []byte
}

// Roam creates an empty RoamingArray bound to a device.
func Roam[T any](dev *Device) *RoamingArray[T] {
	return &RoamingArray[T]{dev: dev}
}

// RoamHost creates a RoamingArray whose authoritative side is the given
// host span.
func RoamHost[T any](dev *Device, span []T) *RoamingArray[T] {
	r := Roam[T](dev)
	r.SetHost(span)
	return r
}

// SetHost declares the host span authoritative. The accelerator side is
// marked empty but its backing storage is kept for reuse.
func (r *RoamingArray[T]) SetHost(span []T) {
	r.host = span
	r.accel = nil
	r.side = HostSide
}

// SetAccel declares the accelerator span authoritative.
func (r *RoamingArray[T]) SetAccel(span []T) {
	r.accel = span
	r.host = nil
	r.side = AccelSide
}

// Side reports which side currently holds the data.
func (r *RoamingArray[T]) Side() Side { return r.side }

// Len returns the element count of the authoritative side.
func (r *RoamingArray[T]) Len() int {
	switch r.side {
	case HostSide:
		return len(r.host)
	case AccelSide:
		return len(r.accel)
	default:
		return 0
	}
}

// Host returns the host view, copying accelerator memory across first if
// the host side is empty. The copy is synchronous.
func (r *RoamingArray[T]) Host() ([]T, error) {
	if r.host == nil && len(r.accel) > 0 {
		span, err := r.ensureHost(len(r.accel))
		if err != nil {
			return nil, err
		}
		if err := r.dev.CopyToHost(asBytes(span), asBytes(r.accel)); err != nil {
			return nil, err
		}
		r.host = span
	}
	return r.host, nil
}

// Accel returns the accelerator view, copying host memory across first if
// the accelerator side is empty.
func (r *RoamingArray[T]) Accel() ([]T, error) {
	if r.accel == nil && len(r.host) > 0 {
		span, err := r.ensureAccel(len(r.host))
		if err != nil {
			return nil, err
		}
		if err := r.dev.CopyToAccel(asBytes(span), asBytes(r.host)); err != nil {
			return nil, err
		}
		r.accel = span
	}
	return r.accel, nil
}

// Release frees owned backing storage. The array is empty afterwards.
func (r *RoamingArray[T]) Release() {
	if r.hostOwned != nil {
		r.dev.HostAllocator().Free(r.hostOwned)
		r.hostOwned = nil
	}
	if r.accelOwned != nil {
		r.dev.AccelAllocator().Free(r.accelOwned)
		r.accelOwned = nil
	}
	r.host = nil
	r.accel = nil
	r.side = NoSide
}

func (r *RoamingArray[T]) ensureHost(n int) ([]T, error) {
	if span := spanOf[T](r.hostOwned); len(span) >= n {
		return span[:n], nil
	}
	if r.hostOwned != nil {
		r.dev.HostAllocator().Free(r.hostOwned)
		r.hostOwned = nil
	}
	buf, err := r.dev.HostAllocator().Alloc(n * elemSize[T]())
	if err != nil {
		return nil, fmt.Errorf("host side of roaming array: %w", err)
	}
	r.hostOwned = buf
	return spanOf[T](buf)[:n], nil
}

func (r *RoamingArray[T]) ensureAccel(n int) ([]T, error) {
	if span := spanOf[T](r.accelOwned); len(span) >= n {
		return span[:n], nil
	}
	if r.accelOwned != nil {
		r.dev.AccelAllocator().Free(r.accelOwned)
		r.accelOwned = nil
	}
	buf, err := r.dev.AccelAllocator().Alloc(n * elemSize[T]())
	if err != nil {
		return nil, fmt.Errorf("accel side of roaming array: %w", err)
	}
	r.accelOwned = buf
	return spanOf[T](buf)[:n], nil
}

func elemSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func spanOf[T any](buf []byte) []T {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), len(buf)/elemSize[T]())
}

func asBytes[T any](span []T) []byte {
	if len(span) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&span[0])), len(span)*elemSize[T]())
}
