package device

import (
	"slices"
	"testing"
)

func cpuDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := New(CPU)
	if err != nil {
		t.Fatalf("open cpu device: %v", err)
	}
	return dev
}

func TestRoamingHostIsAuthoritative(t *testing.T) {
	t.Parallel()

	r := RoamHost(cpuDevice(t), []int32{1, 2, 3})
	defer r.Release()

	if r.Side() != HostSide {
		t.Fatalf("side = %v, want host", r.Side())
	}
	host, err := r.Host()
	if err != nil {
		t.Fatalf("host view: %v", err)
	}
	if !slices.Equal(host, []int32{1, 2, 3}) {
		t.Fatalf("host view = %v", host)
	}
}

func TestRoamingCrossCopies(t *testing.T) {
	t.Parallel()

	r := RoamHost(cpuDevice(t), []float32{1.5, 2.5})
	defer r.Release()

	accel, err := r.Accel()
	if err != nil {
		t.Fatalf("accel view: %v", err)
	}
	if !slices.Equal(accel, []float32{1.5, 2.5}) {
		t.Fatalf("accel view = %v", accel)
	}

	// The round trip reads back the same values.
	r.SetAccel(accel)
	host, err := r.Host()
	if err != nil {
		t.Fatalf("host view: %v", err)
	}
	if !slices.Equal(host, []float32{1.5, 2.5}) {
		t.Fatalf("round trip = %v", host)
	}
}

func TestRoamingSetInvalidatesOtherSide(t *testing.T) {
	t.Parallel()

	dev := cpuDevice(t)
	r := RoamHost(dev, []int32{7, 8})
	defer r.Release()

	if _, err := r.Accel(); err != nil {
		t.Fatalf("accel view: %v", err)
	}

	// A new host span must win over the stale accel copy.
	r.SetHost([]int32{9, 10})
	accel, err := r.Accel()
	if err != nil {
		t.Fatalf("accel view: %v", err)
	}
	if !slices.Equal(accel, []int32{9, 10}) {
		t.Fatalf("accel view = %v after host update", accel)
	}
}

func TestRoamingEmpty(t *testing.T) {
	t.Parallel()

	r := Roam[int32](cpuDevice(t))
	if r.Len() != 0 {
		t.Fatalf("empty array has length %d", r.Len())
	}
	host, err := r.Host()
	if err != nil {
		t.Fatalf("host view of empty array: %v", err)
	}
	if len(host) != 0 {
		t.Fatalf("host view = %v", host)
	}
}

func TestPinnedAllocatorRoundTrip(t *testing.T) {
	t.Parallel()

	a := pinnedAllocator{}
	buf, err := a.Alloc(4096)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	for i := range buf {
		buf[i] = byte(i)
	}
	if buf[100] != 100 {
		t.Fatal("pinned memory not writable")
	}
	a.Free(buf)
}
