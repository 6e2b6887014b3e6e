//go:build unix

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinnedAllocator backs host-side staging buffers with anonymous mmap
// pages locked into physical memory, so a cross-side copy never faults
// mid-transfer. When mlock is refused (common under tight RLIMIT_MEMLOCK)
// the mmap pages are returned unlocked.
type pinnedAllocator struct{}

func (pinnedAllocator) Name() string { return "pinned" }

func (pinnedAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrAllocationFailed
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrAllocationFailed, n, err)
	}
	if err := unix.Mlock(buf); err != nil {
		// Unlocked pages still work, they just may fault during copies.
		_ = err
	}
	return buf, nil
}

func (pinnedAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = unix.Munlock(buf)
	_ = unix.Munmap(buf)
}
