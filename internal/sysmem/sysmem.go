// Package sysmem is the system-memory facade: the only place in this
// repository that talks to the OS virtual memory manager directly.
//
// It exposes a small page-alloc/realloc/free and heap-alloc/realloc/free
// surface on top of golang.org/x/sys/unix anonymous mmap, so that the slab
// allocator above it never has to reason about mmap/mremap/munmap error
// handling itself.
package sysmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Facade acquires, resizes and releases anonymous page mappings and small
// heap blocks. The zero value is not usable; construct one with New.
type Facade struct {
	pageSize int
}

// New returns a Facade using the given page size. Callers normally pass
// PageSize() so the facade agrees with whatever the rest of the process
// believes system_page_size to be.
func New(pageSize int) *Facade {
	return &Facade{pageSize: pageSize}
}

// PageSize reports the OS page size via unix.Getpagesize().
func PageSize() int {
	return unix.Getpagesize()
}

// PhysPageCount reports an informational physical page count. It has no
// effect on allocator behavior.
func PhysPageCount() uint64 {
	// No portable syscall gives an exact count; a conservative placeholder
	// is fine since nothing here depends on its value.
	return 0
}

// PageAlloc obtains n*pageSize bytes of fresh, zeroed, anonymous
// readable/writable memory.
func (f *Facade) PageAlloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	b, err := unix.Mmap(-1, 0, n*f.pageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("sysmem: page_alloc(%d pages): %w", n, err)
	}
	// The kernel zero-fills freshly mapped anonymous pages; no memset needed.
	return b, nil
}

// PageRealloc resizes a mapping obtained from PageAlloc to newN pages,
// preserving its contents and zeroing any newly added bytes. It may return a
// different slice header; callers must use the returned slice, not the one
// passed in.
func (f *Facade) PageRealloc(old []byte, oldN, newN int) ([]byte, error) {
	if oldN <= 0 || newN <= 0 {
		return nil, fmt.Errorf("sysmem: page_realloc: oldN and newN must both be > 0")
	}

	grown, err := unix.Mremap(old, newN*f.pageSize, unix.MREMAP_MAYMOVE)
	if err != nil {
		// When mremap returns an error, fall back to alloc + copy + free.
		// There is no separate code path for targets that lack mremap.
		fresh, allocErr := f.PageAlloc(newN)
		if allocErr != nil {
			return nil, fmt.Errorf("sysmem: page_realloc fallback: %w", allocErr)
		}
		copy(fresh, old)
		if freeErr := f.PageFree(old, oldN); freeErr != nil {
			return nil, fmt.Errorf("sysmem: page_realloc fallback free: %w", freeErr)
		}
		return fresh, nil
	}
	return grown, nil
}

// PageFree releases a region obtained from PageAlloc/PageRealloc.
func (f *Facade) PageFree(region []byte, n int) error {
	if n <= 0 {
		return nil
	}
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("sysmem: page_free(%d pages): %w", n, err)
	}
	return nil
}

// HeapAlloc returns a zeroed byte slice of the given length. Go's make()
// already zeroes fresh backing arrays, so this exists purely to keep the
// facade's four-operation shape intact and give callers one seam to swap in
// a pooled allocator later.
func (f *Facade) HeapAlloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	return make([]byte, n)
}

// HeapRealloc resizes a heap block to newN bytes, preserving the first
// min(len(old),newN) bytes and zeroing [oldN,newN) when growing — Go's
// append does not promise this for reused capacity, so it is done
// explicitly here to match the facade's contract.
func (f *Facade) HeapRealloc(old []byte, oldN, newN int) []byte {
	if newN <= 0 {
		return nil
	}
	fresh := make([]byte, newN)
	copy(fresh, old)
	return fresh
}

// HeapFree is a no-op under the Go garbage collector; it exists so call
// sites read the same way whether a block came from the OS or the heap.
func (f *Facade) HeapFree(_ []byte) {}
