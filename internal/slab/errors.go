package slab

import "errors"

// Sentinel error kinds surfaced to callers. They are compared with
// errors.Is; wrapping call sites add operation context with
// fmt.Errorf("slab: %s: %w", ...).
var (
	// ErrOutOfMemory is returned when the OS refuses to map or resize a
	// bucket's page region, or the heap allocator fails.
	ErrOutOfMemory = errors.New("slab: out of memory")

	// ErrInvalidKey is returned when a key is out of range or refers to an
	// inactive (freed) record.
	ErrInvalidKey = errors.New("slab: invalid key")

	// ErrInvalidSize is returned when a value's size is zero or exceeds the
	// 56-bit size field.
	ErrInvalidSize = errors.New("slab: invalid size")

	// ErrCorrupt indicates a key referencing a bucket that does not exist.
	// Only reachable via external tampering with the records; treated as a
	// bug, never produced by the public API on its own.
	ErrCorrupt = errors.New("slab: corrupt database")

	// ErrUnsupportedPageSize is returned by Open when the host page size is
	// not 4096, the one hard-coded numerical assumption this allocator
	// makes.
	ErrUnsupportedPageSize = errors.New("slab: unsupported system page size, want 4096")
)

// maxSize is the largest value size representable in the 56-bit size field.
const maxSize = (1 << 56) - 1
