// Package slab implements the size-class (slab) allocator: a key/value
// store backed directly by anonymously mapped OS pages, grouped into
// power-of-two size classes ("buckets") to keep fragmentation and metadata
// overhead bounded. The storage facade is split out into internal/sysmem
// so this package never imports golang.org/x/sys itself.
package slab

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/slabkv/internal/sysmem"
)

// SysContext configures a Database's view of the host. The zero value asks
// Open to query the real OS page size via sysmem.PageSize().
type SysContext struct {
	// PageSize overrides the detected OS page size. Tests use this to avoid
	// depending on the host's actual page size; production callers should
	// leave it zero.
	PageSize int
}

// Database is a single size-class allocator instance. It is not safe for
// concurrent use — serialization, if needed, belongs at the caller's edge
// (see server/slabkvwire for one way to do that over a network connection).
type Database struct {
	mem      *sysmem.Facade
	pageSize int

	ptblRecords []ptblRecord
	ptblCount   int

	kvRecords []kvRecord
	kvCount   int

	// generation increments whenever a page-table extension or bucket
	// change might have moved a previously returned View's backing slice.
	// View.Bytes panics if it notices its snapshot is stale.
	generation uint64
}

// Key is an opaque handle to a stored value, returned by Alloc and consumed
// by Free, Get and Set. The zero Key is index 0, the first key Alloc hands
// out on an empty Database.
type Key struct {
	index uint64
}

// Uint64 returns k's underlying key-record index, for callers (such as a
// wire protocol) that need to serialize a Key.
func (k Key) Uint64() uint64 { return k.index }

// KeyFromUint64 reconstructs a Key from a value previously obtained from
// Uint64. It performs no validation; an out-of-range or freed index is
// rejected the first time it is used, by Free/Get/Set returning
// ErrInvalidKey.
func KeyFromUint64(v uint64) Key { return Key{index: v} }

// Open creates a new, empty Database. It returns ErrUnsupportedPageSize if
// the host's page size is not 4096 bytes — the one hard-coded assumption
// this allocator makes rather than generalizing away.
func Open(sysCtx SysContext) (*Database, error) {
	pageSize := sysCtx.PageSize
	if pageSize == 0 {
		pageSize = sysmem.PageSize()
	}
	if pageSize != 4096 {
		return nil, fmt.Errorf("%sopen: %w (got %d)", logPrefix, ErrUnsupportedPageSize, pageSize)
	}

	db := &Database{
		mem:      sysmem.New(pageSize),
		pageSize: pageSize,
	}
	slog.Debug(logPrefix + "open")
	return db, nil
}

// Close releases every bucket's page mappings and bitmaps. The Database
// must not be used afterward.
func (db *Database) Close() {
	db.ptblFree()
	slog.Debug(logPrefix + "close")
}

// Alloc stores value under a fresh key tagged with flags, growing or
// creating buckets as needed, and returns the key.
func (db *Database) Alloc(flags uint8, value []byte) (Key, error) {
	size := uint64(len(value))
	if size == 0 || size > maxSize {
		return Key{}, fmt.Errorf("%salloc: %w", logPrefix, ErrInvalidSize)
	}

	bucket := bucketOf(size)
	slot, buf, err := db.slotAlloc(bucket)
	if err != nil {
		return Key{}, fmt.Errorf("%salloc: %w", logPrefix, err)
	}
	copy(buf, value)

	idx := db.kvAlloc(bucket, flags, slot, size)
	return Key{index: idx}, nil
}

// Free releases k's slot and key record. Get and Set on k after Free return
// ErrInvalidKey. A second Free of k returns nil while its inactive record is
// still in the table, and ErrInvalidKey once k was the tail record and has
// been removed.
func (db *Database) Free(k Key) error {
	if err := db.kvFree(k.index); err != nil {
		return fmt.Errorf("%sfree: %w", logPrefix, err)
	}
	return nil
}

// View is a snapshot reference to a stored value's backing bytes, valid
// until the next operation that might move it (any Alloc or Set that
// extends a bucket's page table). Prefer GetCopy when the value will
// outlive the next mutating call.
type View struct {
	data       []byte
	flags      uint8
	size       int
	bucket     int
	db         *Database
	generation uint64
}

// Bytes returns the value's bytes. It panics if the Database has performed
// a page remap since the View was obtained — reusing a stale View is a bug
// in the caller, not a recoverable runtime condition.
func (v View) Bytes() []byte {
	if v.generation != v.db.generation {
		panic("slab: stale View used after a page table remap invalidated it")
	}
	return v.data
}

// Flags returns the value's stored flags byte.
func (v View) Flags() uint8 { return v.flags }

// Size returns the value's stored length.
func (v View) Size() int { return v.size }

// Bucket returns the size-class index the value currently occupies.
func (v View) Bucket() int { return v.bucket }

// Get returns a View over k's current value without copying it.
func (db *Database) Get(k Key) (View, error) {
	r, err := db.kvGet(k.index)
	if err != nil {
		return View{}, fmt.Errorf("%sget: %w", logPrefix, err)
	}

	bucket := r.getBucket()
	slot := r.getSlot()
	size := r.getSize()

	buf, err := db.slotValue(bucket, slot)
	if err != nil {
		return View{}, fmt.Errorf("%sget: %w", logPrefix, err)
	}

	return View{
		data:       buf[:size],
		flags:      r.getFlags(),
		size:       int(size),
		bucket:     bucket,
		db:         db,
		generation: db.generation,
	}, nil
}

// GetCopy returns an independent copy of k's value, its flags, and the
// bucket it currently occupies. Unlike Get, the returned slice remains valid
// across later Alloc/Set calls.
func (db *Database) GetCopy(k Key) ([]byte, uint8, int, error) {
	v, err := db.Get(k)
	if err != nil {
		return nil, 0, 0, err
	}
	out := make([]byte, v.size)
	copy(out, v.data)
	return out, v.flags, v.bucket, nil
}

// Set replaces k's value: a slot in the new value's bucket is allocated and
// filled *before* the old slot is released, so a failure partway through
// never discards the previous value — the caller sees either the old value
// intact or an error, never a half-copy.
func (db *Database) Set(k Key, value []byte) error {
	size := uint64(len(value))
	if size == 0 || size > maxSize {
		return fmt.Errorf("%sset: %w", logPrefix, ErrInvalidSize)
	}

	r, err := db.kvGet(k.index)
	if err != nil {
		return fmt.Errorf("%sset: %w", logPrefix, err)
	}

	oldBucket := r.getBucket()
	oldSlot := r.getSlot()
	oldSize := r.getSize()
	newBucket := bucketOf(size)

	newSlot, buf, err := db.slotAlloc(newBucket)
	if err != nil {
		return fmt.Errorf("%sset: %w", logPrefix, err)
	}
	copy(buf, value)

	// The record is inactive only for the span of the bit swap below; no
	// caller can observe the intermediate state (the store is
	// single-threaded), it just guarantees the record never references both
	// slots at once.
	r.setSize(0)
	if err := db.slotFree(oldBucket, oldSlot); err != nil {
		_ = db.slotFree(newBucket, newSlot)
		r.setSize(oldSize)
		return fmt.Errorf("%sset: %w", logPrefix, err)
	}

	r.setBucket(uint64(newBucket))
	r.setSlot(newSlot)
	r.setSize(size)
	return nil
}
