package slab

import "fmt"

// Key-record table: assignment and reuse of key/value record slots. A
// freed slot is reused by scanning from the highest index downward and
// taking the first inactive record found, rather than the lowest. The
// live count only shrinks when the freed record is the current tail;
// freeing a record in the middle just marks it inactive for later reuse.

// kvAlloc assigns a key-record slot for a newly allocated value, reusing the
// highest-indexed freed record if one exists, and returns its index.
func (db *Database) kvAlloc(bucket int, flags uint8, slot uint64, size uint64) uint64 {
	for i := len(db.kvRecords) - 1; i >= 0; i-- {
		if !db.kvRecords[i].active() {
			r := &db.kvRecords[i]
			r.setSize(size)
			r.setFlags(uint64(flags))
			r.setBucket(uint64(bucket))
			r.setSlot(slot)
			return uint64(i)
		}
	}

	var r kvRecord
	r.setSize(size)
	r.setFlags(uint64(flags))
	r.setBucket(uint64(bucket))
	r.setSlot(slot)
	db.kvRecords = append(db.kvRecords, r)
	db.kvCount = len(db.kvRecords)
	return uint64(len(db.kvRecords) - 1)
}

// kvGet returns the active key record at index, or ErrInvalidKey if index is
// out of range or the record is not currently active.
func (db *Database) kvGet(index uint64) (*kvRecord, error) {
	if index >= uint64(len(db.kvRecords)) {
		return nil, fmt.Errorf("%skv_get: %w", logPrefix, ErrInvalidKey)
	}
	r := &db.kvRecords[index]
	if !r.active() {
		return nil, fmt.Errorf("%skv_get: %w", logPrefix, ErrInvalidKey)
	}
	return r, nil
}

// kvFree releases index's slot bit, zeroes its backing bytes, and marks the
// record inactive. Freeing an already-inactive record is a no-op success,
// not an error — only an out-of-range index is ErrInvalidKey. The record's
// array slot is only reclaimed (shrinking kv_count) when index is the
// current tail; freeing a record in the middle leaves a gap future kvAlloc
// calls may reuse. Because freeing the tail removes its record, a repeat
// free of that index is out of range and returns ErrInvalidKey.
func (db *Database) kvFree(index uint64) error {
	if index >= uint64(len(db.kvRecords)) {
		return fmt.Errorf("%skv_free: %w", logPrefix, ErrInvalidKey)
	}
	r := &db.kvRecords[index]
	if !r.active() {
		return nil
	}

	bucket := r.getBucket()
	slot := r.getSlot()

	if err := db.slotFree(bucket, slot); err != nil {
		return err
	}
	if buf, err := db.slotValue(bucket, slot); err == nil {
		for i := range buf {
			buf[i] = 0
		}
	}

	r.setSize(0)
	r.setFlags(0)
	r.setBucket(0)
	r.setSlot(0)

	if index == uint64(len(db.kvRecords)-1) {
		db.kvRecords = db.kvRecords[:index]
		db.kvCount = len(db.kvRecords)
		if db.kvCount == 0 {
			db.kvRecords = nil
		}
	}
	return nil
}
