package slab

import (
	"fmt"
	"log/slog"
)

// Page-table (bucket) manager: per-bucket lifecycle (create, search, extend,
// free) and the contiguous-free-run search over a bucket's occupancy
// bitmap. Three bitmap geometries exist depending on how many bits a
// logical page needs (WideByte B<=2, ExactByte B=3..5, Bit B>=6); they
// collapse here into two code paths — "whole bytes per page" (B<=5, where
// a page's free-ness is "every byte in its range is zero") and "sub-byte
// groups per page" (B>=6, where several pages share one byte) — since the
// byte-vs-word scan width is purely a performance detail, not an
// observable one.

const logPrefix = "slab: "

// ptblGet returns the ptblRecords index for bucket, or (-1,false) if no
// record exists yet for it.
func (db *Database) ptblGet(bucket int) (int, bool) {
	for i := range db.ptblRecords {
		r := &db.ptblRecords[i]
		if r.inUse && r.getBucket() == bucket {
			return i, true
		}
	}
	return -1, false
}

// ptblInit allocates a fresh OS page region and zeroed occupancy bitmap for
// a brand-new bucket record.
func (db *Database) ptblInit(rec *ptblRecord, pageCount int, bucket int) error {
	osPages := pageCount * osPagesPerLogicalPage(bucket)
	base, err := db.mem.PageAlloc(osPages)
	if err != nil {
		return fmt.Errorf("%sptbl_init(bucket=%d): %w", logPrefix, bucket, ErrOutOfMemory)
	}

	rec.base = base
	rec.usage = db.mem.HeapAlloc(usageLength(bucket, pageCount))
	rec.setBucket(bucket)
	rec.setPageCount(uint32(pageCount))
	rec.inUse = true

	slog.Debug(logPrefix+"ptbl_init", "bucket", bucket, "page_count", pageCount, "os_pages", osPages)
	return nil
}

// ptblAlloc ensures bucket exists and that nPages contiguous free logical
// pages are available, returning the base of that run and the bucket's
// ptblRecords index.
func (db *Database) ptblAlloc(bucket int, nPages int) ([]byte, int, error) {
	idx, ok := db.ptblGet(bucket)
	if !ok {
		db.ptblRecords = append(db.ptblRecords, ptblRecord{})
		idx = len(db.ptblRecords) - 1
		if err := db.ptblInit(&db.ptblRecords[idx], nPages, bucket); err != nil {
			db.ptblRecords = db.ptblRecords[:idx]
			return nil, -1, err
		}
		db.ptblCount = len(db.ptblRecords)
		db.generation++
		return db.ptblRecords[idx].base, idx, nil
	}

	rec := &db.ptblRecords[idx]
	pageCount := int(rec.getPageCount())

	if start, found := db.findFreeRun(rec, bucket, nPages, pageCount); found {
		return pageSlice(rec.base, bucket, start, db.pageSize), idx, nil
	}

	trailing := db.trailingFreeRun(rec, bucket, pageCount)
	newPageCount := pageCount + nPages - trailing

	newOSPages := newPageCount * osPagesPerLogicalPage(bucket)
	oldOSPages := pageCount * osPagesPerLogicalPage(bucket)
	newBase, err := db.mem.PageRealloc(rec.base, oldOSPages, newOSPages)
	if err != nil {
		return nil, -1, fmt.Errorf("%sptbl_alloc(bucket=%d): %w", logPrefix, bucket, ErrOutOfMemory)
	}
	rec.base = newBase

	newUsageLen := usageLength(bucket, newPageCount)
	if newUsageLen > len(rec.usage) {
		rec.usage = db.mem.HeapRealloc(rec.usage, len(rec.usage), newUsageLen)
	}
	rec.setPageCount(uint32(newPageCount))
	db.generation++

	slog.Debug(logPrefix+"ptbl_alloc extended bucket", "bucket", bucket, "old_page_count", pageCount, "new_page_count", newPageCount)

	startIndex := newPageCount - nPages
	return pageSlice(rec.base, bucket, startIndex, db.pageSize), idx, nil
}

// pageSlice returns the base byte region starting at logical page
// startIndex within a bucket's OS-mapped region.
func pageSlice(base []byte, bucket int, startIndex int, osPageSize int) []byte {
	off := startIndex * logicalPageBytes(bucket, osPageSize)
	return base[off:]
}

// pageFree reports whether logical page p in rec's occupancy bitmap is
// entirely unused, for the given bucket's geometry.
func pageFree(rec *ptblRecord, bucket int, p int) bool {
	if bucket <= 5 {
		bpp := bytesPerPage(bucket)
		start := p * bpp
		for i := 0; i < bpp; i++ {
			if rec.usage[start+i] != 0 {
				return false
			}
		}
		return true
	}

	bits := bitsPerPage(bucket)
	pagesPerByte := 8 / bits
	byteIdx := p / pagesPerByte
	groupIdx := p % pagesPerByte
	mask := byte((1 << uint(bits)) - 1)
	shift := uint(groupIdx * bits)
	return (rec.usage[byteIdx]>>shift)&mask == 0
}

// findFreeRun walks the occupancy bitmap in ascending logical-page order and
// returns the starting page index of the first contiguous free run of
// length >= nPages.
func (db *Database) findFreeRun(rec *ptblRecord, bucket int, nPages int, pageCount int) (int, bool) {
	runStart := -1
	runLen := 0
	for p := 0; p < pageCount; p++ {
		if pageFree(rec, bucket, p) {
			if runStart == -1 {
				runStart = p
			}
			runLen++
			if runLen >= nPages {
				return runStart, true
			}
		} else {
			runStart = -1
			runLen = 0
		}
	}
	return -1, false
}

// trailingFreeRun returns the length of the contiguous free run ending at
// the very last logical page, used to compute how many fresh pages an
// extension must add.
func (db *Database) trailingFreeRun(rec *ptblRecord, bucket int, pageCount int) int {
	n := 0
	for p := pageCount - 1; p >= 0; p-- {
		if !pageFree(rec, bucket, p) {
			break
		}
		n++
	}
	return n
}

// ptblFree tears down every bucket record: bitmap, then page region, then
// the records and key-record arrays themselves.
func (db *Database) ptblFree() {
	for i := range db.ptblRecords {
		rec := &db.ptblRecords[i]
		if rec.usage == nil {
			continue
		}
		db.mem.HeapFree(rec.usage)
		rec.usage = nil

		if rec.base != nil {
			bucket := rec.getBucket()
			osPages := int(rec.getPageCount()) * osPagesPerLogicalPage(bucket)
			if err := db.mem.PageFree(rec.base, osPages); err != nil {
				slog.Error(logPrefix+"ptbl_free: page_free failed", "bucket", bucket, "err", err)
			}
			rec.base = nil
		}
	}

	db.ptblRecords = nil
	db.ptblCount = 0
	db.kvRecords = nil
	db.kvCount = 0
}
