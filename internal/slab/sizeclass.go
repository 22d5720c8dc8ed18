package slab

// Bucket math: a bucket (size class) B holds values up to
// slotSize(B) = 1<<(4+B) bytes. Bucket 0 covers 1..16 bytes, bucket 1 covers
// 17..32, and so on.

// maxBucket is the largest bucket index this implementation supports
// (bucket_id is a 6-bit field, so 0..63 is representable, but slot sizes
// above bucket 40 would need more memory than any real machine has; 63 is
// kept as the hard field-width ceiling).
const maxBucket = 63

// bucketOf returns the smallest B >= 0 such that slotSize(B) >= size.
// bucketOf(0) and bucketOf(1..16) both yield 0; callers reject size==0
// with ErrInvalidSize before this is ever consulted for allocation
// purposes.
func bucketOf(size uint64) int {
	if size <= 16 {
		return 0
	}
	// Subtract 1 so that exact powers of two (17->32 boundary etc.) land in
	// the right bucket, then count how many doublings above 16 are needed.
	n := size - 1
	b := 0
	for n >= 16 {
		n >>= 1
		b++
	}
	if b > maxBucket {
		b = maxBucket
	}
	return b
}

// slotSize returns the size in bytes of a single slot in bucket B.
func slotSize(bucket int) uint64 {
	return 1 << (4 + uint(bucket))
}

// logicalPageBytes returns the number of bytes one logical page occupies for
// the given bucket, given the host's OS page size. For bucket <= 8 a
// logical page is exactly one OS page; for larger buckets a logical page is
// 1<<(bucket-8) OS pages, so it always holds exactly one slot.
func logicalPageBytes(bucket int, osPageSize int) int {
	if bucket <= 8 {
		return osPageSize
	}
	return osPageSize << uint(bucket-8)
}

// osPagesPerLogicalPage returns how many OS pages back one logical page of
// the given bucket — the (bucket <= 8) ? n : n<<(bucket-8) expression that
// recurs throughout the page-table manager.
func osPagesPerLogicalPage(bucket int) int {
	if bucket <= 8 {
		return 1
	}
	return 1 << uint(bucket-8)
}

// bitsPerPage returns how many occupancy-bitmap bits one logical page
// contributes for the given bucket: 256 at bucket 0, halving down to 1 at
// bucket 8 and beyond.
func bitsPerPage(bucket int) int {
	if bucket <= 8 {
		return 256 >> uint(bucket)
	}
	return 1
}

// slotsPerPage returns how many value slots one logical page holds: 256 at
// bucket 0, halving to 1 at bucket 8 and beyond. Numerically the same as
// bitsPerPage — one occupancy bit always means one slot.
func slotsPerPage(bucket int) int {
	return bitsPerPage(bucket)
}

// bytesPerPage returns the byte footprint of bitsPerPage(bucket), with a
// floor of 1 byte (buckets >= 6 share a byte across multiple pages, so this
// is only meaningful as "bytes per page" for bucket <= 5).
func bytesPerPage(bucket int) int {
	bits := bitsPerPage(bucket)
	if bits < 8 {
		return 1
	}
	return bits / 8
}

// usageLength returns the total byte length of the occupancy bitmap for a
// bucket with the given number of logical pages.
func usageLength(bucket int, pageCount int) int {
	if pageCount <= 0 {
		return 0
	}
	if bucket <= 5 {
		return bytesPerPage(bucket) * pageCount
	}
	bits := bitsPerPage(bucket)
	totalBits := pageCount * bits
	return (totalBits + 7) / 8
}
