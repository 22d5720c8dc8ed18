package slab

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// End-to-end walks through the public API, each one a full
// open/use/teardown story rather than a single-function check.

func TestScenarioAllocGetFreeSingleValue(t *testing.T) {
	db := newTestDB(t)

	payload := []byte("this is a test")[:12]
	k, err := db.Alloc(1, payload)
	require.NoError(t, err)

	v, err := db.Get(k)
	require.NoError(t, err)
	require.Equal(t, 12, v.Size())
	require.Equal(t, payload, v.Bytes())
	require.Equal(t, uint8(1), v.Flags())
	require.Equal(t, 0, v.Bucket())

	require.NoError(t, db.Free(k))
	_, err = db.Get(k)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestScenarioDenseKeysThenReverseFreeEmptiesBitmap(t *testing.T) {
	const maxPerBucket = 16

	for bucket := 0; bucket <= 5; bucket++ {
		t.Run(fmt.Sprintf("bucket%d", bucket), func(t *testing.T) {
			db := newTestDB(t)

			n := slotsPerPage(bucket)
			if n > maxPerBucket {
				n = maxPerBucket
			}

			value := make([]byte, slotSize(bucket))
			for i := range value {
				value[i] = byte(i)
			}

			keys := make([]Key, n)
			for i := 0; i < n; i++ {
				k, err := db.Alloc(0, value)
				require.NoError(t, err)
				require.Equal(t, uint64(i), k.Uint64(), "keys must be handed out densely")
				keys[i] = k
			}

			for i := n - 1; i >= 0; i-- {
				require.NoError(t, db.Free(keys[i]))
			}

			idx, ok := db.ptblGet(bucket)
			require.True(t, ok)
			for _, b := range db.ptblRecords[idx].usage {
				require.Zero(t, b, "bitmap must be all-free after every key is released")
			}
			require.Zero(t, db.kvCount)
		})
	}
}

func TestScenarioFreedKeysAreReusedBeforeGrowth(t *testing.T) {
	db := newTestDB(t)

	value := make([]byte, 128) // bucket 3
	keys := make([]Key, 20)
	for i := range keys {
		k, err := db.Alloc(0, value)
		require.NoError(t, err)
		require.Equal(t, uint64(i), k.Uint64())
		keys[i] = k
	}

	freed := map[uint64]bool{}
	for i := 0; i < 20; i += 2 {
		require.NoError(t, db.Free(keys[i]))
		freed[uint64(i)] = true
	}

	for i := 0; i < 10; i++ {
		k, err := db.Alloc(0, value)
		require.NoError(t, err)
		require.True(t, freed[k.Uint64()], "key %d should be a reused freed slot", k.Uint64())
		delete(freed, k.Uint64())
	}
	require.Empty(t, freed, "all ten freed slots should have been handed back out")
	require.Equal(t, 20, len(db.kvRecords))
}

func TestScenarioSetMovesValueAcrossBucketsAndClearsOldBit(t *testing.T) {
	db := newTestDB(t)

	k, err := db.Alloc(0, make([]byte, 16))
	require.NoError(t, err)

	v, err := db.Get(k)
	require.NoError(t, err)
	require.Equal(t, 0, v.Bucket())

	idx, ok := db.ptblGet(0)
	require.True(t, ok)
	oldSlot := db.kvRecords[k.Uint64()].getSlot()

	big := make([]byte, 5000)
	for i := range big {
		big[i] = byte(i % 253)
	}
	require.NoError(t, db.Set(k, big))

	v, err = db.Get(k)
	require.NoError(t, err)
	require.Equal(t, bucketOf(5000), v.Bucket())
	require.Equal(t, big, v.Bytes())

	rec := &db.ptblRecords[idx]
	require.Zero(t, rec.usage[oldSlot/8]&(1<<(oldSlot%8)), "old bucket-0 slot bit must be clear after the move")
}

func TestScenarioBucketNineBitmapAndExtension(t *testing.T) {
	db := newTestDB(t)

	_, idx, err := db.ptblAlloc(9, 10)
	require.NoError(t, err)
	rec := &db.ptblRecords[idx]
	require.Equal(t, uint32(10), rec.getPageCount())
	require.Equal(t, 2, len(rec.usage)) // 10 one-bit pages round up to 2 bytes

	for i := 0; i < 10; i++ {
		slot, _, err := db.slotAlloc(9)
		require.NoError(t, err)
		require.Equal(t, uint64(i), slot)
	}

	// Every logical page is occupied; the next slot has to extend the bucket.
	slot, _, err := db.slotAlloc(9)
	require.NoError(t, err)
	require.Equal(t, uint64(10), slot)
	rec = &db.ptblRecords[idx]
	require.Equal(t, uint32(11), rec.getPageCount())
	require.Equal(t, 2, len(rec.usage)) // 11 bits still fit in the same 2 bytes
}

func TestScenarioCloseReleasesEverything(t *testing.T) {
	db, err := Open(SysContext{PageSize: 4096})
	require.NoError(t, err)

	_, err = db.Alloc(0, []byte("a"))
	require.NoError(t, err)
	_, err = db.Alloc(0, make([]byte, 5000))
	require.NoError(t, err)

	db.Close()

	require.Zero(t, db.ptblCount)
	require.Zero(t, db.kvCount)
	require.Nil(t, db.ptblRecords)
	require.Nil(t, db.kvRecords)
}
