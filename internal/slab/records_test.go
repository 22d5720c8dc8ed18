package slab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPtblRecordBucketPacking(t *testing.T) {
	var r ptblRecord

	r.setBucket(-1)
	require.Equal(t, uint32(0xE0000000), r.keyHighAndPageCount&ptblKeyBitsMask)
	require.Equal(t, uint32(0xE0000000), r.keyLowAndOffset&ptblKeyBitsMask)
	require.Equal(t, maxBucket, r.getBucket())

	var r2 ptblRecord
	r2.setBucket(0xFF)
	require.Equal(t, 0x3F, r2.getBucket())
}

func TestPtblRecordPageCountAndOffsetRoundTrip(t *testing.T) {
	var r ptblRecord
	r.setBucket(5)
	r.setPageCount(12345)
	r.setOffset(98765)

	require.Equal(t, 5, r.getBucket())
	require.Equal(t, uint32(12345), r.getPageCount())
	require.Equal(t, uint32(98765), r.getOffset())

	// Setting page_count/offset never touches the packed bucket bits.
	r.setPageCount(1)
	require.Equal(t, 5, r.getBucket())
}

func TestPtblRecordSettersTruncateToFieldWidth(t *testing.T) {
	var r ptblRecord
	r.setBucket(5)

	r.setPageCount(0xFFFFFFFF)
	require.Equal(t, uint32(0x1FFFFFFF), r.getPageCount())
	require.Equal(t, 5, r.getBucket(), "overflowing page_count must not disturb the shared bucket bits")

	r.setOffset(0xFFFFFFFF)
	require.Equal(t, uint32(0x1FFFFFFF), r.getOffset())
	require.Equal(t, 5, r.getBucket())
}

func TestKvRecordSizeAndSlotTruncate(t *testing.T) {
	var r kvRecord
	r.setSize(0xFFFFFFFFFFFFFFFF)
	require.Equal(t, uint64(0x00FFFFFFFFFFFFFF), r.getSize())

	r.setSlot(0xFFFFFFFFFFFFFFFF)
	require.Equal(t, uint64(0x03FFFFFFFFFFFFFF), r.getSlot())
}

func TestKvRecordFlagsTruncate(t *testing.T) {
	var r kvRecord
	r.setFlags(0xFFFF)
	require.Equal(t, uint8(0xFF), r.getFlags())
}

func TestKvRecordBucketTruncate(t *testing.T) {
	var r kvRecord
	r.setBucket(0xFFFF)
	require.Equal(t, 0x3F, r.getBucket())
}

func TestKvRecordSizeAndSlotRoundTrip(t *testing.T) {
	var r kvRecord
	r.setSize(123456789)
	r.setSlot(42)
	r.setFlags(7)
	r.setBucket(9)

	require.Equal(t, uint64(123456789), r.getSize())
	require.Equal(t, uint64(42), r.getSlot())
	require.Equal(t, uint8(7), r.getFlags())
	require.Equal(t, 9, r.getBucket())
	require.True(t, r.active())
}

func TestKvRecordInactiveWhenSizeZero(t *testing.T) {
	var r kvRecord
	r.setSlot(3)
	r.setBucket(2)
	require.False(t, r.active())
}
