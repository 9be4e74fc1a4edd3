package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistogramBucketsAndMax(t *testing.T) {
	var h Histogram
	h.Observe(0)
	h.Observe(1)
	h.Observe(3)
	h.Observe(1000)

	snap := h.Snapshot()
	require.EqualValues(t, 4, snap.Observed)
	require.EqualValues(t, 1000, snap.MaxMs)
	require.Equal(t, int64(2), snap.Counts[0]) // 0ms and 1ms both fall in bucket 0
}

func TestHistogramOverflow(t *testing.T) {
	var h Histogram
	h.Observe(1 << 31)
	snap := h.Snapshot()
	var total int64
	for _, c := range snap.Counts {
		total += c
	}
	require.EqualValues(t, 1, total)
	require.Equal(t, int64(1), snap.Counts[Buckets])
}

func TestBatchSizes(t *testing.T) {
	var b BatchSizes
	b.Observe(0)
	b.Observe(3)
	b.Observe(999)

	snap := b.Snapshot()
	require.Equal(t, int64(1), snap[0])
	require.Equal(t, int64(1), snap[3])
	require.Equal(t, int64(1), snap[MaxTrackedBatch-1])
}
