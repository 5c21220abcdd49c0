package downloader

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTable_MeanAggregate(t *testing.T) {
	var got []float64
	table := newProgressTable(2, func(f float64) { got = append(got, f) })

	table.update(0, 0.5)
	table.update(1, 1)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.25, got[0], 0.001)
	assert.InDelta(t, 0.75, got[1], 0.001)
}

func TestProgressTable_MonotonicPerSlot(t *testing.T) {
	var got []float64
	table := newProgressTable(1, func(f float64) { got = append(got, f) })

	table.update(0, 0.6)
	table.update(0, 0.4) // late lower value, dropped
	table.update(0, 0.6) // no change, dropped
	table.update(0, 0.9)

	assert.Equal(t, []float64{0.6, 0.9}, got)
}

func TestProgressTable_ClampsOvershoot(t *testing.T) {
	var got []float64
	table := newProgressTable(1, func(f float64) { got = append(got, f) })

	table.slot(0)(1.7)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0], 0.001)
}

func TestProgressTable_NilEmit(t *testing.T) {
	table := newProgressTable(1, nil)
	table.update(0, 0.5) // must not panic
}

func TestProgressReader_ReportsBytesAndFraction(t *testing.T) {
	var deltas []int64
	var fractions []float64

	pr := &progressReader{
		reader:     bytes.NewReader(make([]byte, 100)),
		total:      100,
		onProgress: func(f float64) { fractions = append(fractions, f) },
		onBytes:    func(d int64) { deltas = append(deltas, d) },
	}

	n, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)

	var sum int64
	for _, d := range deltas {
		sum += d
	}
	assert.Equal(t, int64(100), sum)
	require.NotEmpty(t, fractions)
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 0.001)
}

func TestProgressReader_ClampsWhenTotalUnderstated(t *testing.T) {
	var last float64
	pr := &progressReader{
		reader:     bytes.NewReader(make([]byte, 100)),
		total:      50, // server lied about the length
		onProgress: func(f float64) { last = f },
	}

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, last, 0.001)
}
