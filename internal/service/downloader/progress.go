package downloader

import (
	"io"
	"sync"

	"github.com/windrift/drivefetch/internal/port"
)

// progressTable aggregates per-item fractional progress into one overall
// fraction (the mean). Updates arrive concurrently from in-flight item
// downloads, so the slots are guarded by a mutex.
type progressTable struct {
	mu        sync.Mutex
	fractions []float64
	emit      port.ProgressFunc
}

func newProgressTable(n int, emit port.ProgressFunc) *progressTable {
	return &progressTable{
		fractions: make([]float64, n),
		emit:      emit,
	}
}

// update records item i's progress and emits the new aggregate. Progress is
// monotonic per slot; late lower values are ignored.
func (t *progressTable) update(i int, f float64) {
	if f > 1 {
		f = 1
	}
	t.mu.Lock()
	if f <= t.fractions[i] {
		t.mu.Unlock()
		return
	}
	t.fractions[i] = f
	var sum float64
	for _, v := range t.fractions {
		sum += v
	}
	agg := sum / float64(len(t.fractions))
	t.mu.Unlock()

	if t.emit != nil {
		t.emit(agg)
	}
}

// slot returns a ProgressFunc bound to item i.
func (t *progressTable) slot(i int) port.ProgressFunc {
	return func(f float64) { t.update(i, f) }
}

// byteCounter aggregates byte deltas from concurrent streams into one
// cumulative count. Emission happens under the same mutex, so the caller's
// observer sees deltas serialized and needs no locking of its own.
type byteCounter struct {
	mu    sync.Mutex
	total int64
	emit  port.ByteProgressFunc
}

func (c *byteCounter) add(delta int64) {
	if delta <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += delta
	if c.emit != nil {
		c.emit(delta)
	}
}

func (c *byteCounter) sum() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// progressReader relays byte-level progress as a stream is consumed and
// feeds the connectivity watchdog's activity signal.
type progressReader struct {
	reader     io.Reader
	total      int64
	read       int64
	onProgress port.ProgressFunc
	onBytes    port.ByteProgressFunc
	wd         *watchdog
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.wd != nil {
			r.wd.touch()
		}
		if r.onBytes != nil {
			r.onBytes(int64(n))
		}
		if r.onProgress != nil && r.total > 0 {
			f := float64(r.read) / float64(r.total)
			if f > 1 {
				f = 1
			}
			r.onProgress(f)
		}
	}
	return n, err
}
