package downloader

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/windrift/drivefetch/internal/port"
)

// watchdog escalates a running task to a connection-lost failure when the
// host's connectivity signal flips offline, or stays unconfirmed past the
// timeout window while no network activity has been observed. It is started
// when the task starts and must be stopped on every terminal path.
type watchdog struct {
	conn    port.Connectivity
	timeout time.Duration
	poll    time.Duration
	onLost  func()

	lastActivity atomic.Int64 // unix nanos
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func newWatchdog(conn port.Connectivity, timeout, poll time.Duration, onLost func()) *watchdog {
	return &watchdog{
		conn:    conn,
		timeout: timeout,
		poll:    poll,
		onLost:  onLost,
		stopCh:  make(chan struct{}),
	}
}

// start launches the watchdog loop. No-op when the host exposes no
// connectivity signal.
func (w *watchdog) start() {
	if w.conn == nil || w.timeout <= 0 {
		return
	}
	w.touch()
	go w.loop()
}

// touch records observed network activity, deferring the unconfirmed-link
// timeout.
func (w *watchdog) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

// stop deregisters the watchdog. Idempotent; called on every terminal path.
func (w *watchdog) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *watchdog) loop() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			switch w.conn.Status() {
			case port.LinkOffline:
				w.onLost()
				return
			case port.LinkOnline:
				// Confirmed; nothing to do.
			case port.LinkUnknown:
				last := time.Unix(0, w.lastActivity.Load())
				if time.Since(last) > w.timeout {
					w.onLost()
					return
				}
			}
		}
	}
}
