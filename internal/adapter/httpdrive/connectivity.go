package httpdrive

import (
	"net/http"
	"sync"
	"time"

	"github.com/windrift/drivefetch/internal/port"
)

// Prober reports connectivity by probing the drive API host. Results are
// cached briefly so watchdog polls stay cheap.
type Prober struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	status  port.LinkStatus
	checked time.Time
	ttl     time.Duration
}

// Ensure Prober implements port.Connectivity
var _ port.Connectivity = (*Prober)(nil)

// NewProber creates a connectivity prober against the drive base URL.
func NewProber(baseURL string) *Prober {
	return &Prober{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
		ttl:     3 * time.Second,
	}
}

// Status returns the last known link state, refreshing it when stale.
func (p *Prober) Status() port.LinkStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checked) < p.ttl {
		return p.status
	}

	resp, err := p.client.Head(p.baseURL)
	p.checked = time.Now()
	if err != nil {
		p.status = port.LinkOffline
		return p.status
	}
	resp.Body.Close()
	p.status = port.LinkOnline
	return p.status
}
