package backend

import (
	"math"
	"net/url"
	"time"
)

const ewmaAlpha = 0.2

// Config describes one configured upstream.
type Config struct {
	ID     string
	URL    *url.URL
	Weight int
}

// Backend is the mutable state of one upstream. It is not safe for
// concurrent use; the registry serializes every access.
type Backend struct {
	id     string
	url    *url.URL
	weight int

	status  Status
	enabled bool

	activeConnections int
	totalRequests     int64
	totalErrors       int64

	failCount    int
	successCount int

	responseTimeMs  int64
	hasResponseTime bool

	lastChecked time.Time
}

// State is the read-only view of a backend exposed to callers. The
// consecutive probe counters stay internal.
type State struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	Weight            int        `json:"weight"`
	Status            Status     `json:"status"`
	Enabled           bool       `json:"enabled"`
	ActiveConnections int        `json:"activeConnections"`
	TotalRequests     int64      `json:"totalRequests"`
	TotalErrors       int64      `json:"totalErrors"`
	ResponseTimeMs    int64      `json:"responseTimeMs"`
	LastChecked       *time.Time `json:"lastChecked"`
}

// New creates a backend that starts healthy, enabled and with zeroed counters.
func New(cfg Config) *Backend {
	return &Backend{
		id:      cfg.ID,
		url:     cfg.URL,
		weight:  cfg.Weight,
		status:  StatusHealthy,
		enabled: true,
	}
}

func (b *Backend) ID() string { return b.id }

// URL returns the upstream endpoint. It never changes after construction.
func (b *Backend) URL() *url.URL { return b.url }

// Weight is carried through from configuration; no selection algorithm reads it.
func (b *Backend) Weight() int { return b.weight }

func (b *Backend) Status() Status { return b.status }

func (b *Backend) Enabled() bool { return b.enabled }

// Available reports whether the backend may receive new requests.
func (b *Backend) Available() bool {
	return b.status == StatusHealthy && b.enabled
}

func (b *Backend) ActiveConnections() int { return b.activeConnections }

func (b *Backend) TotalRequests() int64 { return b.totalRequests }

func (b *Backend) TotalErrors() int64 { return b.totalErrors }

func (b *Backend) FailCount() int { return b.failCount }

func (b *Backend) SuccessCount() int { return b.successCount }

// ResponseTimeMs returns the smoothed latency of successful requests, 0 until
// the first one completes.
func (b *Backend) ResponseTimeMs() int64 { return b.responseTimeMs }

// LastChecked returns the time of the most recent probe and false if the
// backend has never been probed.
func (b *Backend) LastChecked() (time.Time, bool) {
	return b.lastChecked, !b.lastChecked.IsZero()
}

// SetEnabled flips the operator switch. Counters and health are left alone.
func (b *Backend) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// Begin records a request being handed to this backend.
func (b *Backend) Begin() {
	b.activeConnections++
	b.totalRequests++
}

// End records the completion of a request. Only successful requests feed the
// response time average.
func (b *Backend) End(elapsed time.Duration, success bool) {
	if b.activeConnections > 0 {
		b.activeConnections--
	}

	if !success {
		return
	}

	sample := elapsed.Milliseconds()
	if !b.hasResponseTime {
		b.responseTimeMs = sample
		b.hasResponseTime = true
		return
	}
	// ewma = (1 - α) * ewma + α * latest
	b.responseTimeMs = int64(math.Round((1-ewmaAlpha)*float64(b.responseTimeMs) + ewmaAlpha*float64(sample)))
}

// RecordError counts a failed forward. The connection slot is released by End.
func (b *Backend) RecordError() {
	b.totalErrors++
}

// RecordProbe feeds one probe outcome into the health state machine and
// reports whether the status changed.
func (b *Backend) RecordProbe(ok bool, at time.Time, th Thresholds) (changed bool) {
	b.lastChecked = at

	if ok {
		b.failCount = 0
		b.successCount++
		if b.status == StatusUnhealthy && b.successCount >= th.Healthy {
			b.status = StatusHealthy
			return true
		}
		return false
	}

	b.successCount = 0
	b.failCount++
	if b.status == StatusHealthy && b.failCount >= th.Unhealthy {
		b.status = StatusUnhealthy
		return true
	}
	return false
}

// Snapshot copies the externally visible fields.
func (b *Backend) Snapshot() State {
	s := State{
		ID:                b.id,
		Weight:            b.weight,
		Status:            b.status,
		Enabled:           b.enabled,
		ActiveConnections: b.activeConnections,
		TotalRequests:     b.totalRequests,
		TotalErrors:       b.totalErrors,
		ResponseTimeMs:    b.responseTimeMs,
	}
	if b.url != nil {
		s.URL = b.url.String()
	}
	if !b.lastChecked.IsZero() {
		checked := b.lastChecked
		s.LastChecked = &checked
	}
	return s
}
