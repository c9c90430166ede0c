package ratelimit

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Severity grades how far a (user, action) pair exceeds normal activity.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// DefaultAbuseWindow is the sliding window the detector counts over.
const DefaultAbuseWindow = time.Minute

// Classify maps an action count within the window to a severity.
func Classify(count int) Severity {
	switch {
	case count > 100:
		return SeverityCritical
	case count > 50:
		return SeverityHigh
	case count > 25:
		return SeverityMedium
	case count > 15:
		return SeverityLow
	default:
		return SeverityNone
	}
}

type DetectorOption func(*AbuseDetector)

func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *AbuseDetector) {
		d.now = now
	}
}

// AbuseDetector counts actions per (user, action) over a sliding window.
// It only classifies; callers decide what to do with the result.
type AbuseDetector struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events *cache.Cache
}

func NewAbuseDetector(window time.Duration, opts ...DetectorOption) *AbuseDetector {
	if window <= 0 {
		window = DefaultAbuseWindow
	}
	d := &AbuseDetector{
		window: window,
		now:    time.Now,
		events: cache.New(window, 2*window),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Record notes one occurrence of action by user and returns the severity
// of the count inside the current window, this occurrence included.
func (d *AbuseDetector) Record(userID, action string) Severity {
	return Classify(d.record(userID, action, true))
}

// Count returns the occurrences inside the current window without
// recording a new one.
func (d *AbuseDetector) Count(userID, action string) int {
	return d.record(userID, action, false)
}

func (d *AbuseDetector) record(userID, action string, add bool) int {
	key := userID + "|" + action
	now := d.now()
	cutoff := now.Add(-d.window)

	d.mu.Lock()
	defer d.mu.Unlock()

	var kept []time.Time
	if v, ok := d.events.Get(key); ok {
		for _, ts := range v.([]time.Time) {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
	}
	if add {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		d.events.Delete(key)
		return 0
	}
	d.events.Set(key, kept, d.window)
	return len(kept)
}
