package health

import (
	"context"
	"sync"
	"time"

	"github.com/ktagawa/agentq/internal/cliadapter"
)

// Detector is the slice of the adapter registry the monitor needs.
type Detector interface {
	DetectAll(ctx context.Context) []cliadapter.Detection
}

// Snapshot is the cached adapter availability report.
type Snapshot struct {
	Detections    []cliadapter.Detection `json:"detections"`
	LastCheckedAt time.Time              `json:"lastCheckedAt"`
}

// Monitor caches CLI detection results so the health endpoint never blocks
// on version probes. Refresh runs the probes; concurrent refreshes collapse
// into one.
type Monitor struct {
	detector Detector

	mu         sync.Mutex
	refreshing bool
	snapshot   Snapshot
}

func NewMonitor(detector Detector) *Monitor {
	return &Monitor{detector: detector}
}

// Current returns the last snapshot; the zero snapshot before any refresh.
func (m *Monitor) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Refresh re-probes every adapter and returns the fresh snapshot. When a
// refresh is already running the stale snapshot is returned instead of
// stacking probes.
func (m *Monitor) Refresh(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.refreshing {
		snap := m.snapshot
		m.mu.Unlock()
		return snap
	}
	m.refreshing = true
	m.mu.Unlock()

	detections := m.detector.DetectAll(ctx)

	m.mu.Lock()
	m.snapshot = Snapshot{
		Detections:    detections,
		LastCheckedAt: time.Now().UTC(),
	}
	m.refreshing = false
	snap := m.snapshot
	m.mu.Unlock()
	return snap
}
