package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/cliadapter"
)

type fakeDetector struct {
	calls int
}

func (f *fakeDetector) DetectAll(ctx context.Context) []cliadapter.Detection {
	f.calls++
	return []cliadapter.Detection{
		{CLIType: agent.CLITypeClaude, Available: true, Version: "1.0.0"},
		{CLIType: agent.CLITypeGemini, Available: false, Error: "binary not found"},
	}
}

func TestMonitorCachesSnapshot(t *testing.T) {
	det := &fakeDetector{}
	m := NewMonitor(det)

	assert.Zero(t, m.Current().LastCheckedAt)

	snap := m.Refresh(context.Background())
	assert.Len(t, snap.Detections, 2)
	assert.True(t, snap.Detections[0].Available)
	assert.False(t, snap.LastCheckedAt.IsZero())
	assert.Equal(t, 1, det.calls)

	// Current returns the cache without re-probing.
	cached := m.Current()
	assert.Equal(t, snap.LastCheckedAt, cached.LastCheckedAt)
	assert.Equal(t, 1, det.calls)

	m.Refresh(context.Background())
	assert.Equal(t, 2, det.calls)
}
