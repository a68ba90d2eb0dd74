package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	snap := NewMetrics().Snapshot()
	assert.Zero(t, snap.FrameCount)
	assert.Zero(t, snap.MinFrameNs, "min sentinel is hidden")
	assert.Zero(t, snap.OverrunRate())
}

func TestMetricsRecordFrame(t *testing.T) {
	m := NewMetrics()
	budget := 15 * time.Millisecond

	m.RecordFrame(10*time.Millisecond, budget)
	m.RecordFrame(20*time.Millisecond, budget)
	m.RecordFrame(6*time.Millisecond, budget)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.FrameCount)
	assert.Equal(t, int64(6*time.Millisecond), snap.MinFrameNs)
	assert.Equal(t, int64(20*time.Millisecond), snap.MaxFrameNs)
	assert.Equal(t, int64(6*time.Millisecond), snap.LastFrameNs)
	assert.Equal(t, int64(12*time.Millisecond), snap.AvgFrameNs)
	assert.Equal(t, uint64(1), snap.OverrunFrames)
	assert.InDelta(t, 33.33, snap.OverrunRate(), 0.01)
}

func TestMetricsZeroBudget(t *testing.T) {
	m := NewMetrics()
	m.RecordFrame(time.Second, 0)
	assert.Zero(t, m.Snapshot().OverrunFrames)
}
