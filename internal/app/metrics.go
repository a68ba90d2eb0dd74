package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks frame loop timing.
type Metrics struct {
	frameCount    atomic.Uint64
	frameTotalNs  atomic.Int64
	frameMinNs    atomic.Int64
	frameMaxNs    atomic.Int64
	lastFrameNs   atomic.Int64
	overrunFrames atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	// first frame always becomes the minimum
	m.frameMinNs.Store(1<<63 - 1)
	return m
}

// RecordFrame records how long one scene tick took. A tick longer than budget
// counts as an overrun.
func (m *Metrics) RecordFrame(duration, budget time.Duration) {
	ns := duration.Nanoseconds()

	m.frameCount.Add(1)
	m.frameTotalNs.Add(ns)
	m.lastFrameNs.Store(ns)
	if budget > 0 && duration > budget {
		m.overrunFrames.Add(1)
	}

	for {
		old := m.frameMinNs.Load()
		if ns >= old || m.frameMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.frameMaxNs.Load()
		if ns <= old || m.frameMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	frameCount := m.frameCount.Load()

	var avgFrameNs int64
	if frameCount > 0 {
		avgFrameNs = m.frameTotalNs.Load() / int64(frameCount)
	}

	minFrameNs := m.frameMinNs.Load()
	if minFrameNs == 1<<63-1 {
		minFrameNs = 0
	}

	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		FrameCount:    frameCount,
		AvgFrameNs:    avgFrameNs,
		MinFrameNs:    minFrameNs,
		MaxFrameNs:    m.frameMaxNs.Load(),
		LastFrameNs:   m.lastFrameNs.Load(),
		OverrunFrames: m.overrunFrames.Load(),
	}
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration
	FrameCount    uint64
	AvgFrameNs    int64
	MinFrameNs    int64
	MaxFrameNs    int64
	LastFrameNs   int64
	OverrunFrames uint64
}

// OverrunRate returns the percentage of frames that exceeded their budget.
func (s MetricsSnapshot) OverrunRate() float64 {
	if s.FrameCount == 0 {
		return 0
	}
	return float64(s.OverrunFrames) / float64(s.FrameCount) * 100
}
