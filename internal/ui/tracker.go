package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a new ETA sample against the previous estimate.
const etaSmoothing = 0.3

// ProgressTracker keeps the state of the build in progress. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	corpus     string
	stage      Stage
	current    int
	total      int
	stageStart time.Time
	lastETA    time.Duration

	lastCurrent int
	lastSample  time.Time
	rate        float64 // rows per second, smoothed
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Corpus   string
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Rate     float64
}

// NewProgressTracker creates a tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stageStart: now, lastSample: now}
}

// Set applies an event. A new corpus or stage restarts timing.
func (p *ProgressTracker) Set(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if event.Corpus != p.corpus || event.Stage != p.stage {
		p.corpus = event.Corpus
		p.stage = event.Stage
		p.stageStart = now
		p.lastETA = 0
		p.lastCurrent = 0
		p.lastSample = now
		p.rate = 0
	}
	p.current = event.Current
	p.total = event.Total

	if elapsed := now.Sub(p.lastSample); elapsed >= 500*time.Millisecond {
		if delta := event.Current - p.lastCurrent; delta > 0 {
			r := float64(delta) / elapsed.Seconds()
			if p.rate == 0 {
				p.rate = r
			} else {
				p.rate = 0.2*r + 0.8*p.rate
			}
		}
		p.lastCurrent = event.Current
		p.lastSample = now
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Corpus:   p.corpus,
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Progress: p.progress(),
		ETA:      p.eta(),
		Rate:     p.rate,
	}
}

func (p *ProgressTracker) progress() float64 {
	if p.total <= 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// eta must be called with the lock held.
func (p *ProgressTracker) eta() time.Duration {
	progress := p.progress()
	if progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA > 0 {
		remaining = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	}
	p.lastETA = remaining
	return remaining
}
