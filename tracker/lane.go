package tracker

import (
	"context"
	"sync/atomic"
)

// laneKey is the context key for a tracker's lanes.
// It embeds the owning tracker so lanes never leak across build trees.
type laneKey struct {
	t *Tracker
}

// lane is the per-worker execution flag.
// depth counts nested task actions; the worker is executing while depth > 0.
type lane struct {
	id    uint64
	depth atomic.Int32
}

func (t *Tracker) newLane() *lane {
	return &lane{id: t.laneSeq.Add(1)}
}

// laneFrom returns the lane for t carried by ctx, or nil.
func (t *Tracker) laneFrom(ctx context.Context) *lane {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(laneKey{t}).(*lane)
	return l
}

// enter increments the depth and reports whether the lane became active.
func (l *lane) enter() bool {
	return l.depth.Add(1) == 1
}

// exit decrements the depth, never below zero, and reports whether the lane
// became inactive.
func (l *lane) exit() bool {
	for {
		d := l.depth.Load()
		if d <= 0 {
			return false
		}
		if l.depth.CompareAndSwap(d, d-1) {
			return d == 1
		}
	}
}

func (l *lane) executing() bool {
	return l.depth.Load() > 0
}

func (l *lane) laneID() uint64 {
	if l == nil {
		return 0
	}
	return l.id
}
