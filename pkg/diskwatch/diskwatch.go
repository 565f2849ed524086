/*
Package diskwatch implements C5: a periodic free-space sampler that flags
when the scratch filesystem is low, and a purge rendezvous the worker pool
coordinates through between tasks.
*/
package diskwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/metrics"
)

const (
	// DefaultInterval is how often free space is sampled.
	DefaultInterval = 10 * time.Minute
	// DefaultThreshold triggers a purge once free space drops below this
	// fraction of total capacity.
	DefaultThreshold = 0.10
)

// PurgeFunc removes reclaimable scratch data (cached toolchain homes,
// build artifacts) and is invoked once every live worker has paused.
type PurgeFunc func() error

// Watcher samples free space on Path every Interval and coordinates a
// stop-the-world purge when it drops below Threshold.
type Watcher struct {
	Path      string
	Interval  time.Duration
	Threshold float64
	Purge     PurgeFunc
	Peers     int // number of workers that must Pause before a purge runs

	shouldPurge int32 // atomic bool

	pauseMu  sync.Mutex
	pauseCnt int
	pauseAll *sync.Cond
	// epoch counts completed purge rendezvous. A waiter captures it before
	// Wait()ing and compares on each wakeup instead of re-reading
	// pauseCnt: the last arriver resets pauseCnt to 0 as part of cleanup,
	// which looks identical to "nobody has arrived yet" to a waiter that
	// just woke up, so pauseCnt alone cannot tell a waiter whether the
	// purge it is waiting for already ran.
	epoch uint64

	stop chan struct{}
	done chan struct{}
}

// New returns a Watcher with defaults filled in for zero-valued fields.
func New(path string, peers int, purge PurgeFunc) *Watcher {
	w := &Watcher{
		Path:      path,
		Interval:  DefaultInterval,
		Threshold: DefaultThreshold,
		Purge:     purge,
		Peers:     peers,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.pauseAll = sync.NewCond(&w.pauseMu)
	return w
}

// Run samples free space on a ticker until ctx is cancelled or Stop is
// called. It is meant to be run in its own goroutine, joined separately
// from the worker pool so its exit is observable independent of them.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)

	watchLog := log.WithComponent("diskwatch")
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			usage, err := disk.Usage(w.Path)
			if err != nil {
				watchLog.Error().Err(err).Str("path", w.Path).Msg("sample free space")
				continue
			}
			free := 1 - usage.UsedPercent/100
			metrics.DiskUsageRatio.Set(usage.UsedPercent / 100)
			if free <= w.Threshold {
				watchLog.Warn().Float64("free_fraction", free).Msg("free space below threshold")
				atomic.StoreInt32(&w.shouldPurge, 1)
			}
		}
	}
}

// Stop ends the sampling goroutine. Safe to call after Run's context is
// already cancelled.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

// ShouldPurge reports whether the last sample was below Threshold. Workers
// poll this between tasks, never mid-task.
func (w *Watcher) ShouldPurge() bool {
	return atomic.LoadInt32(&w.shouldPurge) == 1
}

// Pause is called by a worker between tasks once it has observed
// ShouldPurge. It blocks until every Peer worker has also called Pause, at
// which point exactly one caller runs Purge on behalf of all of them, then
// every caller is released and ShouldPurge returns false again.
func (w *Watcher) Pause() {
	w.pauseMu.Lock()
	defer w.pauseMu.Unlock()

	if !atomic.CompareAndSwapInt32(&w.shouldPurge, 1, 1) {
		return
	}

	myEpoch := w.epoch
	w.pauseCnt++
	if w.pauseCnt < w.Peers {
		for w.epoch == myEpoch {
			w.pauseAll.Wait()
		}
		return
	}

	// Last arriver: run the purge on behalf of every peer, then advance
	// the epoch so every waiter's condition goes false on its next
	// wakeup -- a plain Broadcast without the epoch bump would have them
	// find the epoch unchanged (and pauseCnt reset to its initial value)
	// and Wait() again forever.
	if w.Purge != nil {
		if err := w.Purge(); err != nil {
			log.WithComponent("diskwatch").Error().Err(err).Msg("purge failed")
		} else {
			metrics.DiskPurgesTotal.Inc()
		}
	}
	atomic.StoreInt32(&w.shouldPurge, 0)
	w.pauseCnt = 0
	w.epoch++
	w.pauseAll.Broadcast()
}
