// Package lock implements the engine's single-writer/multi-reader
// discipline: any number of readers may hold the shared lock concurrently,
// but a writer needs the exclusive lock to itself. A monotonic change
// counter lets readers detect that a writer committed since they last
// looked, so they can invalidate their page cache before trusting it
// again (AvoidDirtyRead).
package lock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagefiledb/pagefile/internal/util"
)

// Locker guards a single data file against concurrent readers and a lone
// writer, with a bounded wait for either lock.
type Locker struct {
	mu      sync.RWMutex
	changes int64
}

func New() *Locker {
	return &Locker{}
}

// AcquireShared blocks until the read lock is available or timeout
// elapses, returning KindLockTimeout on the latter.
func (l *Locker) AcquireShared(timeout time.Duration) (func(), error) {
	if acquireRLockWithTimeout(&l.mu, timeout) {
		return l.mu.RUnlock, nil
	}
	return nil, util.New(util.KindLockTimeout, "shared lock")
}

// AcquireExclusive blocks until the write lock is available or timeout
// elapses. The returned release function increments the change counter,
// publishing to readers that the writer just finished a commit.
func (l *Locker) AcquireExclusive(timeout time.Duration) (func(), error) {
	if acquireLockWithTimeout(&l.mu, timeout) {
		return func() {
			atomic.AddInt64(&l.changes, 1)
			l.mu.Unlock()
		}, nil
	}
	return nil, util.New(util.KindLockTimeout, "exclusive lock")
}

// Changes returns the current value of the monotonic change counter.
func (l *Locker) Changes() int64 {
	return atomic.LoadInt64(&l.changes)
}

// ChangeWatcher lets a reader remember the change counter it last
// observed and find out, cheaply, whether a writer has committed since.
type ChangeWatcher struct {
	locker *Locker
	seen   int64
}

func (l *Locker) NewWatcher() *ChangeWatcher {
	return &ChangeWatcher{locker: l, seen: l.Changes()}
}

// AvoidDirtyRead calls clearCache if the writer has committed since this
// watcher last checked, then updates the watermark it is tracking.
func (w *ChangeWatcher) AvoidDirtyRead(clearCache func()) {
	current := w.locker.Changes()
	if current != w.seen {
		clearCache()
		w.seen = current
	}
}

// lockPollInterval is how often acquireLockWithTimeout/acquireRLockWithTimeout
// retry TryLock while waiting for a deadline. Short enough that a lock
// freed just after a failed attempt is picked up promptly, long enough
// that the poll itself is not a source of contention.
const lockPollInterval = time.Millisecond

// acquireLockWithTimeout polls mu.TryLock until it succeeds or the
// deadline passes.
func acquireLockWithTimeout(mu *sync.RWMutex, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}

// acquireRLockWithTimeout polls mu.TryRLock until it succeeds or the
// deadline passes.
func acquireRLockWithTimeout(mu *sync.RWMutex, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if mu.TryRLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}
