package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExclusiveExcludesShared(t *testing.T) {
	require := require.New(t)
	l := New()

	releaseW, err := l.AcquireExclusive(time.Second)
	require.NoError(err)

	_, err = l.AcquireShared(50 * time.Millisecond)
	require.Error(err)

	releaseW()

	releaseR, err := l.AcquireShared(time.Second)
	require.NoError(err)
	releaseR()
}

func TestSharedAllowsConcurrentReaders(t *testing.T) {
	require := require.New(t)
	l := New()

	releaseA, err := l.AcquireShared(time.Second)
	require.NoError(err)
	releaseB, err := l.AcquireShared(time.Second)
	require.NoError(err)

	releaseA()
	releaseB()
}

func TestAcquireExclusiveTimesOutUnderContention(t *testing.T) {
	require := require.New(t)
	l := New()

	release, err := l.AcquireExclusive(time.Second)
	require.NoError(err)
	defer release()

	_, err = l.AcquireExclusive(30 * time.Millisecond)
	require.Error(err)
}

func TestChangeCounterIncrementsOnRelease(t *testing.T) {
	require := require.New(t)
	l := New()
	require.EqualValues(0, l.Changes())

	release, err := l.AcquireExclusive(time.Second)
	require.NoError(err)
	release()
	require.EqualValues(1, l.Changes())
}

func TestChangeWatcherAvoidDirtyRead(t *testing.T) {
	require := require.New(t)
	l := New()
	w := l.NewWatcher()

	var cleared int32
	clear := func() { atomic.AddInt32(&cleared, 1) }

	w.AvoidDirtyRead(clear)
	require.EqualValues(0, cleared)

	release, err := l.AcquireExclusive(time.Second)
	require.NoError(err)
	release()

	w.AvoidDirtyRead(clear)
	require.EqualValues(1, cleared)

	w.AvoidDirtyRead(clear)
	require.EqualValues(1, cleared)
}

func TestManyReadersEventuallyAllAcquire(t *testing.T) {
	require := require.New(t)
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.AcquireShared(time.Second)
			if err == nil {
				time.Sleep(time.Millisecond)
				release()
			}
		}()
	}
	wg.Wait()

	release, err := l.AcquireExclusive(time.Second)
	require.NoError(err)
	release()
}
