package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRunsInOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		s.Schedule("doc", Task{Name: "append", Execute: func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}})
	}
	s.Wait()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestKeysRunConcurrently(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	release := make(chan struct{})
	s.Schedule("a", Task{Name: "block", Execute: func() error {
		<-release
		return nil
	}})
	done := make(chan struct{})
	s.Schedule("b", Task{Name: "free", Execute: func() error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task on b waited for a")
	}
	close(release)
}

func TestFailingTaskDoesNotStopQueue(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var ran atomic.Int32
	s.Schedule("k", Task{Name: "fail", Execute: func() error { return errors.New("boom") }})
	s.Schedule("k", Task{Name: "panic", Execute: func() error { panic("boom") }})
	s.Schedule("k", Task{Name: "ok", Execute: func() error {
		ran.Add(1)
		return nil
	}})
	s.Wait()
	assert.Equal(t, int32(1), ran.Load())
}

func TestBarrier(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first atomic.Bool
	s.Schedule("doc", Task{Name: "slow", Execute: func() error {
		time.Sleep(20 * time.Millisecond)
		first.Store(true)
		return nil
	}})
	<-s.Barrier("doc")
	assert.True(t, first.Load())
}

func TestDebounceCollapsesBursts(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	var last atomic.Int32
	for i := int32(1); i <= 10; i++ {
		s.Debounce("analyze", 30*time.Millisecond, Task{Name: "analyze", Execute: func() error {
			runs.Add(1)
			last.Store(i)
			return nil
		}})
	}
	s.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(10), last.Load())
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var runs atomic.Int32
	s.Debounce("k", 20*time.Millisecond, Task{Name: "never", Execute: func() error {
		runs.Add(1)
		return nil
	}})
	s.Cancel("k")
	s.Wait()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestPeriodic(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int32
	s.Periodic("rescan", 5*time.Millisecond, Task{Name: "tick", Execute: func() error {
		runs.Add(1)
		return nil
	}})
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestStop(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int32
	s.Schedule("k", Task{Name: "queued", Execute: func() error {
		runs.Add(1)
		return nil
	}})
	s.Debounce("k", time.Hour, Task{Name: "dropped", Execute: func() error {
		runs.Add(10)
		return nil
	}})
	s.Stop()

	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, s.Schedule("k", Task{Name: "late", Execute: func() error { return nil }}))
	select {
	case <-s.Barrier("k"):
	default:
		t.Fatal("barrier on a stopped scheduler must not block")
	}
}
