// Package scheduler runs tasks on serial per-key queues, with debouncing and
// periodic tasks on top.
package scheduler

import (
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dae-lsp.scheduler")

type Task struct {
	Name    string
	Execute func() error
}

type queue struct {
	tasks   []Task
	running bool
}

type pending struct {
	timer *time.Timer
	task  Task
}

// Scheduler runs the tasks of one key one at a time, in the order they were
// scheduled. Different keys run concurrently.
type Scheduler struct {
	mu       sync.Mutex
	idle     *sync.Cond
	queues   map[string]*queue
	pending  map[string]*pending
	active   int
	stopChan chan struct{}
	stopped  bool
}

func NewScheduler() *Scheduler {
	s := &Scheduler{
		queues:   make(map[string]*queue),
		pending:  make(map[string]*pending),
		stopChan: make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Schedule appends task to the queue of key. It returns false once the
// scheduler is stopped.
func (s *Scheduler) Schedule(key string, task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(key, task)
}

func (s *Scheduler) scheduleLocked(key string, task Task) bool {
	if s.stopped {
		return false
	}
	q, ok := s.queues[key]
	if !ok {
		q = &queue{}
		s.queues[key] = q
	}
	q.tasks = append(q.tasks, task)
	s.active++
	if !q.running {
		q.running = true
		go s.drain(key, q)
	}
	return true
}

func (s *Scheduler) drain(key string, q *queue) {
	for {
		s.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		s.mu.Unlock()

		s.run(key, task)

		s.mu.Lock()
		s.active--
		if s.active == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task %s on %s panicked: %v", task.Name, key, r)
		}
	}()
	log.Debugf("executing %s on %s", task.Name, key)
	if err := task.Execute(); err != nil {
		log.Errorf("task %s on %s: %s", task.Name, key, err.Error())
	}
}

// Barrier returns a channel that is closed once every task scheduled on key
// before the call has run.
func (s *Scheduler) Barrier(key string) <-chan struct{} {
	done := make(chan struct{})
	ok := s.Schedule(key, Task{Name: "barrier", Execute: func() error {
		close(done)
		return nil
	}})
	if !ok {
		close(done)
	}
	return done
}

// Debounce schedules task on key after delay. Another Debounce on the same
// key before the delay has passed replaces the task and restarts the delay.
func (s *Scheduler) Debounce(key string, delay time.Duration, task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if old, ok := s.pending[key]; ok {
		if old.timer.Stop() {
			s.active--
		}
	}
	p := &pending{task: task}
	s.active++
	p.timer = time.AfterFunc(delay, func() { s.fire(key, p) })
	s.pending[key] = p
	return true
}

func (s *Scheduler) fire(key string, p *pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[key] == p {
		delete(s.pending, key)
		s.scheduleLocked(key, p.task)
	}
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
}

// Cancel drops the debounced task of key, if it has not fired yet.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if !ok {
		return
	}
	delete(s.pending, key)
	if p.timer.Stop() {
		s.active--
		if s.active == 0 {
			s.idle.Broadcast()
		}
	}
}

// Periodic schedules task on key every interval until the scheduler stops.
// A run is skipped while the previous one is still queued.
func (s *Scheduler) Periodic(key string, interval time.Duration, task Task) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if q, busy := s.queues[key]; busy && len(q.tasks) > 0 {
					log.Debugf("skipped %s, previous run still queued", task.Name)
				} else {
					s.scheduleLocked(key, task)
				}
				s.mu.Unlock()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Wait blocks until no task is queued, running or waiting for its debounce
// delay.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.active > 0 {
		s.idle.Wait()
	}
}

// Stop drops pending debounced tasks, refuses new ones and waits for the
// queued tasks to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.Wait()
		return
	}
	log.Info("stopping scheduler")
	s.stopped = true
	close(s.stopChan)
	for key, p := range s.pending {
		if p.timer.Stop() {
			s.active--
		}
		delete(s.pending, key)
	}
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
	s.Wait()
	log.Info("scheduler stopped")
}
