package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Spawner launches one goroutine per accepted download.
// With a positive concurrency the goroutines queue up on a weighted
// semaphore before running; the caller is never blocked.
type Spawner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewSpawner with concurrency <= 0 never limits the number of running tasks.
func NewSpawner(concurrency int) *Spawner {
	s := &Spawner{}
	if concurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(concurrency))
	}
	return s
}

// Go schedules fn in the background and returns immediately.
func (s *Spawner) Go(id string, fn func()) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if s.sem != nil {
			if err := s.sem.Acquire(context.Background(), 1); err != nil {
				slog.Error("failed to acquire a download slot", slog.String("id", id), slog.Any("err", err))
				return
			}
			defer s.sem.Release(1)
		}

		slog.Debug("download task started", slog.String("id", id))
		fn()
	}()
}

// Wait blocks until every spawned task returned.
func (s *Spawner) Wait() {
	s.wg.Wait()
}
