package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quiz-lab/contract"
	"quiz-lab/errors"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor runs workers in their own goroutines and restarts the ones that
// fail or panic. A worker returning nil is done and is not restarted.
// Cancelling the parent context stops every worker; Run returns once they
// have all exited.
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := s.workers
	s.mu.Unlock()
	defer cancel()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start supervises one more worker. It may be called while Run is waiting,
// as long as ctx descends from the one given to Run.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		for {
			err := s.runOnce(ctx, worker)
			switch {
			case ctx.Err() != nil:
				s.log.Debug("Worker stopped", "name", name)
				return
			case err == nil:
				s.log.Debug("Worker finished", "name", name)
				return
			}

			s.log.Warn("Worker failed, restarting", "name", name, "error", err, "after", s.restartInterval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}

func (s *Supervisor) runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
