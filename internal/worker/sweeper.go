package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/xstash/internal/service"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// SweepRunner runs a reconciliation job by name.
type SweepRunner interface {
	Run(ctx context.Context, job string) (*service.SweepReport, error)
}

// Config holds sweeper configuration.
type Config struct {
	Interval time.Duration
	// Jobs run in order on every tick.
	Jobs []string
	// RunOnStart triggers one pass immediately after Start.
	RunOnStart bool
	// ManualOnly disables the ticker; only triggered jobs run.
	ManualOnly bool
}

// Sweeper periodically runs reconciliation jobs in a single goroutine.
type Sweeper struct {
	interval   time.Duration
	jobs       []string
	runOnStart bool
	manualOnly bool
	runner     SweepRunner
	logger     *slog.Logger

	trigger chan string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg Config, runner SweepRunner, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if len(cfg.Jobs) == 0 {
		cfg.Jobs = []string{service.JobAuthors, service.JobSync}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		interval:   cfg.Interval,
		jobs:       cfg.Jobs,
		runOnStart: cfg.RunOnStart,
		manualOnly: cfg.ManualOnly,
		runner:     runner,
		logger:     logger,
		trigger:    make(chan string, 8),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("starting reconcile sweeper",
		"interval", s.interval,
		"jobs", s.jobs,
		"manual_only", s.manualOnly,
	)

	s.wg.Add(1)
	go s.loop()
}

// Trigger queues a single job to run on the sweeper goroutine. It reports
// false when the queue is full or the sweeper is stopping.
func (s *Sweeper) Trigger(job string) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.trigger <- job:
		return true
	default:
		return false
	}
}

// Stop cancels any running sweep and waits for the loop to exit.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping reconcile sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconcile sweeper stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if !s.manualOnly {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if s.runOnStart {
		s.runAll()
	}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-tick:
			s.runAll()
		case job := <-s.trigger:
			s.run(job)
		}
	}
}

func (s *Sweeper) runAll() {
	for _, job := range s.jobs {
		if s.ctx.Err() != nil {
			return
		}
		s.run(job)
	}
}

func (s *Sweeper) run(job string) {
	logger := s.logger.With("job", job)
	report, err := s.runner.Run(s.ctx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("sweep interrupted")
			return
		}
		logger.Error("sweep failed", "error", err)
		return
	}
	logger.Debug("sweep completed", "updated", report.Updated, "failed", report.Failed)
}
