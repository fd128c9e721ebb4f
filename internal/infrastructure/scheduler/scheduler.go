// Package scheduler runs the periodic sync jobs: order import, tracking
// poll and carrier feed import.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Config holds scheduler configuration
type Config struct {
	// JobTimeout bounds a single run
	JobTimeout time.Duration
	// RetryDelay is the base delay before a failed job runs again; it doubles
	// per consecutive failure and never exceeds the job interval
	RetryDelay time.Duration
	// RunOnStart runs every job once when the scheduler starts
	RunOnStart bool
	// HistorySize is how many finished runs are kept for inspection
	HistorySize int
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		JobTimeout:  20 * time.Minute,
		RetryDelay:  time.Minute,
		RunOnStart:  true,
		HistorySize: 100,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JobTimeout <= 0 || c.RetryDelay < 0 || c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

type entry struct {
	job      Job
	interval time.Duration
	busy     atomic.Bool
	failures atomic.Int32
}

// Scheduler runs registered jobs on fixed intervals. A job never overlaps
// with itself; a tick that finds the previous run still busy is skipped.
type Scheduler struct {
	config      Config
	logger      *zap.Logger
	syncMetrics *telemetry.SyncMetrics

	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	historyMu sync.RWMutex
	history   []*JobRun
}

// New creates a scheduler
func New(config Config, log *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config:  config,
		logger:  log.Named("scheduler"),
		entries: make(map[string]*entry),
		history: make([]*JobRun, 0, config.HistorySize),
	}, nil
}

// SetSyncMetrics enables job run metrics
func (s *Scheduler) SetSyncMetrics(m *telemetry.SyncMetrics) {
	s.syncMetrics = m
}

// Register adds a job. An interval of zero or less registers the job for
// RunNow only.
func (s *Scheduler) Register(job Job, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name())
	}
	s.entries[job.Name()] = &entry{job: job, interval: interval}
	s.order = append(s.order, job.Name())
	return nil
}

// Jobs returns the registered job names in registration order
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches one loop per periodic job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	started := 0
	for _, name := range s.order {
		e := s.entries[name]
		if e.interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, e)
		started++
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("jobs", started),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the loops to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	delay := e.interval
	if s.config.RunOnStart {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_, err := s.execute(ctx, e)
			timer.Reset(s.nextDelay(e, err))
		}
	}
}

// nextDelay backs off exponentially after consecutive failures, capped at
// the job interval
func (s *Scheduler) nextDelay(e *entry, err error) time.Duration {
	if err == nil || errors.Is(err, ErrJobAlreadyRunning) || s.config.RetryDelay <= 0 {
		return e.interval
	}
	shift := min(int(e.failures.Load())-1, 16)
	return min(s.config.RetryDelay*time.Duration(1<<shift), e.interval)
}

// RunNow executes a job synchronously, bypassing its interval
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobRun, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) (*JobRun, error) {
	name := e.job.Name()
	if !e.busy.CompareAndSwap(false, true) {
		s.logger.Warn("Previous run still in progress, skipping", zap.String("job", name))
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyRunning, name)
	}
	defer e.busy.Store(false)

	run := newJobRun(name, int(e.failures.Load())+1)

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	ctx = logger.WithJob(ctx, name)
	ctx, span := telemetry.StartSpan(ctx, "scheduler."+name,
		telemetry.WithAttribute(telemetry.SpanAttrAttempt, run.Attempt),
	)
	defer span.End()

	log := logger.For(ctx, s.logger).With(zap.String("run_id", run.ID.String()))
	log.Info("Running sync job", zap.Int("attempt", run.Attempt))

	var (
		res Result
		err error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.JobLabels(name), func(ctx context.Context) {
		res, err = e.job.Run(ctx)
	})
	if err != nil {
		failures := e.failures.Add(1)
		run.fail(res, err)
		telemetry.RecordError(span, err)
		log.Error("Sync job failed",
			zap.Int32("consecutive_failures", failures),
			zap.Duration("elapsed", run.Duration()),
			zap.Error(err),
		)
	} else {
		e.failures.Store(0)
		run.complete(res)
		log.Info("Sync job completed",
			zap.String("status", string(run.Status)),
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("elapsed", run.Duration()),
		)
	}
	span.SetAttributes(attribute.String("job.status", string(run.Status)))

	if s.syncMetrics != nil {
		s.syncMetrics.RecordJobRun(ctx, name, string(run.Status), run.Duration())
	}
	s.addToHistory(run)
	return run, err
}

func (s *Scheduler) addToHistory(run *JobRun) {
	if s.config.HistorySize == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*JobRun{run}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// History returns the most recent runs, newest first
func (s *Scheduler) History(limit int) []*JobRun {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]*JobRun, limit)
	copy(out, s.history[:limit])
	return out
}
