package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/models"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron"
)

// Deps are the collaborators of a Scheduler. Clock and Logger are optional.
type Deps struct {
	Posts    repository.PostRepository
	Accounts repository.SocialAccountRepository
	History  repository.PostingHistoryRepository
	Registry *platform.Registry
	Notifier notify.Notifier
	Clock    Clock
	Logger   *slog.Logger
}

type Status struct {
	Running             bool       `json:"running"`
	Processing          bool       `json:"processing"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	NextRun             *time.Time `json:"next_run,omitempty"`
	TotalProcessed      int64      `json:"total_processed"`
	TotalSucceeded      int64      `json:"total_succeeded"`
	TotalFailed         int64      `json:"total_failed"`
	LastBatchSize       int        `json:"last_batch_size"`
	LastError           string     `json:"last_error,omitempty"`
	PendingRetries      int        `json:"pending_retries"`
	PendingStatusWrites int        `json:"pending_status_writes"`
}

// BatchReport describes one batch run.
type BatchReport struct {
	BatchID   string                 `json:"batch_id"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration_ns"`
	Skipped   bool                   `json:"skipped"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []models.PostingResult `json:"results"`
	Error     string                 `json:"error,omitempty"`
}

// Scheduler runs publishing batches on a fixed interval. At most one batch
// runs at a time; a tick that finds a batch in progress is dropped.
type Scheduler struct {
	cfg       config.Scheduler
	selector  *Selector
	posts     repository.PostRepository
	publisher *Publisher
	retries   *RetryTracker
	pending   *PendingWrites
	tokens    *TokenManager
	clock     Clock
	logger    *slog.Logger

	processing atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	status Status
	// idle is closed when the running batch finishes; nil when none is running.
	idle chan struct{}
}

func New(cfg config.Scheduler, deps Deps) *Scheduler {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	retries := NewRetryTracker()
	pending := NewPendingWrites()
	limiter := NewRateLimiter(cfg.RateLimits, clock)
	tokens := NewTokenManager(deps.Accounts, deps.Registry, clock, logger)

	publisher := NewPublisher(deps.Posts, deps.Accounts, deps.History, deps.Registry, tokens, limiter, retries, pending, notifier, clock, logger,
		PublisherOptions{
			MaxRetries:             cfg.MaxRetries,
			Timeout:                cfg.PublishTimeout,
			CountPreflightFailures: cfg.CountPreflightFailures,
		})

	return &Scheduler{
		cfg:       cfg,
		selector:  NewSelector(deps.Posts, retries, pending, clock, cfg.GracePeriod, cfg.RetryDelay, cfg.BatchSize),
		posts:     deps.Posts,
		publisher: publisher,
		retries:   retries,
		pending:   pending,
		tokens:    tokens,
		clock:     clock,
		logger:    logger,
	}
}

// Tokens exposes the token manager so the refresh job shares it.
func (s *Scheduler) Tokens() *TokenManager { return s.tokens }

// Start runs a batch right away and then every CheckInterval. Batches use ctx,
// so it should outlive the caller's request. It reports false if the
// scheduler was already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return false
	}

	c := cron.New()
	c.Schedule(cron.Every(s.cfg.CheckInterval), cron.FuncJob(func() {
		s.setNextRun()
		s.runBatch(ctx)
	}))
	c.Start()

	s.cron = c
	s.status.Running = true
	next := s.clock.Now().Add(s.cfg.CheckInterval)
	s.status.NextRun = &next

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.cfg.CheckInterval),
		slog.Int("batch_size", s.cfg.BatchSize),
		slog.Int("max_retries", s.cfg.MaxRetries),
	)

	go s.runBatch(ctx)
	return true
}

func (s *Scheduler) setNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		next := s.clock.Now().Add(s.cfg.CheckInterval)
		s.status.NextRun = &next
	}
}

// Stop disarms the timer. A batch already running is left to finish. It
// reports false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Running {
		return false
	}
	s.cron.Stop()
	s.cron = nil
	s.status.Running = false
	s.status.NextRun = nil

	s.logger.Info("scheduler stopped")
	return true
}

// Shutdown stops the timer and waits for the running batch until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	st.Processing = s.processing.Load()
	st.PendingRetries = s.retries.Len()
	st.PendingStatusWrites = s.pending.Len()
	return st
}

// ResetStats zeroes the cumulative counters.
func (s *Scheduler) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.TotalProcessed = 0
	s.status.TotalSucceeded = 0
	s.status.TotalFailed = 0
	s.status.LastBatchSize = 0
	s.status.LastError = ""
}

// TriggerBatch runs one batch now, outside the timer. It is skipped like a
// timer tick when another batch is in progress.
func (s *Scheduler) TriggerBatch(ctx context.Context) BatchReport {
	return s.runBatch(ctx)
}

// runBatch processes the due posts one after another.
func (s *Scheduler) runBatch(ctx context.Context) BatchReport {
	started := s.clock.Now()
	report := BatchReport{BatchID: batchID(), StartedAt: started}
	logger := s.logger.With(slog.String("batch", report.BatchID))

	idle := make(chan struct{})
	s.mu.Lock()
	if s.idle != nil {
		s.mu.Unlock()
		logger.Warn("previous batch still running, skipping")
		report.Skipped = true
		return report
	}
	s.idle = idle
	s.processing.Store(true)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.idle = nil
		s.processing.Store(false)
		s.mu.Unlock()
		close(idle)
	}()

	if s.pending.Len() > 0 {
		if n := s.pending.Flush(ctx, s.posts, logger); n > 0 {
			logger.Info("saved pending published status", slog.Int("posts", n))
		}
	}

	posts, err := s.selector.Due(ctx)
	if err != nil {
		logger.Error("batch aborted", slog.String("error", err.Error()))
		report.Error = err.Error()
		s.finish(started, report)
		return report
	}
	if len(posts) > 0 {
		logger.Info("processing batch", slog.Int("posts", len(posts)))
	}

	report.Results = make([]models.PostingResult, 0, len(posts))
	for _, post := range posts {
		res := s.publisher.Publish(ctx, post)
		report.Results = append(report.Results, res)
		if res.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	report.Duration = s.clock.Now().Sub(started)
	if len(posts) > 0 {
		logger.Info("batch finished",
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.Duration("duration", report.Duration),
		)
	}
	s.finish(started, report)
	return report
}

func (s *Scheduler) finish(started time.Time, report BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastRun = &started
	s.status.LastBatchSize = len(report.Results)
	s.status.LastError = report.Error
	s.status.TotalProcessed += int64(len(report.Results))
	s.status.TotalSucceeded += int64(report.Succeeded)
	s.status.TotalFailed += int64(report.Failed)
}

func batchID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return "batch"
	}
	return id
}
