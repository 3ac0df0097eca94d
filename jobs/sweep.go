package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/buildledger/statements/internal/jobs"
	"github.com/buildledger/statements/internal/statements"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrStatementsDegraded marks an integrity run that found statements with
// failed categories. It wraps asynq.SkipRetry because a rerun sees the same data.
var ErrStatementsDegraded = fmt.Errorf("statements degraded: %w", asynq.SkipRetry)

// Sweeper rebuilds statements for recently active parties.
type Sweeper interface {
	Sweep(ctx context.Context, since time.Time, warm bool) (statements.SweepResult, error)
}

// SweepJob runs Sweeper for either the warmup or the integrity task.
type SweepJob struct {
	Sweeper  Sweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Lookback time.Duration

	task  string
	warm  bool
	clock func() time.Time
}

// NewWarmupJob wires a job that rebuilds and caches recent statements.
func NewWarmupJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics, lookback time.Duration) *SweepJob {
	return &SweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics, Lookback: lookback, task: TaskStatementsWarmup, warm: true}
}

// NewIntegrityJob wires a job that rebuilds recent statements and fails when
// any of them has a category that did not reconcile.
func NewIntegrityJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics, lookback time.Duration) *SweepJob {
	return &SweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics, Lookback: lookback, task: TaskStatementsIntegrity}
}

// Task returns the asynq task type served by the job.
func (j *SweepJob) Task() string {
	return j.task
}

// Handle processes sweep tasks.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("statements sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	lookback := payload.Lookback()
	if lookback == 0 {
		lookback = j.Lookback
	}

	tracker := j.metrics().Track(j.task)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	var since time.Time
	if lookback > 0 {
		since = now.Add(-lookback).Truncate(24 * time.Hour)
	}
	logger := j.logger().With(slog.Time("since", since))
	logger.Info("starting statements sweep")

	result, err := j.Sweeper.Sweep(ctx, since, j.warm)
	j.metrics().AddParties(j.task, jobmetrics.OutcomeClean, result.Parties-result.Failed)
	j.metrics().AddParties(j.task, jobmetrics.OutcomeDegraded, result.Failed)
	if err != nil {
		j.metrics().AddParties(j.task, jobmetrics.OutcomeError, 1)
		logger.Error("statements sweep", slog.Int("parties", result.Parties), slog.Any("error", err))
		resultErr = err
		return resultErr
	}

	logger.Info("completed statements sweep",
		slog.Int("parties", result.Parties),
		slog.Int("failed", result.Failed),
		slog.Int("warnings", result.Warnings),
		slog.Duration("duration", time.Since(now)))
	if !j.warm && result.Failed > 0 {
		resultErr = fmt.Errorf("%d of %d: %w", result.Failed, result.Parties, ErrStatementsDegraded)
	}
	return resultErr
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", j.task))
	}
	return slog.Default().With(slog.String("job", j.task))
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
