package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatementsWarmup rebuilds recent statements and stores them in the cache.
	TaskStatementsWarmup = "statements:warmup"
	// TaskStatementsIntegrity rebuilds recent statements and reports reconciliation failures.
	TaskStatementsIntegrity = "statements:integrity"
)

// SweepPayload selects the parties a sweep visits. Parties with any document
// dated within the lookback window are rebuilt; zero means every party.
type SweepPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// Lookback returns the payload window as a duration.
func (p SweepPayload) Lookback() time.Duration {
	if p.LookbackDays <= 0 {
		return 0
	}
	return time.Duration(p.LookbackDays) * 24 * time.Hour
}

// NewWarmupTask constructs a cache warmup task.
func NewWarmupTask(lookback time.Duration) (*asynq.Task, error) {
	return newSweepTask(TaskStatementsWarmup, lookback)
}

// NewIntegrityTask constructs an integrity sweep task.
func NewIntegrityTask(lookback time.Duration) (*asynq.Task, error) {
	return newSweepTask(TaskStatementsIntegrity, lookback)
}

func newSweepTask(taskType string, lookback time.Duration) (*asynq.Task, error) {
	payload := SweepPayload{LookbackDays: int(lookback / (24 * time.Hour))}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
