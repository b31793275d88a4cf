// Package jobs holds the periodic sweeps run by the API process.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTimeout bounds a single sweep run.
const DefaultTimeout = 2 * time.Minute

type CreditSweeper interface {
	CreditOutstanding(ctx context.Context, limit int) (int, error)
}

type SessionCloser interface {
	CloseOverdue(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// LedgerSweep retries ledger credits for completed payments that were never credited.
type LedgerSweep struct {
	Sweeper CreditSweeper
	Limit   int
	Timeout time.Duration
	Logger  *slog.Logger
}

func (j LedgerSweep) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutOrDefault(j.Timeout))
	defer cancel()
	logger := loggerOrDefault(j.Logger)

	n, err := j.Sweeper.CreditOutstanding(ctx, j.Limit)
	if err != nil {
		logger.Error("ledger sweep finished with errors", "credited", n, "error", err)
		return
	}
	if n > 0 {
		logger.Info("ledger sweep credited payments", "credited", n)
	}
}

// OverdueSessionSweep ends sessions nobody closed once their booking window has passed.
type OverdueSessionSweep struct {
	Closer  SessionCloser
	Grace   time.Duration
	Limit   int
	Timeout time.Duration
	Logger  *slog.Logger
}

func (j OverdueSessionSweep) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutOrDefault(j.Timeout))
	defer cancel()

	n, err := j.Closer.CloseOverdue(ctx, j.Grace, j.Limit)
	if err != nil {
		loggerOrDefault(j.Logger).Error("overdue session sweep finished with errors", "closed", n, "error", err)
	}
}

type Entry struct {
	Name     string
	Schedule string
	Job      cron.Job
}

// Schedule registers the entries and returns the scheduler unstarted. Overlapping runs of the
// same job are skipped and panics are recovered and logged.
func Schedule(logger *slog.Logger, entries ...Entry) (*cron.Cron, error) {
	logger = loggerOrDefault(logger)
	cl := cronLogger{logger.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, e := range entries {
		if _, err := c.AddJob(e.Schedule, e.Job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.Name, err)
		}
		logger.Info("scheduled job", "job", e.Name, "schedule", e.Schedule)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger. Scheduler chatter goes to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
