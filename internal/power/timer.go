// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package power

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	keepAliveJobName = "keep_alive_job"

	// Start dates this close to now may already lie in the past when gocron validates them.
	immediateStartThreshold = time.Millisecond
)

// Timer is a single-shot timer with at most one pending arming.
type Timer interface {
	// Arm schedules task to run once after d. A pending arming is cancelled first.
	Arm(d time.Duration, task func()) error
	// Cancel removes the pending arming, if any.
	Cancel()
}

// CronTimer implements Timer with one-time jobs on a gocron scheduler.
type CronTimer struct {
	scheduler gocron.Scheduler
	logger    *logger.Logger

	mu  sync.Mutex
	job gocron.Job
}

// NewCronTimer returns a CronTimer scheduling its jobs on the given scheduler. The scheduler has
// to be started by the caller.
func NewCronTimer(scheduler gocron.Scheduler, log *logger.Logger) *CronTimer {
	return &CronTimer{
		scheduler: scheduler,
		logger:    log,
	}
}

func (t *CronTimer) Arm(d time.Duration, task func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeJob()
	startAt := gocron.OneTimeJobStartDateTime(time.Now().Add(d))
	if d < immediateStartThreshold {
		startAt = gocron.OneTimeJobStartImmediately()
	}
	job, err := t.scheduler.NewJob(
		gocron.OneTimeJob(startAt),
		gocron.NewTask(task),
		gocron.WithName(keepAliveJobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", keepAliveJobName, err)
	}
	t.job = job
	t.logger.Debug("keep-alive timer armed", slog.Duration("interval", d))
	return nil
}

func (t *CronTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeJob()
}

func (t *CronTimer) removeJob() {
	if t.job == nil {
		return
	}
	// One-time jobs that already ran might be gone from the scheduler.
	err := t.scheduler.RemoveJob(t.job.ID())
	if err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		t.logger.Error("failed to remove keep-alive job", logger.Err(err))
	}
	t.job = nil
}
