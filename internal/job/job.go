// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs a task periodically in the background.
package job

import (
	"context"
	"sync/atomic"
	"time"
)

// Job runs a task at a fixed interval. A run never overlaps with the previous one, ticks that
// fire while a run is in progress are skipped.
type Job struct {
	interval  time.Duration
	task      func(context.Context)
	immediate bool

	runs    atomic.Int64
	skipped atomic.Int64
}

// Option configures a Job.
type Option func(*Job)

// WithImmediateRun makes the job run its task once right after Start instead of waiting for the
// first tick.
func WithImmediateRun() Option {
	return func(j *Job) {
		j.immediate = true
	}
}

func New(interval time.Duration, task func(context.Context), opts ...Option) *Job {
	job := &Job{
		interval: interval,
		task:     task,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// Start executes the job until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// 1-slot semaphore, held while a run is in progress
	sem := make(chan struct{}, 1)
	run := func() {
		select {
		case sem <- struct{}{}:
			j.runs.Add(1)
			go func() {
				defer func() { <-sem }()
				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				j.task(runCtx)
			}()
		default:
			j.skipped.Add(1)
		}
	}

	if j.immediate {
		run()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Runs returns how often the task was started.
func (j *Job) Runs() int64 {
	return j.runs.Load()
}

// Skipped returns how many ticks were dropped because the previous run was still in progress.
func (j *Job) Skipped() int64 {
	return j.skipped.Load()
}
