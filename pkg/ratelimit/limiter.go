// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package ratelimit implements the token bucket shared by every worker in
// the pool (C1). Refill is continuous; Consume sleeps outside the lock
// and tolerates the resulting race rather than risk a sleep-under-lock
// deadlock.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures the limiter.
type Config struct {
	// RequestsPerMinute is the bucket capacity and refill rate (tokens per
	// 60s window).
	RequestsPerMinute int

	Logger *zap.Logger
}

// DefaultConfig returns the spec's default of 150 requests per minute.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 150, Logger: zap.NewNop()}
}

// Status is a point-in-time snapshot of the limiter's state.
type Status struct {
	TokensAvailable   int
	TokensLimit       int
	Utilization       float64
	TimeUntilToken    time.Duration
	TotalConsumed     int64
	TotalWaited       time.Duration
	Last429           time.Time
}

// Limiter is a classic token bucket: capacity = requests-per-minute,
// continuous refill at capacity/60s.
type Limiter struct {
	mu sync.Mutex

	requestsPerMinute float64
	windowSeconds     float64
	tokens            float64
	lastUpdate        time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429       time.Time

	logger *zap.Logger
}

// New constructs a Limiter with a full bucket.
func New(cfg Config) *Limiter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 150
	}
	return &Limiter{
		requestsPerMinute: float64(cfg.RequestsPerMinute),
		windowSeconds:     60.0,
		tokens:            float64(cfg.RequestsPerMinute),
		lastUpdate:        time.Now(),
		logger:            cfg.Logger,
	}
}

// refillLocked applies continuous refill. Caller must hold mu.
func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	added := (elapsed / l.windowSeconds) * l.requestsPerMinute
	l.tokens = min(l.tokens+added, l.requestsPerMinute)
	l.lastUpdate = now
}

func (l *Limiter) waitTimeLocked(need float64) time.Duration {
	short := need - l.tokens
	secondsPerToken := l.windowSeconds / l.requestsPerMinute
	return time.Duration(short * secondsPerToken * float64(time.Second))
}

// CanExecute reports whether at least one token is currently available.
func (l *Limiter) CanExecute() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens >= 1.0
}

// TimeUntilToken returns 0 if a token is available now, else the wait for
// exactly one token.
func (l *Limiter) TimeUntilToken() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens >= 1.0 {
		return 0
	}
	return l.waitTimeLocked(1)
}

// Consume blocks until count tokens can be taken, then takes them. The
// wait happens outside the lock; after the wait, tokens are decremented
// regardless of a concurrent consumer having raced ahead in the meantime
// (tokens may briefly go negative). This is a deliberate choice: the
// alternative is a sleep held under the lock, which deadlocks every other
// caller. The bucket self-corrects on the next refill.
func (l *Limiter) Consume(count int) time.Duration {
	n := float64(count)

	l.mu.Lock()
	l.refillLocked()
	var wait time.Duration
	if l.tokens < n {
		wait = l.waitTimeLocked(n)
	}
	l.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
		l.mu.Lock()
		l.totalWaited += wait
		l.mu.Unlock()
	}

	l.mu.Lock()
	l.refillLocked()
	l.tokens -= n
	l.totalConsumed += int64(count)
	l.mu.Unlock()

	return wait
}

// TryConsume takes count tokens only if immediately available, without
// waiting.
func (l *Limiter) TryConsume(count int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	n := float64(count)
	if l.tokens >= n {
		l.tokens -= n
		l.totalConsumed += int64(count)
		return true
	}
	return false
}

// RecordRetryAfter forces the bucket to zero, so the next CanExecute/
// Consume call waits. Callers are responsible for sleeping retryAfter
// themselves; the limiter does not sleep on their behalf.
func (l *Limiter) RecordRetryAfter(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last429 = time.Now()
	l.tokens = 0
}

// AdjustLimit rescales the current token count proportionally and updates
// capacity.
func (l *Limiter) AdjustLimit(newLimit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	scale := float64(newLimit) / l.requestsPerMinute
	l.tokens = min(l.tokens*scale, float64(newLimit))
	l.requestsPerMinute = float64(newLimit)
}

// Reset restores a full bucket and clears counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.requestsPerMinute
	l.lastUpdate = time.Now()
	l.totalConsumed = 0
	l.totalWaited = 0
	l.last429 = time.Time{}
}

// Status returns a snapshot of the limiter's current state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()

	consumption := l.requestsPerMinute - l.tokens
	util := consumption / l.requestsPerMinute

	var untilToken time.Duration
	if l.tokens < 1.0 {
		untilToken = l.waitTimeLocked(1)
	}

	return Status{
		TokensAvailable: int(l.tokens),
		TokensLimit:     int(l.requestsPerMinute),
		Utilization:     util,
		TimeUntilToken:  untilToken,
		TotalConsumed:   l.totalConsumed,
		TotalWaited:     l.totalWaited,
		Last429:         l.last429,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
