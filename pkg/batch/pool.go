// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package batch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/ratelimit"
	"github.com/teradata-labs/llmbatch/pkg/types"
)

// Config configures the worker pool.
type Config struct {
	MaxWorkers int

	// MaxRetries is the number of additional attempts after the first
	// (so total attempts == MaxRetries + 1 for an always-failing request).
	MaxRetries int

	// JSONParseMaxRetries overrides MaxRetries specifically for the
	// json_parse error kind, kept separately configurable since a
	// structured-output mismatch can mask a persistent schema bug rather
	// than a transient fault (see SPEC_FULL.md REDESIGN FLAGS). Zero means
	// "use MaxRetries".
	JSONParseMaxRetries int

	RetryJitterMin time.Duration
	RetryJitterMax time.Duration

	// WatchdogInterval is how often an idle worker checks for stuck work.
	WatchdogInterval time.Duration
	// WatchdogLogInterval is the pool-wide minimum gap between watchdog
	// log emissions.
	WatchdogLogInterval time.Duration

	Logger *zap.Logger
	Events types.EventSink
}

// DefaultConfig applies the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:          5,
		MaxRetries:          5,
		RetryJitterMin:      1 * time.Second,
		RetryJitterMax:      3 * time.Second,
		WatchdogInterval:    30 * time.Second,
		WatchdogLogInterval: 60 * time.Second,
		Logger:              zap.NewNop(),
	}
}

// Pool is the priority-queued worker pool (C3).
type Pool struct {
	client  types.LLMClient
	limiter *ratelimit.Limiter
	cfg     Config

	resultsMu sync.Mutex
	results   map[string]*types.Result

	trackingMu sync.Mutex
	active     map[string]*types.RequestStatus

	watchdogMu      sync.Mutex
	lastWatchdogLog time.Time
}

// New constructs a Pool.
func New(client types.LLMClient, limiter *ratelimit.Limiter, cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.RetryJitterMax <= 0 {
		cfg.RetryJitterMax = 3 * time.Second
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 30 * time.Second
	}
	if cfg.WatchdogLogInterval <= 0 {
		cfg.WatchdogLogInterval = 60 * time.Second
	}
	return &Pool{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		results: make(map[string]*types.Result),
		active:  make(map[string]*types.RequestStatus),
	}
}

// ProcessBatch enqueues every request and blocks until each admitted id
// has a terminal Result. onResult is called exactly once per id, for
// success or permanent failure; panics/errors inside it are logged and
// never propagated.
func (p *Pool) ProcessBatch(ctx context.Context, requests []*types.Request, onResult func(*types.Result)) map[string]*types.Result {
	if len(requests) == 0 {
		return map[string]*types.Result{}
	}

	q := newRequestQueue()
	expected := make(map[string]struct{}, len(requests))
	byID := make(map[string]*types.Request, len(requests))
	now := time.Now()

	for _, r := range requests {
		r.Stamp(now)
		expected[r.ID] = struct{}{}
		byID[r.ID] = r

		p.trackingMu.Lock()
		p.active[r.ID] = &types.RequestStatus{
			RequestID:      r.ID,
			Phase:          types.PhaseQueued,
			QueuedAt:       now,
			PhaseEnteredAt: now,
		}
		p.trackingMu.Unlock()

		p.emit(types.Event{Kind: types.EventQueued, Timestamp: now, RequestID: r.ID})
		q.Put(r)
	}

	ids := make([]string, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sample := ids
	if len(sample) > 5 {
		sample = append(append([]string{}, ids[:5]...), "...")
	}
	p.cfg.Logger.Info("queued requests for processing",
		zap.Int("total_requests", len(requests)), zap.Strings("request_ids_sample", sample))

	workers := p.cfg.MaxWorkers
	if workers > len(requests) {
		workers = len(requests)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id, q, onResult, expected)
		}(i)
	}
	wg.Wait()

	var missingResults []*types.Result
	p.resultsMu.Lock()
	if len(p.results) < len(expected) {
		var missing []string
		for id := range expected {
			if _, ok := p.results[id]; !ok {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)

		logSample := missing
		if len(logSample) > 20 {
			logSample = logSample[:20]
		}
		p.cfg.Logger.Debug("requests never completed",
			zap.Strings("missing_request_ids", logSample),
			zap.Int("total_expected", len(expected)), zap.Int("total_completed", len(p.results)))

		// The termination guarantee is that every admitted id has a
		// Result by the time ProcessBatch returns; an id the watchdog
		// never saw complete still gets one here, tagged "missing"
		// rather than silently dropped from the map.
		for _, id := range missing {
			result := &types.Result{
				RequestID: id, Request: byID[id], Success: false,
				ErrorKind:    types.ErrMissing,
				ErrorMessage: "request never completed before the pool drained",
			}
			p.results[id] = result
			missingResults = append(missingResults, result)
		}
	}

	out := make(map[string]*types.Result, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	p.resultsMu.Unlock()

	for _, result := range missingResults {
		p.safeCallback(onResult, result)
	}

	return out
}

func (p *Pool) emit(e types.Event) {
	if p.cfg.Events != nil {
		p.cfg.Events(e)
	}
}

func (p *Pool) allDone(expected map[string]struct{}) bool {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	return len(p.results) >= len(expected)
}

func (p *Pool) workerLoop(ctx context.Context, workerID int, q *requestQueue, onResult func(*types.Result), expected map[string]struct{}) {
	lastWatchdogCheck := time.Now()

	for {
		if p.allDone(expected) {
			return
		}

		req := p.getNextRequest(q)
		if req == nil {
			now := time.Now()
			if now.Sub(lastWatchdogCheck) >= p.cfg.WatchdogInterval {
				p.maybeLogWatchdog(now, expected)
				lastWatchdogCheck = now
			}
			continue
		}

		if !p.checkRateLimit(req, q) {
			continue
		}

		p.limiter.Consume(1)
		p.setPhase(req.ID, types.PhaseDequeued)

		result := p.executeWithCrashIsolation(ctx, req, onResult)
		if result == nil {
			continue // crash already handled; worker stays alive
		}

		p.routeResult(result, req, q, onResult)
	}
}

// getNextRequest blocks up to 0.5s for work, mirroring PriorityQueue's
// get(timeout=0.5).
func (p *Pool) getNextRequest(q *requestQueue) *types.Request {
	if r := q.tryGet(); r != nil {
		return r
	}
	select {
	case <-q.notify:
		return q.tryGet()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

func (p *Pool) maybeLogWatchdog(now time.Time, expected map[string]struct{}) {
	shouldLog := false
	p.watchdogMu.Lock()
	if now.Sub(p.lastWatchdogLog) >= p.cfg.WatchdogLogInterval {
		p.lastWatchdogLog = now
		shouldLog = true
	}
	p.watchdogMu.Unlock()
	if !shouldLog {
		return
	}

	p.resultsMu.Lock()
	completed := len(p.results)
	var missing []string
	if completed < len(expected) {
		for id := range expected {
			if _, ok := p.results[id]; !ok {
				missing = append(missing, id)
				if len(missing) >= 10 {
					break
				}
			}
		}
	}
	p.resultsMu.Unlock()

	if len(missing) > 0 {
		sort.Strings(missing)
		p.cfg.Logger.Debug("watchdog: stuck waiting for missing requests",
			zap.Int("completed", completed), zap.Int("expected", len(expected)),
			zap.Strings("missing_request_ids", missing))
	}
}

func (p *Pool) checkRateLimit(req *types.Request, q *requestQueue) bool {
	if p.limiter.CanExecute() {
		return true
	}

	wait := p.limiter.TimeUntilToken()
	const minWait = 100 * time.Millisecond
	actual := wait
	if actual < minWait {
		actual = minWait
	}

	p.trackingMu.Lock()
	if status, ok := p.active[req.ID]; ok {
		status.Phase = types.PhaseRateLimited
		status.PhaseEnteredAt = time.Now()
		status.RateLimitETA = actual
	}
	p.trackingMu.Unlock()
	p.emit(types.Event{Kind: types.EventRateLimited, Timestamp: time.Now(), RequestID: req.ID, RateLimitETA: actual})

	time.Sleep(actual)
	q.Put(req)
	return false
}

func (p *Pool) setPhase(id string, phase types.RequestPhase) {
	p.trackingMu.Lock()
	defer p.trackingMu.Unlock()
	if status, ok := p.active[id]; ok {
		status.Phase = phase
		status.PhaseEnteredAt = time.Now()
	}
	if phase == types.PhaseExecuting {
		p.emit(types.Event{Kind: types.EventExecuting, Timestamp: time.Now(), RequestID: id})
	} else if phase == types.PhaseDequeued {
		p.emit(types.Event{Kind: types.EventDequeued, Timestamp: time.Now(), RequestID: id})
	}
}

// executeWithCrashIsolation invokes C2 under a thread-level timeout and
// catches worker-loop panics so no worker ever dies with work outstanding.
// Returns nil if the crash path already stored and dispatched a result.
func (p *Pool) executeWithCrashIsolation(ctx context.Context, req *types.Request, onResult func(*types.Result)) (result *types.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.handleWorkerCrash(fmt.Errorf("panic: %v", r), req, onResult)
			result = nil
		}
	}()

	p.setPhase(req.ID, types.PhaseExecuting)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callOutcome struct {
		res      *types.Result
		err      error
		panicVal any
	}
	done := make(chan callOutcome, 1)
	go func() {
		// A panic in the call goroutine is handed back and re-raised on
		// this worker goroutine, where the deferred recover above catches it.
		defer func() {
			if r := recover(); r != nil {
				select {
				case done <- callOutcome{panicVal: r}:
				default:
				}
			}
		}()
		res, err := p.client.Call(callCtx, req)
		select {
		case done <- callOutcome{res, err}:
		default:
		}
	}()

	select {
	case out := <-done:
		if out.panicVal != nil {
			panic(out.panicVal)
		}
		if out.err != nil {
			return &types.Result{
				RequestID: req.ID, Request: req, Success: false,
				ErrorKind: types.ErrUnknown, ErrorMessage: out.err.Error(),
				Attempts: req.RetryCount() + 1,
			}
		}
		return out.res
	case <-callCtx.Done():
		p.cfg.Logger.Error("thread timeout", zap.String("request_id", req.ID), zap.Duration("thread_timeout", timeout))
		return &types.Result{
			RequestID: req.ID, Request: req, Success: false,
			ErrorKind:    types.ErrThreadTimeout,
			ErrorMessage: fmt.Sprintf("thread hung beyond %s timeout", timeout),
			Attempts:     req.RetryCount() + 1,
		}
	}
}

func (p *Pool) handleWorkerCrash(err error, req *types.Request, onResult func(*types.Result)) {
	if req == nil {
		p.cfg.Logger.Debug("worker thread crashed with no request in flight", zap.Error(err))
		return
	}
	result := &types.Result{
		RequestID: req.ID, Request: req, Success: false,
		ErrorKind:    types.ErrWorkerException,
		ErrorMessage: fmt.Sprintf("worker thread exception: %v", err),
		Attempts:     req.RetryCount() + 1,
	}
	p.storeResult(result)
	p.safeCallback(onResult, result)
	p.cfg.Logger.Debug("worker thread crashed with unexpected error",
		zap.String("request_id", req.ID), zap.Error(err))
}

func (p *Pool) storeResult(result *types.Result) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	p.results[result.RequestID] = result
}

func (p *Pool) safeCallback(onResult func(*types.Result), result *types.Result) {
	if onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error("result handler panicked",
				zap.String("request_id", result.RequestID), zap.Any("panic", r))
		}
	}()
	onResult(result)
}

func (p *Pool) jitter() time.Duration {
	lo, hi := p.cfg.RetryJitterMin, p.cfg.RetryJitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
