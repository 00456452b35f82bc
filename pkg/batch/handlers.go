// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package batch

import (
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// routeResult dispatches one execution outcome to success, retry, or
// permanent-failure handling.
func (p *Pool) routeResult(result *types.Result, req *types.Request, q *requestQueue, onResult func(*types.Result)) {
	result.Attempts = req.RetryCount() + 1

	if result.Success {
		p.handleSuccess(result, onResult)
		return
	}

	if result.ErrorKind == types.ErrRateLimit {
		p.limiter.RecordRetryAfter(result.RetryAfter)
	}

	if types.IsRetryable(result.ErrorKind) && req.RetryCount() < p.maxRetriesFor(result.ErrorKind) {
		p.handleRetry(result, req, q)
		return
	}

	p.handlePermanentFailure(result, onResult)
}

func (p *Pool) maxRetriesFor(kind types.ErrorKind) int {
	if kind == types.ErrJSONParse && p.cfg.JSONParseMaxRetries > 0 {
		return p.cfg.JSONParseMaxRetries
	}
	return p.cfg.MaxRetries
}

func (p *Pool) handleSuccess(result *types.Result, onResult func(*types.Result)) {
	p.trackingMu.Lock()
	delete(p.active, result.RequestID)
	p.trackingMu.Unlock()

	p.storeResult(result)
	p.emit(types.Event{Kind: types.EventCompleted, Timestamp: time.Now(), RequestID: result.RequestID})
	p.safeCallback(onResult, result)
}

func (p *Pool) handleRetry(result *types.Result, req *types.Request, q *requestQueue) {
	req.IncrementRetry()
	wait := p.jitter()

	p.trackingMu.Lock()
	if status, ok := p.active[req.ID]; ok {
		status.Phase = types.PhaseQueued
		status.PhaseEnteredAt = time.Now()
		status.RetryCount = req.RetryCount()
	}
	p.trackingMu.Unlock()

	p.cfg.Logger.Debug("retrying request",
		zap.String("request_id", req.ID), zap.String("error_kind", string(result.ErrorKind)),
		zap.Int("retry_count", req.RetryCount()), zap.Duration("jitter", wait))
	p.emit(types.Event{Kind: types.EventRetryQueued, Timestamp: time.Now(), RequestID: req.ID, RetryCount: req.RetryCount()})

	time.Sleep(wait)
	req.Stamp(time.Now())
	q.Put(req)
}

func (p *Pool) handlePermanentFailure(result *types.Result, onResult func(*types.Result)) {
	if types.IsRetryable(result.ErrorKind) {
		result.ErrorKind = result.ErrorKind.WithMaxRetriesExceeded()
	}

	p.trackingMu.Lock()
	delete(p.active, result.RequestID)
	p.trackingMu.Unlock()

	p.storeResult(result)
	p.emit(types.Event{Kind: types.EventFailed, Timestamp: time.Now(), RequestID: result.RequestID, ErrorKind: result.ErrorKind})
	p.safeCallback(onResult, result)
}
