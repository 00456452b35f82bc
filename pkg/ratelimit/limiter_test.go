// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanExecute_FullBucketAllowsImmediately(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60})
	assert.True(t, l.CanExecute())
}

func TestConsume_DrainsThenWaits(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60}) // 1 token/sec

	// Drain the initial burst instantly.
	for i := 0; i < 60; i++ {
		l.TryConsume(1)
	}
	require.False(t, l.TryConsume(1), "bucket should be empty after draining capacity")

	start := time.Now()
	waited := l.Consume(1)
	elapsed := time.Since(start)

	assert.Greater(t, waited, time.Duration(0))
	// Should have actually slept roughly the reported wait, within slack.
	assert.InDelta(t, waited.Seconds(), elapsed.Seconds(), 0.25)
}

func TestConsume_NeverExceedsCapacityAfterRefill(t *testing.T) {
	l := New(Config{RequestsPerMinute: 120})
	time.Sleep(50 * time.Millisecond)
	status := l.Status()
	assert.LessOrEqual(t, status.TokensAvailable, status.TokensLimit)
}

func TestRecordRetryAfter_ZeroesBucket(t *testing.T) {
	l := New(Config{RequestsPerMinute: 150})
	require.True(t, l.CanExecute())

	l.RecordRetryAfter(2 * time.Second)
	assert.False(t, l.CanExecute())
}

func TestAdjustLimit_ScalesTokensProportionally(t *testing.T) {
	l := New(Config{RequestsPerMinute: 100})
	l.AdjustLimit(50)
	status := l.Status()
	assert.Equal(t, 50, status.TokensLimit)
	assert.LessOrEqual(t, status.TokensAvailable, 50)
}

func TestReset_RestoresFullBucketAndClearsCounters(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60})
	l.TryConsume(10)
	l.Reset()

	status := l.Status()
	assert.Equal(t, int64(0), status.TotalConsumed)
	assert.Equal(t, 60, status.TokensAvailable)
}
