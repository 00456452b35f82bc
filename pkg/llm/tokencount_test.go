// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_CountsNonZeroForNonEmptyText(t *testing.T) {
	tc := NewTokenCounter()
	assert.Greater(t, tc.Count("the quick brown fox jumps over the lazy dog"), 0)
}

func TestTokenCounter_EmptyTextCountsZero(t *testing.T) {
	tc := NewTokenCounter()
	assert.Equal(t, 0, tc.Count(""))
}

func TestTokenCounter_FallsBackToCharEstimateWithoutEncoder(t *testing.T) {
	tc := &TokenCounter{}
	assert.Equal(t, len("abcdef")/charsPerTokenEstimate, tc.Count("abcdef"))
}

func TestTokenCounter_LongerTextCountsAtLeastAsManyTokens(t *testing.T) {
	tc := NewTokenCounter()
	short := tc.Count("hello")
	long := tc.Count("hello there, this is a considerably longer sentence")
	assert.GreaterOrEqual(t, long, short)
}
