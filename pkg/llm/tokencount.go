// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts from raw text using tiktoken's
// cl100k_base encoding, a close approximation for Claude models (which
// don't expose their own public tokenizer). Used only for display
// telemetry (streaming tokens-per-second, the ETA heuristic) and as the
// fallback usage estimate when a provider's response carries no usage
// block — never for billing, which goes through CostCalculator against
// whatever usage figures are available.
type TokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter builds a TokenCounter. If the encoding table can't be
// loaded, Count falls back to charsPerTokenEstimate, the same degraded
// mode the teacher's equivalent counter uses.
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoder: enc}
}

// Count returns text's estimated token count.
func (tc *TokenCounter) Count(text string) int {
	if tc.encoder == nil {
		return len(text) / charsPerTokenEstimate
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}
