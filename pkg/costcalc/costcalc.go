// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package costcalc implements the types.CostCalculator port against a
// static per-model pricing table of per-million-token input/output rates,
// centralized here so pkg/llm, pkg/llm/anthropic and pkg/llm/bedrock price a request
// identically instead of drifting apart.
package costcalc

import "strings"

// Rate is one model's per-token and per-image pricing.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
	PerImage         float64
}

// Table maps a model-id substring to its Rate. Lookup is first-match:
// the first key that appears as a substring of the requested model id
// wins, checked in the order the table was built.
type Table struct {
	order []string
	rates map[string]Rate
	// Fallback is used when no key matches.
	Fallback Rate
}

// Default returns the built-in pricing table, covering the Claude model
// families the agent and batch engine are expected to drive.
func Default() *Table {
	t := &Table{rates: map[string]Rate{}}
	t.add("claude-haiku-4", Rate{InputPerMillion: 0.8, OutputPerMillion: 4.0})
	t.add("claude-sonnet-4", Rate{InputPerMillion: 3.0, OutputPerMillion: 15.0})
	t.add("claude-opus-4", Rate{InputPerMillion: 15.0, OutputPerMillion: 75.0, PerImage: 0.024})
	// Fallback is zero-cost: an unpriced model must never silently bill
	// at another model's rate, matching the original CostCalculator's
	// "no pricing entry -> 0.0" behavior.
	t.Fallback = Rate{}
	return t
}

func (t *Table) add(modelSubstr string, r Rate) {
	t.order = append(t.order, modelSubstr)
	t.rates[modelSubstr] = r
}

// Put overrides or adds a rate for modelSubstr, for hosts that need to
// price a model Default doesn't know about without forking the table.
func (t *Table) Put(modelSubstr string, r Rate) {
	if _, ok := t.rates[modelSubstr]; !ok {
		t.order = append(t.order, modelSubstr)
	}
	t.rates[modelSubstr] = r
}

func (t *Table) rateFor(modelID string) Rate {
	for _, key := range t.order {
		if strings.Contains(modelID, key) {
			return t.rates[key]
		}
	}
	return t.Fallback
}

// Cost implements types.CostCalculator.
func (t *Table) Cost(modelID string, promptTokens, completionTokens, images int) float64 {
	r := t.rateFor(modelID)
	promptCost := float64(promptTokens) * r.InputPerMillion / 1_000_000
	completionCost := float64(completionTokens) * r.OutputPerMillion / 1_000_000
	imageCost := float64(images) * r.PerImage
	return promptCost + completionCost + imageCost
}
