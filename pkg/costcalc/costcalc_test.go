// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package costcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

func TestDefault_PicksRateByModelSubstring(t *testing.T) {
	table := Default()

	sonnet := table.Cost("claude-sonnet-4-20250514", 1_000_000, 0, 0)
	assert.InDelta(t, 3.0, sonnet, 1e-9)

	haiku := table.Cost("claude-haiku-4-20250514", 0, 1_000_000, 0)
	assert.InDelta(t, 4.0, haiku, 1e-9)

	opus := table.Cost("claude-opus-4-20250514", 0, 0, 0)
	assert.InDelta(t, 0.0, opus, 1e-9)
}

func TestDefault_PerImageSurcharge(t *testing.T) {
	table := Default()
	cost := table.Cost("claude-opus-4-20250514", 0, 0, 2)
	assert.InDelta(t, 0.048, cost, 1e-9)
}

func TestDefault_UnknownModelReturnsZero(t *testing.T) {
	table := Default()
	fallbackCost := table.Cost("some-unlisted-model", 1_000_000, 500_000, 3)
	assert.Zero(t, fallbackCost)
}

func TestPut_OverridesAndExtendsTable(t *testing.T) {
	table := Default()
	table.Put("custom-model", Rate{InputPerMillion: 1.0, OutputPerMillion: 2.0})

	cost := table.Cost("custom-model-v1", 1_000_000, 1_000_000, 0)
	assert.InDelta(t, 3.0, cost, 1e-9)
}

func TestTable_SatisfiesCostCalculatorPort(t *testing.T) {
	var _ types.CostCalculator = Default()
}
