// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package multiagent

import (
	"sort"
	"sync"
	"time"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

const (
	// DefaultMaxVisibleAgents is how many agents a host display shows at
	// once when the tracker isn't configured with an explicit cap.
	DefaultMaxVisibleAgents = 10

	// DefaultCompletedAgentDisplaySeconds is how long a completed agent
	// stays in the visible set before being replaced by a still-running
	// one, when the tracker isn't configured with an explicit value.
	DefaultCompletedAgentDisplaySeconds = 3.0
)

// AgentState is one agent's progress as seen by the batch controller.
type AgentState struct {
	AgentID               string
	Status                string // "searching", "found", "not_found"
	CurrentIteration      int
	MaxIterations         int
	LastTool              string
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalReasoningTokens  int
	TotalCostUSD          float64
	StartTime             time.Time
	CompletionTime        time.Time
}

// ProgressTracker aggregates per-agent events into a thread-safe snapshot.
// It intentionally does not render anything; presenting the snapshot is
// the host's job.
type ProgressTracker struct {
	mu sync.Mutex

	totalAgents                  int
	maxVisibleAgents             int
	completedAgentDisplaySeconds float64
	agents                       map[string]*AgentState
	completed                    int
	found                        int
	notFound                     int
	totalCostUSD                 float64
	startTime                    time.Time
}

// NewProgressTracker constructs a tracker for a batch of the given size.
// maxVisibleAgents and completedAgentDisplaySeconds control the visible
// set returned by VisibleAgents; a non-positive maxVisibleAgents or
// negative completedAgentDisplaySeconds falls back to the package
// defaults.
func NewProgressTracker(totalAgents, maxVisibleAgents int, completedAgentDisplaySeconds float64) *ProgressTracker {
	if maxVisibleAgents <= 0 {
		maxVisibleAgents = DefaultMaxVisibleAgents
	}
	if completedAgentDisplaySeconds < 0 {
		completedAgentDisplaySeconds = DefaultCompletedAgentDisplaySeconds
	}
	return &ProgressTracker{
		totalAgents:                  totalAgents,
		maxVisibleAgents:             maxVisibleAgents,
		completedAgentDisplaySeconds: completedAgentDisplaySeconds,
		agents:                       make(map[string]*AgentState, totalAgents),
		startTime:                    time.Now(),
	}
}

// Register adds an agent to be tracked before its Conversation starts.
func (p *ProgressTracker) Register(agentID string, maxIterations int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[agentID] = &AgentState{
		AgentID: agentID, Status: "searching",
		MaxIterations: maxIterations, StartTime: time.Now(),
	}
}

// OnEvent folds one agent-level event into the tracked state. Unknown
// agent ids are ignored: an event that races ahead of Register is
// dropped rather than crashing the tracker.
func (p *ProgressTracker) OnEvent(agentID string, e types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.agents[agentID]
	if !ok {
		return
	}

	switch e.Kind {
	case types.EventIterationStart:
		state.CurrentIteration = e.Iteration

	case types.EventToolCall:
		state.LastTool = e.ToolName

	case types.EventIterationDone:
		state.TotalCostUSD += e.CostDeltaUSD
		state.TotalPromptTokens += e.PromptTokens
		state.TotalCompletionTokens += e.CompletionTokens

	case types.EventAgentComplete:
		// Fired once by pkg/agent itself when the conversation succeeds;
		// the definitive found/not_found status comes from the separate
		// EventAgentStatusFinal event the batch controller emits just
		// after, so completion is only counted here, never the status.
		state.CompletionTime = time.Now()
		state.TotalCostUSD = e.CostDeltaUSD
		p.completed++
		p.totalCostUSD += state.TotalCostUSD

	case types.EventAgentStatusFinal:
		state.Status = e.Status
		state.TotalCostUSD = e.CostDeltaUSD
		if e.Status == "found" {
			p.found++
		} else {
			p.notFound++
		}
	}
}

// Snapshot is a point-in-time copy of the tracker's aggregate state,
// safe to read after the copy without holding any lock.
type Snapshot struct {
	TotalAgents int
	Completed   int
	Found       int
	NotFound    int
	TotalCostUSD float64
	ElapsedSeconds float64
	Agents      []AgentState
}

// Snapshot returns a deep copy of the current aggregate state. Agents is
// the visible set (see VisibleAgents), not every tracked agent: totals
// like Completed/Found/NotFound still reflect the whole batch.
func (p *ProgressTracker) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		TotalAgents: p.totalAgents, Completed: p.completed,
		Found: p.found, NotFound: p.notFound,
		TotalCostUSD: p.totalCostUSD, ElapsedSeconds: time.Since(p.startTime).Seconds(),
		Agents: p.visibleAgentsLocked(),
	}
}

// VisibleAgents returns the subset of tracked agents a host display
// should show right now: every still-searching agent, plus any agent
// that completed within the last completedAgentDisplaySeconds, capped at
// maxVisibleAgents and sorted running-first, then by completion time.
func (p *ProgressTracker) VisibleAgents() []AgentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibleAgentsLocked()
}

func (p *ProgressTracker) visibleAgentsLocked() []AgentState {
	now := time.Now()

	visible := make([]AgentState, 0, len(p.agents))
	for _, s := range p.agents {
		if s.Status == "searching" {
			visible = append(visible, *s)
			continue
		}
		if !s.CompletionTime.IsZero() && now.Sub(s.CompletionTime).Seconds() < p.completedAgentDisplaySeconds {
			visible = append(visible, *s)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		iRunning := visible[i].Status == "searching"
		jRunning := visible[j].Status == "searching"
		if iRunning != jRunning {
			return iRunning
		}
		return visible[i].CompletionTime.Before(visible[j].CompletionTime)
	})

	if len(visible) > p.maxVisibleAgents {
		visible = visible[:p.maxVisibleAgents]
	}
	return visible
}
