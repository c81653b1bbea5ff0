package engine

import (
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func newTestState(t *testing.T) *SessionState {
	t.Helper()
	session := core.NewDebateSession("topic", "", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	state := NewSessionState(session, nil)
	state.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return state
}

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	fn()
}

func TestTransition_LegalPath(t *testing.T) {
	state := newTestState(t)
	state.Transition(core.PhaseAgentDebate)
	state.Transition(core.PhaseJudgeEvaluation)
	state.Transition(core.PhaseConsensusReached)

	if state.Phase() != core.PhaseConsensusReached {
		t.Errorf("phase = %s", state.Phase())
	}
	meta := state.Session().Metadata
	if meta.CompletedAt == nil {
		t.Fatal("completedAt not stamped on terminal transition")
	}
	if meta.CompletedAt.Before(meta.StartedAt) {
		t.Error("completedAt before startedAt")
	}
}

func TestTransition_IllegalPanics(t *testing.T) {
	state := newTestState(t)
	expectPanic(t, func() { state.Transition(core.PhaseConsensusReached) })

	state = newTestState(t)
	state.Transition(core.PhaseAgentDebate)
	expectPanic(t, func() { state.Transition(core.PhaseInit) })

	state = newTestState(t)
	state.Transition(core.PhaseAgentDebate)
	state.Transition(core.PhaseDeadlock)
	expectPanic(t, func() { state.Transition(core.PhaseConsensusReached) })
}

func roundWith(num int, responses ...core.AgentResponse) core.RoundResult {
	return core.RoundResult{RoundNumber: num, Responses: responses, Timestamp: time.Now().UTC()}
}

func TestAppendAgentRound_Counters(t *testing.T) {
	state := newTestState(t)
	state.Transition(core.PhaseAgentDebate)

	ok := core.AgentResponse{
		AgentID:    "a1",
		Round:      1,
		Vote:       core.VoteAbstain,
		Status:     core.StatusOK,
		TokenUsage: core.TokenUsage{Prompt: 100, Completion: 50, Total: 150},
	}
	errResp := core.NewErrorResponse("a2", 1, nil)

	state.AppendAgentRound(roundWith(1, ok, errResp), 0.02, true)
	state.AddRetries(3)

	meta := state.Session().Metadata
	if meta.TotalTokens != 150 {
		t.Errorf("totalTokens = %d", meta.TotalTokens)
	}
	if meta.TotalErrors != 1 {
		t.Errorf("totalErrors = %d", meta.TotalErrors)
	}
	if meta.TotalRetries != 3 {
		t.Errorf("totalRetries = %d", meta.TotalRetries)
	}
	if meta.TotalCostUsd != 0.02 {
		t.Errorf("totalCostUsd = %v", meta.TotalCostUsd)
	}
	if !meta.PricingKnown {
		t.Error("pricingKnown flipped without cause")
	}

	state.AppendAgentRound(roundWith(2, ok), 0, false)
	if state.Session().Metadata.PricingKnown {
		t.Error("pricingKnown must latch false")
	}
}

func TestAppendAgentRound_MonotonicRounds(t *testing.T) {
	state := newTestState(t)
	state.Transition(core.PhaseAgentDebate)
	state.AppendAgentRound(roundWith(1), 0, true)
	expectPanic(t, func() { state.AppendAgentRound(roundWith(1), 0, true) })
}

func TestAppendAgentRound_DuplicateAgent(t *testing.T) {
	state := newTestState(t)
	state.Transition(core.PhaseAgentDebate)
	dup := core.AgentResponse{AgentID: "a1", Vote: core.VoteAbstain, Status: core.StatusOK}
	expectPanic(t, func() { state.AppendAgentRound(roundWith(1, dup, dup), 0, true) })
}

func TestSetVerdict_Once(t *testing.T) {
	state := newTestState(t)
	state.Transition(core.PhaseAgentDebate)

	id := core.NewPositionID("winner")
	state.AppendAgentRound(roundWith(1, core.AgentResponse{
		AgentID: "a1", Vote: core.VoteAbstain, Status: core.StatusOK,
		PositionID: id, PositionText: "winner",
	}), 0, true)

	state.SetVerdict(core.FinalVerdict{PositionID: id, PositionText: "winner", Source: core.SourceAgentConsensus, Confidence: 0.9})
	expectPanic(t, func() {
		state.SetVerdict(core.FinalVerdict{Source: core.SourceDeadlock})
	})
}

func TestSetVerdict_UnknownPositionPanics(t *testing.T) {
	state := newTestState(t)
	expectPanic(t, func() {
		state.SetVerdict(core.FinalVerdict{PositionID: "deadbeef0000", Source: core.SourceAgentConsensus})
	})
}

func TestSetVerdict_DeadlockMayBeEmpty(t *testing.T) {
	state := newTestState(t)
	state.SetVerdict(core.FinalVerdict{Source: core.SourceDeadlock})
	if state.Session().FinalVerdict == nil {
		t.Fatal("verdict not recorded")
	}
}
