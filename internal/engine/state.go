// Package engine drives debates: prompt construction, the concurrent round
// runner, session state, checkpointing and the two-phase orchestration
// loop.
package engine

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// SessionState owns the DebateSession record. Only the orchestrator calls
// into it, strictly between rounds; rounds are immutable after append.
// Illegal phase transitions and double verdicts are programmer errors and
// panic — the process must abort rather than record state it cannot have
// legally reached.
type SessionState struct {
	session *core.DebateSession
	logger  *logging.Logger
	clock   func() time.Time
}

// NewSessionState wraps a session.
func NewSessionState(session *core.DebateSession, logger *logging.Logger) *SessionState {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionState{
		session: session,
		logger:  logger,
		clock:   time.Now,
	}
}

// Session exposes the owned record. Callers must treat it as read-only.
func (s *SessionState) Session() *core.DebateSession {
	return s.session
}

// Phase returns the current phase.
func (s *SessionState) Phase() core.Phase {
	return s.session.Phase
}

// Transition moves the session along a legal edge of the phase DAG. Any
// other edge panics. Entering a terminal phase stamps completedAt.
func (s *SessionState) Transition(to core.Phase) {
	from := s.session.Phase
	if !core.CanTransition(from, to) {
		panic(core.ErrState(core.CodeBadTransition,
			fmt.Sprintf("illegal phase transition %s -> %s", from, to)))
	}
	s.session.Phase = to
	s.logger.Info("phase transition", "from", from.String(), "to", to.String())

	if to.Terminal() {
		now := s.clock().UTC()
		if now.Before(s.session.Metadata.StartedAt) {
			now = s.session.Metadata.StartedAt
		}
		s.session.Metadata.CompletedAt = &now
	}
}

// AppendAgentRound appends an immutable round record and accumulates the
// session counters. Round numbers must strictly increase and no agent may
// appear twice within a round.
func (s *SessionState) AppendAgentRound(result core.RoundResult, costUsd float64, pricingKnown bool) {
	if n := len(s.session.AgentRounds); n > 0 {
		if prev := s.session.AgentRounds[n-1].RoundNumber; result.RoundNumber <= prev {
			panic(core.ErrState(core.CodeBadTransition,
				fmt.Sprintf("agent round %d does not follow %d", result.RoundNumber, prev)))
		}
	}
	seen := make(map[string]bool, len(result.Responses))
	for _, resp := range result.Responses {
		if seen[resp.AgentID] {
			panic(core.ErrState(core.CodeBadTransition,
				fmt.Sprintf("agent %s appears twice in round %d", resp.AgentID, result.RoundNumber)))
		}
		seen[resp.AgentID] = true
	}

	s.session.AgentRounds = append(s.session.AgentRounds, result)
	for _, resp := range result.Responses {
		s.session.Metadata.TotalTokens += resp.TokenUsage.Total
		if resp.Status == core.StatusError {
			s.session.Metadata.TotalErrors++
		}
	}
	s.applyCost(costUsd, pricingKnown)
}

// AppendJudgeRound appends a judge round record and accumulates counters.
func (s *SessionState) AppendJudgeRound(result core.JudgeRoundResult, costUsd float64, pricingKnown bool) {
	if n := len(s.session.JudgeRounds); n > 0 {
		if prev := s.session.JudgeRounds[n-1].RoundNumber; result.RoundNumber <= prev {
			panic(core.ErrState(core.CodeBadTransition,
				fmt.Sprintf("judge round %d does not follow %d", result.RoundNumber, prev)))
		}
	}
	s.session.JudgeRounds = append(s.session.JudgeRounds, result)
	for _, eval := range result.Evaluations {
		s.session.Metadata.TotalTokens += eval.TokenUsage.Total
		if eval.Status == core.StatusError {
			s.session.Metadata.TotalErrors++
		}
	}
	s.applyCost(costUsd, pricingKnown)
}

func (s *SessionState) applyCost(costUsd float64, pricingKnown bool) {
	s.session.Metadata.TotalCostUsd += costUsd
	if !pricingKnown {
		s.session.Metadata.PricingKnown = false
	}
}

// AddRetries accumulates retry-wrapper attempts after the first.
func (s *SessionState) AddRetries(n int) {
	s.session.Metadata.TotalRetries += n
}

// SetVerdict records the final verdict exactly once. Consensus sources must
// reference a position seen in the session; a consensus verdict with no
// yes-voters violates the tally rule upstream and panics here.
func (s *SessionState) SetVerdict(v core.FinalVerdict) {
	if s.session.FinalVerdict != nil {
		panic(core.ErrState(core.CodeVerdictConflict, "final verdict already set"))
	}
	if v.Source != core.SourceDeadlock && !s.session.HasPosition(v.PositionID) {
		panic(core.ErrState(core.CodeEmptyConsensus,
			fmt.Sprintf("%s verdict references unknown position %q", v.Source, v.PositionID)))
	}
	s.session.FinalVerdict = &v
	s.logger.Info("final verdict",
		"source", string(v.Source),
		"position_id", v.PositionID,
		"confidence", v.Confidence,
	)
}

// SetCheckpointPath records where the session checkpoints to.
func (s *SessionState) SetCheckpointPath(path string) {
	s.session.Metadata.CheckpointPath = path
}
