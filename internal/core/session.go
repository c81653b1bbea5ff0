package core

import (
	"time"

	"github.com/google/uuid"
)

// SpecVersion is the output/checkpoint format version. Checkpoint loading
// requires an exact match.
const SpecVersion = "agora/1"

// EngineVersion identifies the engine build that produced a document.
var EngineVersion = "0.3.0"

// VerdictSource names which mechanism produced the final verdict.
type VerdictSource string

const (
	SourceAgentConsensus VerdictSource = "agent_consensus"
	SourceJudgeConsensus VerdictSource = "judge_consensus"
	SourceDeadlock       VerdictSource = "deadlock"
)

// FinalVerdict is the single auditable outcome of a session. For deadlock
// the position may be absent; for the consensus sources it must reference a
// position seen during the session.
type FinalVerdict struct {
	PositionID   string        `json:"positionId,omitempty"`
	PositionText string        `json:"positionText,omitempty"`
	Confidence   float64       `json:"confidence"`
	Source       VerdictSource `json:"source"`
}

// SessionMetadata accumulates counters and bookkeeping over the run.
type SessionMetadata struct {
	EngineVersion  string     `json:"engineVersion"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	TotalTokens    int        `json:"totalTokens"`
	TotalCostUsd   float64    `json:"totalCostUsd"`
	PricingKnown   bool       `json:"pricingKnown"`
	CheckpointPath string     `json:"checkpointPath,omitempty"`
	TotalRetries   int        `json:"totalRetries"`
	TotalErrors    int        `json:"totalErrors"`
}

// DebateSession is the complete record of one debate. Owned exclusively by
// the state manager; rounds are appended and never mutated after append.
type DebateSession struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	InitialQuery string             `json:"initialQuery,omitempty"`
	Phase        Phase              `json:"phase"`
	AgentRounds  []RoundResult      `json:"agentRounds"`
	JudgeRounds  []JudgeRoundResult `json:"judgeRounds"`
	FinalVerdict *FinalVerdict      `json:"finalVerdict,omitempty"`
	Metadata     SessionMetadata    `json:"metadata"`
}

// NewSessionID generates a time-ordered UUIDv7. Falls back to a random v4
// only if the system clock source is unavailable to the uuid package.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewDebateSession creates a fresh session in the init phase.
func NewDebateSession(topic, initialQuery string, now time.Time) *DebateSession {
	return &DebateSession{
		ID:           NewSessionID(),
		Topic:        topic,
		InitialQuery: initialQuery,
		Phase:        PhaseInit,
		AgentRounds:  make([]RoundResult, 0),
		JudgeRounds:  make([]JudgeRoundResult, 0),
		Metadata: SessionMetadata{
			EngineVersion: EngineVersion,
			StartedAt:     now.UTC(),
			PricingKnown:  true,
		},
	}
}

// PositionRef pairs a position ID with the first-seen text for that ID.
type PositionRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PositionsScope selects which rounds contribute to the judge positions set.
type PositionsScope string

const (
	ScopeAllRounds PositionsScope = "all_rounds"
	ScopeLastRound PositionsScope = "last_round"
)

// CollectPositions gathers the distinct positions from eligible responses in
// scope, preserving the first-seen text per ID. Order of the result is
// first-seen order; callers needing determinism across input orderings sort
// by ID.
func (s *DebateSession) CollectPositions(scope PositionsScope) []PositionRef {
	rounds := s.AgentRounds
	if scope == ScopeLastRound && len(rounds) > 0 {
		rounds = rounds[len(rounds)-1:]
	}

	seen := make(map[string]bool)
	refs := make([]PositionRef, 0)
	for _, round := range rounds {
		for _, resp := range round.Responses {
			if !resp.Eligible() || resp.PositionID == "" {
				continue
			}
			if seen[resp.PositionID] {
				continue
			}
			seen[resp.PositionID] = true
			refs = append(refs, PositionRef{ID: resp.PositionID, Text: resp.PositionText})
		}
	}
	return refs
}

// HasPosition reports whether the given position ID appeared in any round.
func (s *DebateSession) HasPosition(id string) bool {
	if id == "" {
		return false
	}
	for _, round := range s.AgentRounds {
		if round.CandidatePositionID == id {
			return true
		}
		for _, resp := range round.Responses {
			if resp.PositionID == id {
				return true
			}
		}
	}
	return false
}
