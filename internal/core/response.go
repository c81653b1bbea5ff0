package core

import (
	"fmt"
	"time"
)

// Vote is an agent's stance on the round's candidate position.
type Vote string

const (
	VoteYes     Vote = "yes"
	VoteNo      Vote = "no"
	VoteAbstain Vote = "abstain"
)

// ValidVote checks if a vote string is valid.
func ValidVote(v Vote) bool {
	switch v {
	case VoteYes, VoteNo, VoteAbstain:
		return true
	default:
		return false
	}
}

// ResponseStatus marks a response as usable or failed.
type ResponseStatus string

const (
	StatusOK    ResponseStatus = "ok"
	StatusError ResponseStatus = "error"
)

// TokenUsage accounts for one adapter call. Total must be at least
// prompt+completion; adapters that cannot read true usage estimate and set
// Estimated.
type TokenUsage struct {
	Prompt     int  `json:"prompt"`
	Completion int  `json:"completion"`
	Total      int  `json:"total"`
	Estimated  bool `json:"estimated"`
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
	u.Estimated = u.Estimated || other.Estimated
}

// Valid reports whether the usage satisfies total >= prompt+completion.
func (u TokenUsage) Valid() bool {
	return u.Prompt >= 0 && u.Completion >= 0 && u.Total >= u.Prompt+u.Completion
}

// AgentResponse is one agent's contribution to one round. Error responses
// carry vote=abstain, no position ID, empty texts and zero confidence so
// that a round always has full cardinality.
type AgentResponse struct {
	AgentID      string         `json:"agentId"`
	Round        int            `json:"round"`
	PositionID   string         `json:"positionId,omitempty"` // empty means null (error response)
	PositionText string         `json:"positionText"`
	Reasoning    string         `json:"reasoning"`
	Vote         Vote           `json:"vote"`
	Confidence   float64        `json:"confidence"`
	TokenUsage   TokenUsage     `json:"tokenUsage"`
	LatencyMs    int64          `json:"latencyMs"`
	Status       ResponseStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}

// NewErrorResponse builds the recovery response recorded when a participant
// failed for the round.
func NewErrorResponse(agentID string, round int, err error) AgentResponse {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return AgentResponse{
		AgentID:    agentID,
		Round:      round,
		Vote:       VoteAbstain,
		Confidence: 0,
		Status:     StatusError,
		Error:      msg,
	}
}

// Eligible reports whether the response counts toward tallies and candidate
// selection.
func (r AgentResponse) Eligible() bool {
	return r.Status == StatusOK
}

// Validate checks the structural invariants of a response.
func (r AgentResponse) Validate() error {
	if r.AgentID == "" {
		return ErrValidation("EMPTY_AGENT_ID", "response has no agent id")
	}
	if !ValidVote(r.Vote) {
		return ErrValidation("BAD_VOTE", fmt.Sprintf("invalid vote %q", r.Vote))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrValidation("BAD_CONFIDENCE", fmt.Sprintf("confidence %v outside [0,1]", r.Confidence))
	}
	if !r.TokenUsage.Valid() {
		return ErrValidation("BAD_TOKEN_USAGE", "token usage total < prompt+completion")
	}
	if r.Status == StatusError {
		if r.Vote != VoteAbstain || r.PositionID != "" || r.Confidence != 0 {
			return ErrValidation("BAD_ERROR_RESPONSE", "error response must abstain with no position and zero confidence")
		}
	}
	return nil
}

// VoteTally summarizes the votes of a round. Abstains are excluded from the
// voting total; the supermajority check runs against votingTotal.
type VoteTally struct {
	Yes                    int  `json:"yes"`
	No                     int  `json:"no"`
	Abstain                int  `json:"abstain"`
	Total                  int  `json:"total"`
	Eligible               int  `json:"eligible"`
	VotingTotal            int  `json:"votingTotal"`
	SupermajorityThreshold int  `json:"supermajorityThreshold"`
	SupermajorityReached   bool `json:"supermajorityReached"`
}

// ConsensusMethod names how a round's consensus was reached.
type ConsensusMethod string

const (
	MethodUnanimous     ConsensusMethod = "unanimous"
	MethodSupermajority ConsensusMethod = "supermajority"
)

// RoundResult is the immutable record of one agent round. Appended to the
// session and never mutated afterwards.
type RoundResult struct {
	RoundNumber           int             `json:"roundNumber"`
	CandidatePositionID   string          `json:"candidatePositionId,omitempty"`
	CandidatePositionText string          `json:"candidatePositionText,omitempty"`
	Responses             []AgentResponse `json:"responses"`
	ConsensusReached      bool            `json:"consensusReached"`
	ConsensusMethod       ConsensusMethod `json:"consensusMethod,omitempty"`
	ConsensusPositionID   string          `json:"consensusPositionId,omitempty"`
	ConsensusPositionText string          `json:"consensusPositionText,omitempty"`
	VoteTally             VoteTally       `json:"voteTally"`
	Timestamp             time.Time       `json:"timestamp"`
}

// JudgeEvaluation is one judge's scoring of the positions set. Every judge
// must score every position presented.
type JudgeEvaluation struct {
	JudgeID            string         `json:"judgeId"`
	Round              int            `json:"round"`
	SelectedPositionID string         `json:"selectedPositionId,omitempty"`
	ScoresByPositionID map[string]int `json:"scoresByPositionId"`
	Reasoning          string         `json:"reasoning"`
	Confidence         float64        `json:"confidence"`
	TokenUsage         TokenUsage     `json:"tokenUsage"`
	LatencyMs          int64          `json:"latencyMs"`
	Status             ResponseStatus `json:"status"`
	Error              string         `json:"error,omitempty"`
}

// NewErrorEvaluation builds the recovery evaluation for a failed judge.
func NewErrorEvaluation(judgeID string, round int, err error) JudgeEvaluation {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return JudgeEvaluation{
		JudgeID:    judgeID,
		Round:      round,
		Status:     StatusError,
		Error:      msg,
		Confidence: 0,
	}
}

// Eligible reports whether the evaluation counts toward the judge tally.
func (e JudgeEvaluation) Eligible() bool {
	return e.Status == StatusOK && e.SelectedPositionID != ""
}

// JudgeRoundResult is the immutable record of one judge round.
type JudgeRoundResult struct {
	RoundNumber           int               `json:"roundNumber"`
	Evaluations           []JudgeEvaluation `json:"evaluations"`
	ConsensusReached      bool              `json:"consensusReached"`
	ConsensusPositionID   string            `json:"consensusPositionId,omitempty"`
	ConsensusPositionText string            `json:"consensusPositionText,omitempty"`
	ConsensusConfidence   float64           `json:"consensusConfidence"`
	Dissents              []string          `json:"dissents,omitempty"` // judge IDs voting against the winner
	Timestamp             time.Time         `json:"timestamp"`
}
