package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/consensus"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/jsonutil"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Participant pairs an agent or judge identity with its adapter and
// sampling settings.
type Participant struct {
	ID           string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Adapter      core.ModelAdapter
}

// RunnerConfig carries the runtime knobs the round runner needs.
type RunnerConfig struct {
	Concurrency        int
	ModelTimeout       time.Duration
	RetryMaxAttempts   int
	RetryBaseDelayMs   int
	RetryMaxDelayMs    int
	Deterministic      bool
	ConsensusThreshold float64
	JudgeThreshold     float64
	JudgeMinConfidence float64
}

// RoundRunner executes one round at a time: a bounded parallel fan-out over
// all participants, schema validation, and consensus evaluation. An
// individual failure becomes an error response and never cancels peers.
type RoundRunner struct {
	agents  []Participant
	judges  []Participant
	prompts *PromptBuilder
	cfg     RunnerConfig
	logger  *logging.Logger
	clock   func() time.Time
}

// NewRoundRunner creates a runner over fixed participant sets.
func NewRoundRunner(agents, judges []Participant, prompts *PromptBuilder, cfg RunnerConfig, logger *logging.Logger) *RoundRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &RoundRunner{
		agents:  agents,
		judges:  judges,
		prompts: prompts,
		cfg:     cfg,
		logger:  logger,
		clock:   time.Now,
	}
}

// AgentRoundOutcome bundles the immutable round record with the accounting
// the orchestrator applies between rounds.
type AgentRoundOutcome struct {
	Result       core.RoundResult
	Decision     consensus.AgentDecision
	Retries      int
	CostUsd      float64
	PricingKnown bool
}

// RunAgentRound executes all agents for one round. The returned result
// always has exactly one response per agent, in participant order, so the
// observable outcome is invariant to completion order.
func (r *RoundRunner) RunAgentRound(ctx context.Context, roundNum int, candidate *consensus.Candidate, history []core.RoundResult) *AgentRoundOutcome {
	responses := make([]core.AgentResponse, len(r.agents))
	var retries atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, agent := range r.agents {
		i, agent := i, agent
		g.Go(func() error {
			responses[i] = r.runAgentCall(ctx, agent, roundNum, candidate, history, &retries)
			return nil
		})
	}
	_ = g.Wait()

	candidateID := ""
	candidateText := ""
	if candidate != nil {
		candidateID = candidate.ID
		candidateText = candidate.Text
	}

	decision := consensus.EvaluateAgentRound(responses, candidateID, r.cfg.ConsensusThreshold)
	result := core.RoundResult{
		RoundNumber:           roundNum,
		CandidatePositionID:   candidateID,
		CandidatePositionText: candidateText,
		Responses:             responses,
		ConsensusReached:      decision.Reached,
		ConsensusMethod:       decision.Method,
		VoteTally:             decision.Tally,
		Timestamp:             r.clock().UTC(),
	}
	if decision.Reached {
		result.ConsensusPositionID = decision.PositionID
		result.ConsensusPositionText = decision.PositionText
	}

	cost, known := r.roundCost(responses)
	return &AgentRoundOutcome{
		Result:       result,
		Decision:     decision,
		Retries:      int(retries.Load()),
		CostUsd:      cost,
		PricingKnown: known,
	}
}

// agentWire is the JSON shape agents must emit.
type agentWire struct {
	Vote             string  `json:"vote"`
	TargetPositionID string  `json:"targetPositionId"`
	NewPositionText  string  `json:"newPositionText"`
	Reasoning        string  `json:"reasoning"`
	Confidence       float64 `json:"confidence"`
}

func (r *RoundRunner) runAgentCall(ctx context.Context, agent Participant, roundNum int, candidate *consensus.Candidate, history []core.RoundResult, retries *atomic.Int64) core.AgentResponse {
	req := core.CallRequest{
		SystemPrompt: r.prompts.AgentSystemPrompt(agent.ID, agent.SystemPrompt),
		UserPrompt:   r.prompts.AgentUserPrompt(roundNum, candidate, history, agent.ID),
		MaxTokens:    agent.MaxTokens,
		Temperature:  agent.Temperature,
		Timeout:      r.cfg.ModelTimeout,
		SchemaHint:   agentSchemaContract,
	}

	result, err := r.call(ctx, agent, req, retries)
	if err != nil {
		r.logger.Warn("agent call failed",
			"agent", agent.ID,
			"round", roundNum,
			"error", err.Error(),
		)
		return core.NewErrorResponse(agent.ID, roundNum, err)
	}

	resp, err := r.normalizeAgentResponse(agent.ID, roundNum, candidate, result)
	if err != nil {
		r.logger.Warn("agent response rejected",
			"agent", agent.ID,
			"round", roundNum,
			"error", err.Error(),
		)
		errResp := core.NewErrorResponse(agent.ID, roundNum, err)
		// The call itself succeeded, so its spend still counts.
		errResp.TokenUsage = result.TokenUsage
		errResp.LatencyMs = result.LatencyMs
		return errResp
	}
	return resp
}

// call runs one adapter exchange through the retry wrapper.
func (r *RoundRunner) call(ctx context.Context, p Participant, req core.CallRequest, retries *atomic.Int64) (*core.CallResult, error) {
	policy := model.NewRetryPolicy(r.cfg.RetryMaxAttempts, r.cfg.RetryBaseDelayMs, r.cfg.RetryMaxDelayMs, r.cfg.Deterministic)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries.Add(1)
		r.logger.Debug("retrying call",
			"participant", p.ID,
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)
	}
	return policy.Call(ctx, p.Adapter, req)
}

// normalizeAgentResponse parses, validates and normalizes raw model output
// into a full AgentResponse.
func (r *RoundRunner) normalizeAgentResponse(agentID string, roundNum int, candidate *consensus.Candidate, result *core.CallResult) (core.AgentResponse, error) {
	raw, err := jsonutil.ParseWithRepair(result.Content, !r.cfg.Deterministic)
	if err != nil {
		return core.AgentResponse{}, core.ErrParse(err.Error())
	}

	var wire agentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return core.AgentResponse{}, core.ErrSchema(fmt.Sprintf("decoding agent response: %v", err))
	}

	vote := core.Vote(wire.Vote)
	if !core.ValidVote(vote) {
		return core.AgentResponse{}, core.ErrSchema(fmt.Sprintf("invalid vote %q", wire.Vote))
	}
	if roundNum == 1 && vote != core.VoteAbstain {
		return core.AgentResponse{}, core.ErrSchema("round 1 requires an abstain vote")
	}
	if wire.Confidence < 0 || wire.Confidence > 1 {
		return core.AgentResponse{}, core.ErrSchema(fmt.Sprintf("confidence %v outside [0,1]", wire.Confidence))
	}
	reasoning := strings.TrimSpace(wire.Reasoning)
	if !core.ValidReasoning(reasoning) {
		return core.AgentResponse{}, core.ErrSchema("reasoning missing or too long")
	}

	resp := core.AgentResponse{
		AgentID:    agentID,
		Round:      roundNum,
		Vote:       vote,
		Reasoning:  reasoning,
		Confidence: wire.Confidence,
		TokenUsage: result.TokenUsage,
		LatencyMs:  result.LatencyMs,
		Status:     core.StatusOK,
	}

	newText := strings.TrimSpace(wire.NewPositionText)
	switch vote {
	case core.VoteYes:
		if candidate == nil {
			return core.AgentResponse{}, core.ErrSchema("yes vote in a round with no candidate")
		}
		if wire.TargetPositionID != candidate.ID {
			return core.AgentResponse{}, core.ErrSchema(fmt.Sprintf(
				"yes vote targets %q, round candidate is %q", wire.TargetPositionID, candidate.ID))
		}
		resp.PositionID = candidate.ID
		resp.PositionText = candidate.Text
	case core.VoteNo:
		if !core.ValidPositionText(newText) {
			return core.AgentResponse{}, core.ErrSchema("no vote requires a fresh newPositionText")
		}
		resp.PositionID = core.NewPositionID(newText)
		resp.PositionText = newText
	default: // abstain
		if roundNum == 1 && !core.ValidPositionText(newText) {
			return core.AgentResponse{}, core.ErrSchema("opening round requires newPositionText")
		}
		if newText != "" {
			if !core.ValidPositionText(newText) {
				return core.AgentResponse{}, core.ErrSchema("newPositionText outside bounds")
			}
			resp.PositionID = core.NewPositionID(newText)
			resp.PositionText = newText
		}
	}

	return resp, nil
}

// JudgeRoundOutcome bundles a judge round record with its accounting.
type JudgeRoundOutcome struct {
	Result       core.JudgeRoundResult
	Decision     consensus.JudgeDecision
	Retries      int
	CostUsd      float64
	PricingKnown bool
}

// RunJudgeRound executes all judges over the fixed positions set.
func (r *RoundRunner) RunJudgeRound(ctx context.Context, roundNum int, positions []core.PositionRef) *JudgeRoundOutcome {
	evaluations := make([]core.JudgeEvaluation, len(r.judges))
	var retries atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, judge := range r.judges {
		i, judge := i, judge
		g.Go(func() error {
			evaluations[i] = r.runJudgeCall(ctx, judge, roundNum, positions, &retries)
			return nil
		})
	}
	_ = g.Wait()

	decision := consensus.EvaluateJudgeRound(evaluations, r.cfg.JudgeThreshold, r.cfg.JudgeMinConfidence)
	result := core.JudgeRoundResult{
		RoundNumber:      roundNum,
		Evaluations:      evaluations,
		ConsensusReached: decision.Reached,
		Dissents:         decision.Dissents,
		Timestamp:        r.clock().UTC(),
	}
	if decision.PositionID != "" {
		result.ConsensusPositionID = decision.PositionID
		result.ConsensusPositionText = positionText(positions, decision.PositionID)
		result.ConsensusConfidence = decision.WinnerMeanConfidence
	}

	cost, known := r.judgeRoundCost(evaluations)
	return &JudgeRoundOutcome{
		Result:       result,
		Decision:     decision,
		Retries:      int(retries.Load()),
		CostUsd:      cost,
		PricingKnown: known,
	}
}

// judgeWire is the JSON shape judges must emit.
type judgeWire struct {
	SelectedPositionID string         `json:"selectedPositionId"`
	Scores             map[string]int `json:"scores"`
	Reasoning          string         `json:"reasoning"`
	Confidence         float64        `json:"confidence"`
}

func (r *RoundRunner) runJudgeCall(ctx context.Context, judge Participant, roundNum int, positions []core.PositionRef, retries *atomic.Int64) core.JudgeEvaluation {
	req := core.CallRequest{
		SystemPrompt: r.prompts.JudgeSystemPrompt(judge.ID),
		UserPrompt:   r.prompts.JudgeUserPrompt(roundNum, positions),
		MaxTokens:    judge.MaxTokens,
		Temperature:  judge.Temperature,
		Timeout:      r.cfg.ModelTimeout,
		SchemaHint:   judgeSchemaContract,
	}

	result, err := r.call(ctx, judge, req, retries)
	if err != nil {
		r.logger.Warn("judge call failed",
			"judge", judge.ID,
			"round", roundNum,
			"error", err.Error(),
		)
		return core.NewErrorEvaluation(judge.ID, roundNum, err)
	}

	eval, err := r.normalizeJudgeEvaluation(judge.ID, roundNum, positions, result)
	if err != nil {
		r.logger.Warn("judge evaluation rejected",
			"judge", judge.ID,
			"round", roundNum,
			"error", err.Error(),
		)
		errEval := core.NewErrorEvaluation(judge.ID, roundNum, err)
		errEval.TokenUsage = result.TokenUsage
		errEval.LatencyMs = result.LatencyMs
		return errEval
	}
	return eval
}

func (r *RoundRunner) normalizeJudgeEvaluation(judgeID string, roundNum int, positions []core.PositionRef, result *core.CallResult) (core.JudgeEvaluation, error) {
	raw, err := jsonutil.ParseWithRepair(result.Content, !r.cfg.Deterministic)
	if err != nil {
		return core.JudgeEvaluation{}, core.ErrParse(err.Error())
	}

	var wire judgeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return core.JudgeEvaluation{}, core.ErrSchema(fmt.Sprintf("decoding judge evaluation: %v", err))
	}

	if wire.Confidence < 0 || wire.Confidence > 1 {
		return core.JudgeEvaluation{}, core.ErrSchema(fmt.Sprintf("confidence %v outside [0,1]", wire.Confidence))
	}
	reasoning := strings.TrimSpace(wire.Reasoning)
	if !core.ValidReasoning(reasoning) {
		return core.JudgeEvaluation{}, core.ErrSchema("reasoning missing or too long")
	}

	known := make(map[string]bool, len(positions))
	for _, p := range positions {
		known[p.ID] = true
	}
	if !known[wire.SelectedPositionID] {
		return core.JudgeEvaluation{}, core.ErrSchema(fmt.Sprintf(
			"selected position %q is not under evaluation", wire.SelectedPositionID))
	}
	// Every judge must score every position presented.
	for _, p := range positions {
		score, ok := wire.Scores[p.ID]
		if !ok {
			return core.JudgeEvaluation{}, core.ErrSchema(fmt.Sprintf("position %s not scored", p.ID))
		}
		if score < 0 || score > 100 {
			return core.JudgeEvaluation{}, core.ErrSchema(fmt.Sprintf("score %d for %s outside [0,100]", score, p.ID))
		}
	}

	return core.JudgeEvaluation{
		JudgeID:            judgeID,
		Round:              roundNum,
		SelectedPositionID: wire.SelectedPositionID,
		ScoresByPositionID: wire.Scores,
		Reasoning:          reasoning,
		Confidence:         wire.Confidence,
		TokenUsage:         result.TokenUsage,
		LatencyMs:          result.LatencyMs,
		Status:             core.StatusOK,
	}, nil
}

func (r *RoundRunner) roundCost(responses []core.AgentResponse) (float64, bool) {
	modelByAgent := make(map[string]string, len(r.agents))
	for _, a := range r.agents {
		modelByAgent[a.ID] = a.Model
	}
	total := 0.0
	known := true
	for _, resp := range responses {
		if resp.TokenUsage.Total == 0 {
			continue
		}
		cost, ok := core.CostUSD(modelByAgent[resp.AgentID], resp.TokenUsage)
		if !ok {
			known = false
			continue
		}
		total += cost
	}
	return total, known
}

func (r *RoundRunner) judgeRoundCost(evals []core.JudgeEvaluation) (float64, bool) {
	modelByJudge := make(map[string]string, len(r.judges))
	for _, j := range r.judges {
		modelByJudge[j.ID] = j.Model
	}
	total := 0.0
	known := true
	for _, eval := range evals {
		if eval.TokenUsage.Total == 0 {
			continue
		}
		cost, ok := core.CostUSD(modelByJudge[eval.JudgeID], eval.TokenUsage)
		if !ok {
			known = false
			continue
		}
		total += cost
	}
	return total, known
}

func positionText(positions []core.PositionRef, id string) string {
	for _, p := range positions {
		if p.ID == id {
			return p.Text
		}
	}
	return ""
}
