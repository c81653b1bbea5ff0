package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/consensus"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Orchestrator drives the two-phase debate loop: bounded agent rounds,
// optional judge escalation, checkpointing after every round, and output
// assembly.
type Orchestrator struct {
	cfg    *config.Config
	state  *SessionState
	runner *RoundRunner
	store  core.SessionStore
	logger *logging.Logger
	clock  func() time.Time
}

// Option configures an orchestrator.
type Option func(*Orchestrator)

// WithStore attaches a session archive; terminal sessions are saved to it
// best-effort.
func WithStore(store core.SessionStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = clock
		o.state.clock = clock
		o.runner.clock = clock
	}
}

// New creates an orchestrator for a fresh session. The config must already
// be normalized and validated.
func New(cfg *config.Config, registry *model.Registry, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	session := core.NewDebateSession(cfg.Topic, cfg.InitialQuery, time.Now())
	return newOrchestrator(cfg, session, registry, logger, opts...)
}

// NewFromCheckpoint creates an orchestrator resuming a verified checkpoint.
// Counters are recomputed from the recorded rounds; retry counts from the
// interrupted run are not recoverable and restart at zero.
func NewFromCheckpoint(cp *Checkpoint, registry *model.Registry, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cp.Phase.Terminal() {
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("session %s already completed in phase %s", cp.SessionID, cp.Phase))
	}

	cfg := cp.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session := core.NewDebateSession(cfg.Topic, cfg.InitialQuery, time.Now())
	session.ID = cp.SessionID
	session.Phase = cp.Phase
	session.AgentRounds = cp.AgentRounds
	session.JudgeRounds = cp.JudgeRounds
	for _, round := range cp.AgentRounds {
		for _, resp := range round.Responses {
			session.Metadata.TotalTokens += resp.TokenUsage.Total
			if resp.Status == core.StatusError {
				session.Metadata.TotalErrors++
			}
		}
	}
	for _, round := range cp.JudgeRounds {
		for _, eval := range round.Evaluations {
			session.Metadata.TotalTokens += eval.TokenUsage.Total
			if eval.Status == core.StatusError {
				session.Metadata.TotalErrors++
			}
		}
	}

	return newOrchestrator(cfg, session, registry, logger, opts...)
}

func newOrchestrator(cfg *config.Config, session *core.DebateSession, registry *model.Registry, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	agents, err := buildParticipants(cfg.Agents, registry)
	if err != nil {
		return nil, err
	}
	judges, err := buildParticipants(cfg.Judges, registry)
	if err != nil {
		return nil, err
	}

	prompts := &PromptBuilder{
		Topic:           cfg.Topic,
		InitialQuery:    cfg.InitialQuery,
		Topology:        core.ContextTopology(cfg.ContextTopology),
		MaxContextChars: cfg.Limits.MaxContextTokens * 4,
	}
	runnerCfg := RunnerConfig{
		Concurrency:        cfg.Concurrency.MaxConcurrentRequests,
		ModelTimeout:       time.Duration(cfg.Timeouts.ModelMs) * time.Millisecond,
		RetryMaxAttempts:   cfg.Retries.MaxAttempts,
		RetryBaseDelayMs:   cfg.Retries.BaseDelayMs,
		RetryMaxDelayMs:    cfg.Retries.MaxDelayMs,
		Deterministic:      cfg.DeterministicMode,
		ConsensusThreshold: cfg.ConsensusThreshold,
		JudgeThreshold:     cfg.JudgeConsensusThreshold,
		JudgeMinConfidence: cfg.JudgeMinConfidence,
	}

	sessionLogger := logger.WithSession(session.ID)
	o := &Orchestrator{
		cfg:    cfg,
		state:  NewSessionState(session, sessionLogger),
		runner: NewRoundRunner(agents, judges, prompts, runnerCfg, sessionLogger),
		logger: sessionLogger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func buildParticipants(configs []config.ParticipantConfig, registry *model.Registry) ([]Participant, error) {
	participants := make([]Participant, 0, len(configs))
	for _, pc := range configs {
		adapter, err := registry.Get(pc)
		if err != nil {
			return nil, err
		}
		participants = append(participants, Participant{
			ID:           pc.ID,
			Model:        adapter.Model(),
			SystemPrompt: pc.SystemPrompt,
			Temperature:  pc.Temperature,
			MaxTokens:    pc.MaxTokens,
			Adapter:      adapter,
		})
	}
	return participants, nil
}

// Session exposes the session record for inspection after Run.
func (o *Orchestrator) Session() *core.DebateSession {
	return o.state.Session()
}

// Run drives the debate to a terminal phase and assembles the output
// document. On fatal errors (limits, round timeout) the partial output is
// still returned alongside the error.
func (o *Orchestrator) Run(ctx context.Context) (*DebateOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Timeouts.SessionMs)*time.Millisecond)
	defer cancel()

	if o.state.Phase() == core.PhaseInit {
		o.state.Transition(core.PhaseAgentDebate)
	}

	var err error
	if o.state.Phase() == core.PhaseAgentDebate {
		err = o.runAgentPhase(ctx)
	}
	if err == nil && o.state.Phase() == core.PhaseJudgeEvaluation {
		err = o.runJudgePhase(ctx)
	}

	o.archive()
	return BuildOutput(o.state.Session(), o.cfg.JudgePanelEnabled), err
}

// runAgentPhase executes agent rounds until consensus, exhaustion or a
// fatal error.
func (o *Orchestrator) runAgentPhase(ctx context.Context) error {
	session := o.state.Session()

	for round := len(session.AgentRounds) + 1; round <= o.cfg.MaxAgentRounds; round++ {
		var candidate *consensus.Candidate
		if n := len(session.AgentRounds); round > 1 && n > 0 {
			candidate = consensus.SelectCandidate(session.AgentRounds[n-1].Responses)
		}

		outcome, err := o.runBoundedAgentRound(ctx, round, candidate, session.AgentRounds)
		if outcome != nil {
			o.state.AppendAgentRound(outcome.Result, outcome.CostUsd, outcome.PricingKnown)
			o.state.AddRetries(outcome.Retries)
			if cpErr := o.checkpoint(); cpErr != nil {
				return cpErr
			}
		}
		if err != nil {
			return err
		}
		if err := o.checkLimits(); err != nil {
			return err
		}

		if outcome.Decision.Reached {
			o.state.SetVerdict(core.FinalVerdict{
				PositionID:   outcome.Decision.PositionID,
				PositionText: outcome.Decision.PositionText,
				Confidence:   outcome.Decision.MeanYesConfidence,
				Source:       core.SourceAgentConsensus,
			})
			o.state.Transition(core.PhaseConsensusReached)
			return o.checkpoint()
		}
	}

	// Round budget exhausted without consensus.
	positions := session.CollectPositions(core.PositionsScope(o.cfg.JudgePositionsScope))
	if o.cfg.JudgePanelEnabled && len(positions) >= 2 && len(o.runner.judges) >= config.MinJudgesForPanel {
		o.state.Transition(core.PhaseJudgeEvaluation)
		return o.checkpoint()
	}

	o.setAgentDeadlockVerdict()
	o.state.Transition(core.PhaseDeadlock)
	return o.checkpoint()
}

// runBoundedAgentRound runs one round under the round timeout and maps
// timeout expiry to the fatal error classes.
func (o *Orchestrator) runBoundedAgentRound(ctx context.Context, round int, candidate *consensus.Candidate, history []core.RoundResult) (*AgentRoundOutcome, error) {
	roundCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Timeouts.RoundMs)*time.Millisecond)
	defer cancel()

	outcome := o.runner.RunAgentRound(roundCtx, round, candidate, history)

	if ctx.Err() == context.DeadlineExceeded {
		return outcome, core.ErrLimit(core.CodeSessionTimeout, "session timeout exceeded")
	}
	if ctx.Err() == context.Canceled {
		return outcome, core.ErrState("CANCELLED", "debate cancelled")
	}
	if roundCtx.Err() == context.DeadlineExceeded {
		return outcome, core.ErrLimit(core.CodeRoundTimeout,
			fmt.Sprintf("round %d exceeded %dms", round, o.cfg.Timeouts.RoundMs))
	}
	return outcome, nil
}

// setAgentDeadlockVerdict records the best-supported position of the last
// round as the deadlock verdict.
func (o *Orchestrator) setAgentDeadlockVerdict() {
	session := o.state.Session()
	verdict := core.FinalVerdict{Source: core.SourceDeadlock}
	if n := len(session.AgentRounds); n > 0 {
		if best := consensus.SelectCandidate(session.AgentRounds[n-1].Responses); best != nil {
			verdict.PositionID = best.ID
			verdict.PositionText = best.Text
			verdict.Confidence = best.SupportScore / float64(best.SupporterCount)
		}
	}
	o.state.SetVerdict(verdict)
}

// runJudgePhase executes judge rounds over the fixed positions set.
func (o *Orchestrator) runJudgePhase(ctx context.Context) error {
	session := o.state.Session()
	positions := session.CollectPositions(core.PositionsScope(o.cfg.JudgePositionsScope))

	for round := len(session.JudgeRounds) + 1; round <= o.cfg.MaxJudgeRounds; round++ {
		roundCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Timeouts.RoundMs)*time.Millisecond)
		outcome := o.runner.RunJudgeRound(roundCtx, round, positions)
		expired := roundCtx.Err() == context.DeadlineExceeded
		cancel()

		o.state.AppendJudgeRound(outcome.Result, outcome.CostUsd, outcome.PricingKnown)
		o.state.AddRetries(outcome.Retries)
		if err := o.checkpoint(); err != nil {
			return err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return core.ErrLimit(core.CodeSessionTimeout, "session timeout exceeded")
		}
		if ctx.Err() == context.Canceled {
			return core.ErrState("CANCELLED", "debate cancelled")
		}
		if expired {
			return core.ErrLimit(core.CodeRoundTimeout,
				fmt.Sprintf("judge round %d exceeded %dms", round, o.cfg.Timeouts.RoundMs))
		}
		if err := o.checkLimits(); err != nil {
			return err
		}

		if outcome.Decision.Reached {
			o.state.SetVerdict(core.FinalVerdict{
				PositionID:   outcome.Decision.PositionID,
				PositionText: outcome.Result.ConsensusPositionText,
				Confidence:   outcome.Decision.Confidence,
				Source:       core.SourceJudgeConsensus,
			})
			o.state.Transition(core.PhaseConsensusReached)
			return o.checkpoint()
		}
	}

	// Judge rounds exhausted: deadlock on the last round's plurality
	// position, even though it was not fully consented.
	verdict := core.FinalVerdict{Source: core.SourceDeadlock}
	if n := len(session.JudgeRounds); n > 0 {
		last := session.JudgeRounds[n-1]
		verdict.PositionID = last.ConsensusPositionID
		verdict.PositionText = last.ConsensusPositionText
		verdict.Confidence = last.ConsensusConfidence
	}
	o.state.SetVerdict(verdict)
	o.state.Transition(core.PhaseDeadlock)
	return o.checkpoint()
}

// checkpoint persists the session when a checkpoint directory is
// configured.
func (o *Orchestrator) checkpoint() error {
	if o.cfg.CheckpointDir == "" {
		return nil
	}
	path, err := SaveCheckpoint(o.cfg.CheckpointDir, o.state.Session(), o.cfg, o.clock())
	if err != nil {
		return fmt.Errorf("persisting checkpoint: %w", err)
	}
	o.state.SetCheckpointPath(path)
	return nil
}

// checkLimits enforces the cumulative token and cost guards.
func (o *Orchestrator) checkLimits() error {
	meta := o.state.Session().Metadata
	if meta.TotalTokens > o.cfg.Limits.MaxTotalTokens {
		return core.ErrLimit(core.CodeTokenLimit,
			fmt.Sprintf("total tokens %d exceed limit %d", meta.TotalTokens, o.cfg.Limits.MaxTotalTokens))
	}
	if meta.PricingKnown && meta.TotalCostUsd > o.cfg.Limits.MaxTotalCostUsd {
		return core.ErrLimit(core.CodeCostLimit,
			fmt.Sprintf("total cost $%.4f exceeds limit $%.2f", meta.TotalCostUsd, o.cfg.Limits.MaxTotalCostUsd))
	}
	return nil
}

// archive saves terminal sessions to the configured store, best effort.
func (o *Orchestrator) archive() {
	if o.store == nil || !o.state.Phase().Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.Save(ctx, o.state.Session()); err != nil {
		o.logger.Warn("archiving session failed", "error", err.Error())
	}
}
