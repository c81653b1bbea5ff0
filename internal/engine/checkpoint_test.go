package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func checkpointFixture(t *testing.T) (*core.DebateSession, *config.Config) {
	t.Helper()
	session := core.NewDebateSession("checkpoint topic", "", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	session.Phase = core.PhaseAgentDebate
	session.AgentRounds = []core.RoundResult{{
		RoundNumber: 1,
		Responses: []core.AgentResponse{{
			AgentID: "a1", Round: 1, Vote: core.VoteAbstain, Status: core.StatusOK,
			PositionID: core.NewPositionID("p1"), PositionText: "p1", Reasoning: "opening",
			Confidence: 0.8, TokenUsage: core.TokenUsage{Prompt: 10, Completion: 10, Total: 20},
		}},
		Timestamp: time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC),
	}}

	cfg := &config.Config{
		Topic: "checkpoint topic",
		Agents: []config.ParticipantConfig{
			{ID: "a1", Provider: "mock"}, {ID: "a2", Provider: "mock"},
		},
		MaxAgentRounds:          3,
		MaxJudgeRounds:          2,
		ConsensusThreshold:      0.67,
		JudgeConsensusThreshold: 0.6,
		JudgeMinConfidence:      0.7,
		JudgePositionsScope:     "all_rounds",
		ContextTopology:         "last_round_with_self",
		Timeouts:                config.TimeoutConfig{ModelMs: 1000, RoundMs: 10000, SessionMs: 100000},
		Retries:                 config.RetryConfig{MaxAttempts: 1, BaseDelayMs: 10, MaxDelayMs: 100},
		Concurrency:             config.ConcurrencyConfig{MaxConcurrentRequests: 2},
		Limits:                  config.LimitConfig{MaxTokensPerResponse: 512, MaxTotalTokens: 10000, MaxTotalCostUsd: 1, MaxContextTokens: 2000},
	}
	return session, cfg
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	session, cfg := checkpointFixture(t)
	now := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

	path, err := SaveCheckpoint(dir, session, cfg, now)
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if !strings.HasSuffix(path, session.ID+".checkpoint.json") {
		t.Errorf("path = %s", path)
	}

	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.SessionID != session.ID || cp.Phase != core.PhaseAgentDebate {
		t.Errorf("header = %s/%s", cp.SessionID, cp.Phase)
	}
	if len(cp.AgentRounds) != 1 || cp.AgentRounds[0].Responses[0].AgentID != "a1" {
		t.Errorf("rounds not preserved")
	}
	if cp.Config.Topic != cfg.Topic || cp.Config.MaxAgentRounds != 3 {
		t.Errorf("config not preserved")
	}
	if cp.Integrity.HMAC != nil {
		t.Error("hmac must be null without a secret")
	}
}

func TestCheckpoint_StableBytes(t *testing.T) {
	dir := t.TempDir()
	session, cfg := checkpointFixture(t)
	now := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)

	path, err := SaveCheckpoint(dir, session, cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := SaveCheckpoint(dir, session, cfg, now); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical inputs produced different checkpoint bytes")
	}
}

func TestCheckpoint_TamperDetected(t *testing.T) {
	dir := t.TempDir()
	session, cfg := checkpointFixture(t)

	path, err := SaveCheckpoint(dir, session, cfg, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte inside the topic string.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Replace(data, []byte("checkpoint topic"), []byte("checkpoint topix"), 1)
	if bytes.Equal(data, tampered) {
		t.Fatal("fixture did not contain the marker")
	}
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = LoadCheckpoint(path)
	if err == nil {
		t.Fatal("tampered checkpoint must fail to load")
	}
	if !core.IsCategory(err, core.ErrCatIntegrity) {
		t.Errorf("error category = %v", core.GetCategory(err))
	}

	// Restore the original file; load must succeed again.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCheckpoint(path); err != nil {
		t.Errorf("restored checkpoint failed to load: %v", err)
	}
}

func TestCheckpoint_VersionMismatch(t *testing.T) {
	dir := t.TempDir()
	session, cfg := checkpointFixture(t)

	path, err := SaveCheckpoint(dir, session, cfg, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	doc["version"] = "agora/0"
	changed, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, changed, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = LoadCheckpoint(path)
	if err == nil {
		t.Fatal("version mismatch must fail")
	}
	var me *core.ModelError
	if !errors.As(err, &me) || me.Code != core.CodeVersionMismatch {
		t.Errorf("error = %v", err)
	}
}

func TestCheckpoint_HMAC(t *testing.T) {
	t.Setenv(CheckpointSecretEnv, "test-secret")

	dir := t.TempDir()
	session, cfg := checkpointFixture(t)
	path, err := SaveCheckpoint(dir, session, cfg, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint with matching secret: %v", err)
	}
	if cp.Integrity.HMAC == nil {
		t.Fatal("hmac missing with secret configured")
	}

	t.Setenv(CheckpointSecretEnv, "different-secret")
	if _, err := LoadCheckpoint(path); err == nil {
		t.Fatal("wrong secret must fail verification")
	}
}

func TestCheckpoint_MissingFile(t *testing.T) {
	if _, err := LoadCheckpoint(t.TempDir() + "/absent.checkpoint.json"); err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
}
