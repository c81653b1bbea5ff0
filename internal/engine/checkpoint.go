package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/fsutil"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/jsonutil"
)

// CheckpointSecretEnv names the environment variable holding the HMAC key.
// Without it checkpoints carry a null hmac and only the SHA-256 leg is
// verified on load.
const CheckpointSecretEnv = "AGORA_CHECKPOINT_SECRET"

// checkpointBody is the integrity-hashed portion of a checkpoint: the full
// document minus the integrity field itself.
type checkpointBody struct {
	Version       string                  `json:"version"`
	EngineVersion string                  `json:"engineVersion"`
	SessionID     string                  `json:"sessionId"`
	Timestamp     time.Time               `json:"timestamp"`
	Phase         core.Phase              `json:"phase"`
	Config        *config.Config          `json:"config"`
	ConfigHash    string                  `json:"configHash"`
	AgentRounds   []core.RoundResult      `json:"agentRounds"`
	JudgeRounds   []core.JudgeRoundResult `json:"judgeRounds"`
}

// Integrity carries the checkpoint's tamper-evidence.
type Integrity struct {
	SHA256 string  `json:"sha256"`
	HMAC   *string `json:"hmac"`
}

// Checkpoint is the on-disk resume document, written after every round.
type Checkpoint struct {
	checkpointBody
	Integrity Integrity `json:"integrity"`
}

// MarshalJSON flattens the body and integrity into one object.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	type alias struct {
		checkpointBody
		Integrity Integrity `json:"integrity"`
	}
	return json.Marshal(alias{checkpointBody: c.checkpointBody, Integrity: c.Integrity})
}

// UnmarshalJSON mirrors MarshalJSON.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	type alias struct {
		checkpointBody
		Integrity Integrity `json:"integrity"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.checkpointBody = a.checkpointBody
	c.Integrity = a.Integrity
	return nil
}

// CheckpointPath returns <dir>/<sessionId>.checkpoint.json.
func CheckpointPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".checkpoint.json")
}

// SaveCheckpoint writes the session checkpoint atomically and returns its
// path. The hash runs over the canonical encoding so byte layout quirks of
// the writer never affect verification.
func SaveCheckpoint(dir string, session *core.DebateSession, cfg *config.Config, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}

	configHash, err := hashConfig(cfg)
	if err != nil {
		return "", err
	}

	body := checkpointBody{
		Version:       core.SpecVersion,
		EngineVersion: core.EngineVersion,
		SessionID:     session.ID,
		Timestamp:     now.UTC(),
		Phase:         session.Phase,
		Config:        cfg,
		ConfigHash:    configHash,
		AgentRounds:   session.AgentRounds,
		JudgeRounds:   session.JudgeRounds,
	}

	sha, err := hashBody(body)
	if err != nil {
		return "", err
	}

	cp := Checkpoint{checkpointBody: body}
	cp.Integrity.SHA256 = sha
	if secret := os.Getenv(CheckpointSecretEnv); secret != "" {
		mac := computeHMAC(sha, secret)
		cp.Integrity.HMAC = &mac
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding checkpoint: %w", err)
	}

	path := CheckpointPath(dir, session.ID)
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads and verifies a checkpoint. Any verification failure
// is a fatal integrity error; a corrupted checkpoint must never resume.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, core.ErrIntegrity(core.CodeHashMismatch,
			fmt.Sprintf("reading checkpoint: %v", err))
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, core.ErrIntegrity(core.CodeHashMismatch,
			fmt.Sprintf("checkpoint not parseable: %v", err))
	}

	if cp.Version != core.SpecVersion {
		return nil, core.ErrIntegrity(core.CodeVersionMismatch,
			fmt.Sprintf("checkpoint version %q, engine requires %q", cp.Version, core.SpecVersion))
	}
	if cp.SessionID == "" || cp.Config == nil {
		return nil, core.ErrIntegrity(core.CodeHashMismatch, "checkpoint missing session or config")
	}

	sha, err := hashBody(cp.checkpointBody)
	if err != nil {
		return nil, err
	}
	if sha != cp.Integrity.SHA256 {
		return nil, core.ErrIntegrity(core.CodeHashMismatch, "checkpoint sha256 mismatch")
	}

	if secret := os.Getenv(CheckpointSecretEnv); secret != "" && cp.Integrity.HMAC != nil {
		if !hmac.Equal([]byte(computeHMAC(sha, secret)), []byte(*cp.Integrity.HMAC)) {
			return nil, core.ErrIntegrity(core.CodeHMACMismatch, "checkpoint hmac mismatch")
		}
	}

	configHash, err := hashConfig(cp.Config)
	if err != nil {
		return nil, err
	}
	if configHash != cp.ConfigHash {
		return nil, core.ErrIntegrity(core.CodeHashMismatch, "config hash mismatch")
	}

	return &cp, nil
}

func hashBody(body checkpointBody) (string, error) {
	canonical, err := jsonutil.CanonicalizeValue(body)
	if err != nil {
		return "", fmt.Errorf("canonicalizing checkpoint: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func hashConfig(cfg *config.Config) (string, error) {
	canonical, err := jsonutil.CanonicalizeValue(cfg)
	if err != nil {
		return "", fmt.Errorf("canonicalizing config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// computeHMAC signs the hex SHA-256 string under the shared secret.
func computeHMAC(sha, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sha))
	return hex.EncodeToString(mac.Sum(nil))
}
