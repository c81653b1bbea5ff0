package core

import (
	"context"
	"time"
)

// =============================================================================
// ModelAdapter Port
// =============================================================================

// CallRequest carries one prompt exchange to a model.
type CallRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration // per-call budget; adapters must enforce it
	SchemaHint   string        // JSON schema description appended by prompt builders
}

// CallResult is the raw outcome of one adapter call.
type CallResult struct {
	Content     string
	TokenUsage  TokenUsage
	LatencyMs   int64
	RawResponse string // provider payload for tracing; may be empty
}

// ModelAdapter is the contract every provider variant implements. Adapters
// enforce the per-call timeout, report token usage (estimated or true),
// map transport failures to the classified error set, and never interpret
// the prompts beyond passing them to the model.
type ModelAdapter interface {
	// Provider returns the provider key (e.g. "claude", "anthropic", "mock").
	Provider() string

	// Model returns the configured model identifier.
	Model() string

	// Call executes one prompt exchange.
	Call(ctx context.Context, req CallRequest) (*CallResult, error)
}

// AdapterPinger is implemented by adapters that can cheaply verify their
// backing CLI or endpoint is reachable.
type AdapterPinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// SessionStore Port
// =============================================================================

// SessionSummary is a lightweight listing row for archived sessions.
type SessionSummary struct {
	ID          string     `json:"id"`
	Topic       string     `json:"topic"`
	Phase       Phase      `json:"phase"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TotalTokens int        `json:"totalTokens"`
	Verdict     string     `json:"verdict,omitempty"`
}

// SessionStore archives completed sessions for later inspection.
type SessionStore interface {
	// Save upserts a session by ID.
	Save(ctx context.Context, session *DebateSession) error

	// Load retrieves a session by ID. Returns nil and no error when the
	// session does not exist.
	Load(ctx context.Context, id string) (*DebateSession, error)

	// List returns summaries of all archived sessions, newest first.
	List(ctx context.Context) ([]SessionSummary, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying storage.
	Close() error
}
