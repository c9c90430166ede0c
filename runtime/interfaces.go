package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Initializer is implemented by adapters that open connections or create
// schema before first use.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by adapters holding resources that must be
// released during graceful shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrRunNotFound   = errors.New("run not found")
)

// CredentialRecord is one stored credential set for a user and platform.
type CredentialRecord struct {
	UserID   string            `json:"user_id" bson:"user_id"`
	Platform string            `json:"platform" bson:"platform"`
	Fields   map[string]string `json:"fields" bson:"fields"`
	IsActive bool              `json:"is_active" bson:"is_active"`
}

// CredentialStore is read once per run.
type CredentialStore interface {
	// ActiveCredentials returns the user's credential sets with is_active=true.
	ActiveCredentials(ctx context.Context, userID string) ([]CredentialRecord, error)
}

// Agent is an LLM persona callable from agent_call steps.
type Agent struct {
	ID          string `json:"id" bson:"_id"`
	LLMProvider string `json:"llm_provider" bson:"llm_provider"`
	Model       string `json:"model" bson:"model"`
	APIKey      string `json:"-" bson:"api_key"`
	AgentRules  string `json:"agent_rules" bson:"agent_rules"`
}

type AgentRegistry interface {
	// Agent returns ErrAgentNotFound when no agent has the id.
	Agent(ctx context.Context, id string) (*Agent, error)
}

// AgentProvider sends a prompt to the agent's model and returns the raw
// completion text.
type AgentProvider interface {
	Complete(ctx context.Context, agent *Agent, prompt string) (string, error)
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Progress is the persisted view of a run, upserted after every step.
type Progress struct {
	RunID       string         `json:"run_id" bson:"_id"`
	UserID      string         `json:"user_id" bson:"user_id"`
	BlueprintID string         `json:"blueprint_id" bson:"blueprint_id"`
	Status      RunStatus      `json:"status" bson:"status"`
	StartedAt   time.Time      `json:"started_at" bson:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	CurrentStep int            `json:"current_step" bson:"current_step"`
	TotalSteps  int            `json:"total_steps" bson:"total_steps"`
	Steps       []LogEntry     `json:"steps" bson:"steps"`
	Variables   map[string]any `json:"variables" bson:"variables"`
	Error       string         `json:"error,omitempty" bson:"error,omitempty"`
}

type ProgressSink interface {
	SaveProgress(ctx context.Context, p *Progress) error
}

type ProgressReader interface {
	// LoadProgress returns ErrRunNotFound for unknown runs.
	LoadProgress(ctx context.Context, runID string) (*Progress, error)
}

type ProgressStore interface {
	ProgressSink
	ProgressReader
}

// Request is an outbound integration call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Body is sent as JSON, or form-encoded when Form is set.
	Body any
	Form bool
}

type Response struct {
	StatusCode int
	Headers    http.Header
	// Body is the decoded JSON document, or the raw text when the response
	// is not JSON.
	Body any
	Raw  []byte
}

// Transport performs integration calls. Non-2xx responses and network
// failures are returned as transient FlowErrors.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
