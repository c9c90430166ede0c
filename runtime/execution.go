package runtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// StepStatus is the status recorded for a step in the run log.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// LogEntry is one append-only record in a run's log.
type LogEntry struct {
	Step      int        `json:"step" bson:"step"`
	StepID    string     `json:"step_id" bson:"step_id"`
	Name      string     `json:"name" bson:"name"`
	Type      StepType   `json:"type" bson:"type"`
	Status    StepStatus `json:"status" bson:"status"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
	Message   string     `json:"message,omitempty" bson:"message,omitempty"`
	Error     string     `json:"error,omitempty" bson:"error,omitempty"`
	Output    any        `json:"output,omitempty" bson:"output,omitempty"`
}

// Execution is the state of one blueprint run. It implements
// context.Context by delegating to the run's context, so it can be passed
// to slog, transports and stores directly.
type Execution struct {
	ID          string
	UserID      string
	Blueprint   *Blueprint
	StartedAt   time.Time
	Variables   *VariableBag
	Credentials map[string]map[string]string

	mu          sync.Mutex
	currentStep int
	totalSteps  int
	log         []LogEntry

	runner StepRunner
	ctx    context.Context
}

// NewExecution prepares a run of bp. Credentials are grouped by lower-cased
// platform name; run inputs override the blueprint's declared variables.
func NewExecution(ctx context.Context, bp *Blueprint, runID, userID string, creds []CredentialRecord, inputs map[string]any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	vars := NewVariableBag(bp.Variables)
	for k, v := range inputs {
		vars.Set(k, v)
	}

	return &Execution{
		ID:          runID,
		UserID:      userID,
		Blueprint:   bp,
		StartedAt:   time.Now().UTC(),
		Variables:   vars,
		Credentials: groupCredentials(creds),
		totalSteps:  len(bp.Steps),
		ctx:         ctx,
	}
}

func groupCredentials(records []CredentialRecord) map[string]map[string]string {
	grouped := make(map[string]map[string]string, len(records))
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		platform := strings.ToLower(strings.TrimSpace(r.Platform))
		fields, ok := grouped[platform]
		if !ok {
			fields = make(map[string]string, len(r.Fields))
			grouped[platform] = fields
		}
		for k, v := range r.Fields {
			fields[k] = v
		}
	}
	return grouped
}

// context.Context implementation, delegating to the run context so that
// cancellation propagates through slog, transports and retry waits.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

// VariableKey addresses the variable bag through context.Context.Value.
// Other key types, plain strings included, go to the run context, so
// blueprint variables never shadow values set by libraries.
type VariableKey string

func (e *Execution) Value(key any) any {
	if k, ok := key.(VariableKey); ok {
		v, _ := e.Variables.Get(string(k))
		return v
	}
	return e.ctx.Value(key)
}

func (e *Execution) AddValue(k string, v any) {
	e.Variables.Set(k, v)
}

// Values returns a snapshot of the variable bag.
func (e *Execution) Values() map[string]any {
	return e.Variables.All()
}

// Credential returns the credential fields for platform.
func (e *Execution) Credential(platform string) (map[string]string, bool) {
	fields, ok := e.Credentials[strings.ToLower(strings.TrimSpace(platform))]
	return fields, ok && len(fields) > 0
}

// RunSteps runs nested steps through the executor that owns this run.
func (e *Execution) RunSteps(ctx context.Context, steps []Step) error {
	if e.runner == nil {
		return NewConfigurationError(ErrorCodeInvalidBlueprint, "execution has no step runner", nil)
	}
	return e.runner.RunSteps(ctx, e, steps)
}

func (e *Execution) appendLog(entry LogEntry) {
	e.mu.Lock()
	e.log = append(e.log, entry)
	e.mu.Unlock()
}

// Log returns a copy of the run log.
func (e *Execution) Log() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.log))
	copy(out, e.log)
	return out
}

func (e *Execution) setCurrentStep(i int) {
	e.mu.Lock()
	e.currentStep = i
	e.mu.Unlock()
}

func (e *Execution) CurrentStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStep
}

func (e *Execution) TotalSteps() int {
	return e.totalSteps
}

// Snapshot builds the persisted progress record for the run.
func (e *Execution) Snapshot(status RunStatus, runErr error) *Progress {
	p := &Progress{
		RunID:       e.ID,
		UserID:      e.UserID,
		BlueprintID: e.Blueprint.ID,
		Status:      status,
		StartedAt:   e.StartedAt,
		UpdatedAt:   time.Now().UTC(),
		CurrentStep: e.CurrentStep(),
		TotalSteps:  e.totalSteps,
		Steps:       e.Log(),
		Variables:   e.Values(),
	}
	if status != RunRunning {
		finished := p.UpdatedAt
		p.FinishedAt = &finished
	}
	if runErr != nil {
		p.Error = runErr.Error()
	}
	return p
}
