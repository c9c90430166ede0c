package runtime

import (
	"fmt"
	"strings"
)

// StepType tags the variant of a Step.
type StepType string

const (
	StepAction    StepType = "action"
	StepCondition StepType = "condition"
	StepLoop      StepType = "loop"
	StepDelay     StepType = "delay"
	StepAgentCall StepType = "agent_call"
)

// StepTypes lists every step type the engine understands.
var StepTypes = []StepType{StepAction, StepCondition, StepLoop, StepDelay, StepAgentCall}

// ErrorPolicy decides what happens when a step fails.
type ErrorPolicy string

const (
	OnErrorStop     ErrorPolicy = "stop"
	OnErrorContinue ErrorPolicy = "continue"
	OnErrorRetry    ErrorPolicy = "retry"
)

// Blueprint is a declarative automation: an ordered list of steps plus the
// initial variables they run against.
type Blueprint struct {
	ID          string         `yaml:"id" json:"id" validate:"required"`
	Name        string         `yaml:"name" json:"name,omitempty"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Variables   map[string]any `yaml:"variables" json:"variables,omitempty"`
	Steps       []Step         `yaml:"steps" json:"steps" validate:"required,min=1,unique=ID,dive"`
}

type Step struct {
	ID      string         `yaml:"id" json:"id" validate:"required"`
	Name    string         `yaml:"name" json:"name,omitempty"`
	Type    StepType       `yaml:"type" json:"type" validate:"required"`
	OnError ErrorPolicy    `yaml:"on_error" json:"on_error,omitempty" validate:"omitempty,error_policy"`
	Config  map[string]any `yaml:"config" json:"config,omitempty"`
}

// Policy returns the step's error policy, defaulting to stop.
func (s Step) Policy() ErrorPolicy {
	if s.OnError == "" {
		return OnErrorStop
	}
	return s.OnError
}

// Label is the human-readable name used in logs.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// ActionConfig calls a method on an integration.
type ActionConfig struct {
	Integration    string         `json:"integration" validate:"required"`
	Method         string         `json:"method" validate:"required"`
	Params         map[string]any `json:"params"`
	OutputVariable string         `json:"output_variable"`
}

// ConditionConfig runs one of two nested step lists.
type ConditionConfig struct {
	Expression string `json:"expression" validate:"required"`
	IfTrue     []Step `json:"if_true" validate:"unique=ID,dive"`
	IfFalse    []Step `json:"if_false" validate:"unique=ID,dive"`
}

// LoopConfig runs Body once per element of Source. Source is a "{{var}}"
// reference, a bare variable name, or a literal array.
type LoopConfig struct {
	Source any    `json:"source" validate:"required"`
	Body   []Step `json:"body" validate:"unique=ID,dive"`
}

type DelayConfig struct {
	Seconds float64 `json:"seconds" validate:"gte=0"`
}

// AgentCallConfig sends a prompt to a configured agent.
type AgentCallConfig struct {
	AgentID        string `json:"agent_id" validate:"required"`
	Prompt         string `json:"prompt" validate:"required"`
	OutputVariable string `json:"output_variable"`
}

// DecodeStepConfig decodes and validates step.Config into T.
func DecodeStepConfig[T any](step Step) (T, error) {
	var cfg T
	if err := mapToStruct(step.Config, &cfg); err != nil {
		return cfg, NewValidationError(ErrorCodeInvalidStepConfig,
			fmt.Sprintf("invalid %s config for step %s", step.Type, step.ID), err).WithStep(step.ID)
	}
	if err := prepareConfig(&cfg); err != nil {
		return cfg, NewValidationError(ErrorCodeInvalidStepConfig,
			fmt.Sprintf("invalid %s config for step %s", step.Type, step.ID), err).WithStep(step.ID)
	}
	return cfg, nil
}

// Validate checks the blueprint and every nested step list before anything
// runs. Step ids must be unique within their enclosing list.
func (b *Blueprint) Validate() error {
	if b == nil {
		return NewValidationError(ErrorCodeInvalidBlueprint, "blueprint is nil", nil)
	}
	if err := validateConfig(*b); err != nil {
		return NewValidationError(ErrorCodeInvalidBlueprint, fmt.Sprintf("invalid blueprint %s", b.ID), err)
	}
	return validateSteps(b.Steps)
}

func validateSteps(steps []Step) error {
	for _, step := range steps {
		if err := validateStep(step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Type {
	case StepAction:
		_, err := DecodeStepConfig[ActionConfig](step)
		return err
	case StepDelay:
		_, err := DecodeStepConfig[DelayConfig](step)
		return err
	case StepAgentCall:
		_, err := DecodeStepConfig[AgentCallConfig](step)
		return err
	case StepCondition:
		cfg, err := DecodeStepConfig[ConditionConfig](step)
		if err != nil {
			return err
		}
		if err := validateSteps(cfg.IfTrue); err != nil {
			return err
		}
		return validateSteps(cfg.IfFalse)
	case StepLoop:
		cfg, err := DecodeStepConfig[LoopConfig](step)
		if err != nil {
			return err
		}
		return validateSteps(cfg.Body)
	default:
		return NewValidationError(ErrorCodeUnknownStepType,
			fmt.Sprintf("unknown step type %q (expected one of %s)", step.Type, joinStepTypes()), nil).WithStep(step.ID)
	}
}

func joinStepTypes() string {
	names := make([]string, len(StepTypes))
	for i, t := range StepTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
