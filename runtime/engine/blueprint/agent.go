package blueprint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/BDNK1/autoflow/runtime"
)

func (e *StepExecutor) handleAgentCall(ctx context.Context, execution *runtime.Execution, step runtime.Step) (any, error) {
	cfg, err := runtime.DecodeStepConfig[runtime.AgentCallConfig](step)
	if err != nil {
		return nil, err
	}
	if e.agents == nil || e.provider == nil {
		return nil, runtime.NewConfigurationError(runtime.ErrorCodeAgentNotFound,
			"no agent registry or provider configured", nil).WithStep(step.ID)
	}

	prompt := runtime.InterpolateString(cfg.Prompt, execution.Values())

	agent, err := e.agents.Agent(ctx, cfg.AgentID)
	if err != nil {
		if errors.Is(err, runtime.ErrAgentNotFound) {
			return nil, runtime.NewConfigurationError(runtime.ErrorCodeAgentNotFound,
				fmt.Sprintf("agent %s not found", cfg.AgentID), err).WithStep(step.ID)
		}
		return nil, runtime.NewTransientError(runtime.ErrorCodeStore,
			fmt.Sprintf("failed to load agent %s", cfg.AgentID), err).WithStep(step.ID)
	}

	e.l.InfoContext(execution, fmt.Sprintf("Calling agent %s", agent.ID),
		"step_id", step.ID,
		"provider", agent.LLMProvider,
		"model", agent.Model,
		"resilient", e.cfg.ResilientAgentCalls)

	complete := func(ctx context.Context) (string, error) {
		text, err := e.provider.Complete(ctx, agent, prompt)
		if err != nil && !runtime.IsCancelled(err) {
			if _, ok := runtime.AsFlowError(err); !ok {
				err = runtime.NewTransientError(runtime.ErrorCodeAgentFailed,
					fmt.Sprintf("agent %s failed", agent.ID), err)
			}
		}
		return text, err
	}

	var text string
	if e.cfg.ResilientAgentCalls {
		key := "agent:" + strings.ToLower(agent.LLMProvider)
		text, err = Call(ctx, e.integrations, execution.UserID, key, agent.ID, complete)
		if err != nil {
			return nil, classifyCallError(err, key).WithStep(step.ID)
		}
	} else {
		text, err = complete(ctx)
		if err != nil {
			if runtime.IsCancelled(err) {
				return nil, runtime.NewCancelledError(err).WithStep(step.ID)
			}
			return nil, err
		}
	}

	if cfg.OutputVariable != "" {
		execution.AddValue(cfg.OutputVariable, text)
	}
	return text, nil
}

// CachedAgentRegistry memoizes agent lookups for a TTL. Lookups that fail
// are not cached.
type CachedAgentRegistry struct {
	next   runtime.AgentRegistry
	agents *cache.Cache
}

func NewCachedAgentRegistry(next runtime.AgentRegistry, ttl time.Duration) *CachedAgentRegistry {
	return &CachedAgentRegistry{
		next:   next,
		agents: cache.New(ttl, 2*ttl),
	}
}

func (r *CachedAgentRegistry) Agent(ctx context.Context, id string) (*runtime.Agent, error) {
	if v, ok := r.agents.Get(id); ok {
		return v.(*runtime.Agent), nil
	}
	agent, err := r.next.Agent(ctx, id)
	if err != nil {
		return nil, err
	}
	r.agents.SetDefault(id, agent)
	return agent, nil
}

// Invalidate drops a cached agent so the next lookup reads through.
func (r *CachedAgentRegistry) Invalidate(id string) {
	r.agents.Delete(id)
}
