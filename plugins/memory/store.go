// Package memory is an in-process implementation of the engine's stores,
// used for local runs and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/BDNK1/autoflow/runtime"
)

var (
	_ runtime.CredentialStore = (*Store)(nil)
	_ runtime.AgentRegistry   = (*Store)(nil)
	_ runtime.ProgressStore   = (*Store)(nil)
)

type Store struct {
	mu          sync.RWMutex
	credentials []runtime.CredentialRecord
	agents      map[string]runtime.Agent
	runs        map[string]runtime.Progress
}

func New() *Store {
	return &Store{
		agents: make(map[string]runtime.Agent),
		runs:   make(map[string]runtime.Progress),
	}
}

// PutCredential adds or replaces the record for (user, platform).
func (s *Store) PutCredential(rec runtime.CredentialRecord) {
	rec.Fields = maps.Clone(rec.Fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.credentials {
		if existing.UserID == rec.UserID && strings.EqualFold(existing.Platform, rec.Platform) {
			s.credentials[i] = rec
			return
		}
	}
	s.credentials = append(s.credentials, rec)
}

func (s *Store) PutAgent(agent runtime.Agent) {
	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()
}

func (s *Store) ActiveCredentials(ctx context.Context, userID string) ([]runtime.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []runtime.CredentialRecord
	for _, rec := range s.credentials {
		if rec.UserID == userID && rec.IsActive {
			rec.Fields = maps.Clone(rec.Fields)
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) Agent(ctx context.Context, id string) (*runtime.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, runtime.ErrAgentNotFound
	}
	return &agent, nil
}

// SaveProgress keeps a copy of p keyed by run id.
func (s *Store) SaveProgress(ctx context.Context, p *runtime.Progress) error {
	cp := *p
	cp.Steps = slices.Clone(p.Steps)
	cp.Variables = maps.Clone(p.Variables)

	s.mu.Lock()
	s.runs[p.RunID] = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) LoadProgress(ctx context.Context, runID string) (*runtime.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.runs[runID]
	if !ok {
		return nil, runtime.ErrRunNotFound
	}
	return &p, nil
}
