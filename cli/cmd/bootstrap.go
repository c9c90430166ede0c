package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BDNK1/autoflow/cli/internal/config"
	httptransport "github.com/BDNK1/autoflow/plugins/http"
	"github.com/BDNK1/autoflow/plugins/llm"
	"github.com/BDNK1/autoflow/plugins/memory"
	"github.com/BDNK1/autoflow/plugins/mongostore"
	"github.com/BDNK1/autoflow/plugins/sqlstore"
	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/engine/blueprint"
	"github.com/BDNK1/autoflow/runtime/telemetry"
)

// store is what every backend in plugins/ implements.
type store interface {
	runtime.CredentialStore
	runtime.AgentRegistry
	runtime.ProgressStore
}

// seeder is implemented by the persistent stores.
type seeder interface {
	PutCredential(ctx context.Context, rec runtime.CredentialRecord) error
	PutAgent(ctx context.Context, a runtime.Agent) error
}

type memorySeeder struct{ *memory.Store }

func (m memorySeeder) PutCredential(_ context.Context, rec runtime.CredentialRecord) error {
	m.Store.PutCredential(rec)
	return nil
}

func (m memorySeeder) PutAgent(_ context.Context, a runtime.Agent) error {
	m.Store.PutAgent(a)
	return nil
}

// stack is a fully wired engine plus the container owning its adapters.
type stack struct {
	cfg        *config.AppConfig
	l          *slog.Logger
	telemetry  *telemetry.Providers
	components *runtime.Container
	store      store
	engine     *blueprint.Engine
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newStack(ctx context.Context, cfg *config.AppConfig) (s *stack, err error) {
	providers, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	base := newLogger(cfg.Log, os.Stderr)
	l := slog.New(providers.Handler(base.Handler()))
	slog.SetDefault(l)

	s = &stack{cfg: cfg, l: l, telemetry: providers, components: runtime.NewContainer(l)}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
			s = nil
		}
	}()

	st, sd := openStore(cfg.Store, l)
	s.store = st
	transport := httptransport.NewTransport(cfg.HTTP, l)
	if err := errors.Join(
		s.components.Register("store", st),
		s.components.Register("transport", transport),
	); err != nil {
		return s, err
	}
	if err := s.components.Initialize(ctx); err != nil {
		return s, err
	}

	if cfg.Store.Seed != "" {
		if err := seedStore(ctx, sd, cfg.Store.Seed); err != nil {
			return s, err
		}
		l.Info("Seeded store", "file", cfg.Store.Seed)
	}

	s.engine, err = blueprint.New(l, cfg.Engine, blueprint.Dependencies{
		Credentials: st,
		Progress:    st,
		Transport:   transport,
		Agents:      st,
		Provider:    llm.NewProvider(cfg.LLM, l),
	}, blueprint.WithTelemetry(providers.TracerProvider, providers.MeterProvider))
	if err != nil {
		return s, fmt.Errorf("failed to create engine: %w", err)
	}
	return s, nil
}

func openStore(cfg config.StoreConfig, l *slog.Logger) (store, seeder) {
	switch cfg.Driver {
	case config.StoreSQL:
		st := sqlstore.New(cfg.SQL, l)
		return st, st
	case config.StoreMongo:
		st := mongostore.New(cfg.Mongo, l)
		return st, st
	default:
		st := memory.New()
		return st, memorySeeder{st}
	}
}

func seedStore(ctx context.Context, sd seeder, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, c := range seed.Credentials {
		if err := sd.PutCredential(ctx, c.Record()); err != nil {
			return err
		}
	}
	for _, a := range seed.Agents {
		if err := sd.PutAgent(ctx, a.Agent()); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts the adapters down in reverse order, then flushes telemetry.
func (s *stack) Close(ctx context.Context) error {
	return errors.Join(
		s.components.Shutdown(ctx),
		s.telemetry.Shutdown(ctx),
	)
}
