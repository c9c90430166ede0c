package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Container owns the adapters the engine runs against (stores,
// transports, providers) and drives their lifecycle: Initialize in
// registration order, Shutdown in reverse.
type Container struct {
	l          *slog.Logger
	names      []string
	components map[string]any
	started    []string
}

func NewContainer(l *slog.Logger) *Container {
	if l == nil {
		l = slog.Default()
	}
	return &Container{
		l:          l,
		components: make(map[string]any),
	}
}

// Register adds a named component. Names are unique.
func (c *Container) Register(name string, component any) error {
	if component == nil {
		return fmt.Errorf("component %s cannot be nil", name)
	}
	if _, exists := c.components[name]; exists {
		return fmt.Errorf("component %s is already registered", name)
	}
	c.names = append(c.names, name)
	c.components[name] = component
	return nil
}

func (c *Container) Get(name string) (any, bool) {
	component, ok := c.components[name]
	return component, ok
}

// Initialize calls Initialize on every component that implements
// Initializer. It stops at the first failure; components initialized so
// far are still shut down by Shutdown.
func (c *Container) Initialize(ctx context.Context) error {
	for _, name := range c.names {
		component := c.components[name]
		if i, ok := component.(Initializer); ok {
			c.l.DebugContext(ctx, fmt.Sprintf("Initializing %s", name))
			if err := i.Initialize(ctx); err != nil {
				return fmt.Errorf("%s initialization failed: %w", name, err)
			}
		}
		c.started = append(c.started, name)
	}
	return nil
}

// Shutdown calls Shutdown on every started component implementing
// Shutdowner, in reverse order, and joins their errors.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.started) - 1; i >= 0; i-- {
		name := c.started[i]
		if s, ok := c.components[name].(Shutdowner); ok {
			c.l.DebugContext(ctx, fmt.Sprintf("Shutting down %s", name))
			if err := s.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown failed: %w", name, err))
			}
		}
	}
	c.started = nil
	return errors.Join(errs...)
}
