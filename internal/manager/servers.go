package manager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/probe"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// Add validates server and appends it to config.yaml.
func (m *Manager) Add(server *config.Server) error {
	if server.Auth == nil {
		server.Auth = config.NoAuth{}
	}
	if errs := server.Validate(); errs.HasErrors() {
		return errs
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cfg.Server(server.Name); exists {
		return fmt.Errorf("%w: '%s'", ErrServerExists, server.Name)
	}

	next := m.cfg.Clone()
	next.SetServer(server)
	if err := config.SaveConfig(m.configDir, next); err != nil {
		return err
	}
	m.cfg = next

	logging.Info("Manager", "Added MCP server %s (%s)", server.Name, server.Transport())
	return nil
}

// Remove deletes the named server from config.yaml together with any token
// stored for it.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	s, ok := m.cfg.Server(name)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrServerNotFound, name)
	}

	next := m.cfg.Clone()
	next.DeleteServer(name)
	if err := config.SaveConfig(m.configDir, next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	m.mu.Unlock()

	if s.IsRemote() {
		if _, _, err := m.Store().Remove(s.RemoteURL()); err != nil {
			logging.Warn("Manager", "Removed %s but could not delete its token: %v", name, err)
		}
	}

	logging.Info("Manager", "Removed MCP server %s", name)
	return nil
}

// Test checks that the named server is reachable, sending its credentials.
// A missing OAuth token is reported in the result, not as an error.
func (m *Manager) Test(ctx context.Context, name string) (probe.Result, error) {
	s, err := m.server(name)
	if err != nil {
		return probe.Result{}, err
	}
	return m.test(ctx, s), nil
}

// TestAll tests every server concurrently. Results are ordered by name.
func (m *Manager) TestAll(ctx context.Context) []probe.Result {
	names := m.Config().ServerNames()
	results := make([]probe.Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, name := range names {
		g.Go(func() error {
			s, err := m.server(name)
			if err != nil {
				results[i] = probe.Result{Name: name, Error: err.Error()}
				return nil
			}
			results[i] = m.test(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (m *Manager) test(ctx context.Context, s *config.Server) probe.Result {
	var header string
	if s.IsRemote() {
		h, err := m.AuthorizationHeader(ctx, s)
		switch {
		case errors.Is(err, ErrAuthRequired):
			logging.Debug("Manager", "Testing %s without credentials: %v", s.Name, err)
		case err != nil:
			return probe.Result{Name: s.Name, Transport: s.Transport(), Error: err.Error()}
		default:
			header = h
		}
	}
	return m.prober.Probe(ctx, s, header)
}
