package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
)

// ManagerEndpoints returns "address:port" for every manager node, in the
// order the nodes were given.
func ManagerEndpoints(nodes []cluster.Node) []string {
	var endpoints []string
	for _, n := range nodes {
		if n.Role == cluster.RoleManager {
			endpoints = append(endpoints, n.Endpoint())
		}
	}

	return endpoints
}

type Config struct {
	Dialer engine.Dialer
	// Fallback is tried after every manager endpoint when set.
	Fallback string
	Logger   *slog.Logger
}

type Selector struct {
	dialer   engine.Dialer
	fallback string
	logger   *slog.Logger
}

func NewSelector(cfg *Config) *Selector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Selector{
		dialer:   cfg.Dialer,
		fallback: cfg.Fallback,
		logger:   logger,
	}
}

// Candidates returns the manager endpoints of nodes followed by the fallback
// endpoint, without duplicates.
func (s *Selector) Candidates(nodes []cluster.Node) []string {
	endpoints := ManagerEndpoints(nodes)
	if s.fallback == "" {
		return endpoints
	}

	for _, e := range endpoints {
		if e == s.fallback {
			return endpoints
		}
	}

	return append(endpoints, s.fallback)
}

// Do runs fn against each endpoint in order and stops at the first success,
// returning the endpoint that served it. A rejection or a validation failure
// ends the loop. Any other failure, a missing object included, moves on to
// the next endpoint; when every endpoint fails and at least one reported the
// object missing the result wraps ErrNotFound, else ErrClusterUnreachable.
func (s *Selector) Do(ctx context.Context, endpoints []string, fn func(ctx context.Context, c engine.Client) error) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("%w: no manager endpoints", cluster.ErrClusterUnreachable)
	}

	var (
		errs    []error
		missing bool
	)
	for _, endpoint := range endpoints {
		err := s.try(ctx, endpoint, fn)
		if err == nil {
			return endpoint, nil
		}

		if terminal(err) {
			return endpoint, err
		}

		s.logger.Warn("manager endpoint failed",
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
		missing = missing || errors.Is(err, cluster.ErrNotFound)

		if ctx.Err() != nil {
			break
		}
	}

	if missing {
		return "", errors.Join(errs...)
	}

	return "", fmt.Errorf("%w: %w", cluster.ErrClusterUnreachable, errors.Join(errs...))
}

// Direct runs fn against a single endpoint with the same error handling as
// Do, for operations that must reach a specific node.
func (s *Selector) Direct(ctx context.Context, endpoint string, fn func(ctx context.Context, c engine.Client) error) error {
	err := s.try(ctx, endpoint, fn)
	if err == nil || terminal(err) || errors.Is(err, cluster.ErrNotFound) || errors.Is(err, cluster.ErrClusterUnreachable) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", cluster.ErrClusterUnreachable, endpoint, err)
}

func (s *Selector) try(ctx context.Context, endpoint string, fn func(ctx context.Context, c engine.Client) error) error {
	c, err := s.dialer.Dial(endpoint)
	if err != nil {
		return fmt.Errorf("%w: failed to dial: %w", cluster.ErrClusterUnreachable, err)
	}
	defer c.Close()

	return fn(ctx, c)
}

func terminal(err error) bool {
	return errors.Is(err, cluster.ErrConflictRejected) ||
		errors.Is(err, cluster.ErrValidation)
}
