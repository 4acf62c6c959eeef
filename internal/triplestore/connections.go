package triplestore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

// EnsureConnections health-checks every repository in parallel, retrying each at a fixed
// interval. Any repository still unreachable after the retry budget fails the whole call
// with ErrUnavailable; callers treat that as fatal.
func (c *Client) EnsureConnections(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range c.endpoints() {
		e := e
		g.Go(func() error {
			return c.ensureConnection(gctx, e)
		})
	}
	return g.Wait()
}

func (c *Client) ensureConnection(ctx context.Context, e *endpoint) error {
	ready := c.healthCheck(ctx, e)
	retries := 0
	for !ready && retries < c.cfg.ConnectMaxRetries {
		retries++
		c.log.Warn("Cannot connect to triple store, retrying",
			"repository", e.logical,
			"url", e.base,
			"retry", retries,
			"max_retries", c.cfg.ConnectMaxRetries,
			"retry_in", c.cfg.ConnectRetryFrequency.String(),
		)
		if err := c.sleep(ctx, c.cfg.ConnectRetryFrequency); err != nil {
			return err
		}
		ready = c.healthCheck(ctx, e)
	}
	if !ready {
		c.log.Error("Triple store not available, max retries reached", "repository", e.logical, "url", e.base)
		return fmt.Errorf("%w: triple store repository %s at %s", apperr.ErrUnavailable, e.logical, e.base)
	}
	return c.ensureRepository(ctx, e)
}

// healthCheck treats any non-5xx answer as a live server.
func (c *Client) healthCheck(ctx context.Context, e *endpoint) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.health, nil)
	if err != nil {
		return false
	}
	e.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

// ensureRepository creates the physical repository when the store reports it missing.
func (c *Client) ensureRepository(ctx context.Context, e *endpoint) error {
	req, err := e.existsRequest(ctx, c.cfg.Flavor)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: check repository %s: %v", apperr.ErrUnavailable, e.logical, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		return nil
	}

	c.log.Info("Creating triple store repository", "repository", e.logical, "physical", e.physical)
	creq, err := e.createRequest(ctx, c.cfg.Flavor)
	if err != nil {
		return err
	}
	cresp, err := c.http.Do(creq)
	if err != nil {
		return fmt.Errorf("%w: create repository %s: %v", apperr.ErrUnavailable, e.logical, err)
	}
	defer cresp.Body.Close()
	body, _ := io.ReadAll(cresp.Body)
	// 409 means someone else created it first
	if cresp.StatusCode >= 300 && cresp.StatusCode != http.StatusConflict {
		return fmt.Errorf("create repository %s: status %d: %s", e.logical, cresp.StatusCode, truncate(string(body), 256))
	}
	return nil
}

// EnsureParanetRepository provisions the repository backing a paranet on first use.
// It borrows the publicCurrent connection parameters under its own name; once
// registered it behaves like any configured repository.
func (c *Client) EnsureParanetRepository(ctx context.Context, name string) error {
	if c.HasRepository(name) {
		return nil
	}
	c.provisionMu.Lock()
	defer c.provisionMu.Unlock()
	if c.HasRepository(name) {
		return nil
	}
	base, err := c.endpoint(knowledge.RepoPublicCurrent)
	if err != nil {
		return err
	}
	rc := base.config()
	rc.Name = name
	e := newEndpoint(c.cfg.Flavor, name, rc)
	if err := c.ensureConnection(ctx, e); err != nil {
		return err
	}
	c.mu.Lock()
	c.repos[name] = e
	c.mu.Unlock()
	c.log.Info("Paranet repository initialized", "repository", name)
	return nil
}

// Ping checks every repository once without retrying.
func (c *Client) Ping(ctx context.Context) error {
	for _, e := range c.endpoints() {
		if !c.healthCheck(ctx, e) {
			return fmt.Errorf("%w: triple store repository %s at %s", apperr.ErrUnavailable, e.logical, e.base)
		}
	}
	return nil
}

// endpoints copies the registered repositories so callers can do I/O without the lock.
func (c *Client) endpoints() []*endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	eps := make([]*endpoint, 0, len(c.repos))
	for _, e := range c.repos {
		eps = append(eps, e)
	}
	return eps
}
