package triplestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/observability"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/httpx"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

const (
	mediaNQuads      = "application/n-quads"
	mediaResultsJSON = "application/sparql-results+json"
	formContentType  = "application/x-www-form-urlencoded"

	// ErrKindQuery tags store-side rejections of a query.
	ErrKindQuery = "TRIPLE_STORE_QUERY_ERROR"
	// ErrKindRepository tags references to repositories the node does not know.
	ErrKindRepository = "UNKNOWN_REPOSITORY"
)

// Client speaks the SPARQL 1.1 protocol to every configured repository.
// Connections are per request; nothing is held between calls.
type Client struct {
	cfg   Config
	log   *logger.Logger
	http  *http.Client
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	repos map[string]*endpoint

	provisionMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithSleep replaces the wait used between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func New(cfg Config, baseLog *logger.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:   cfg,
		log:   baseLog.With("component", "TripleStoreClient", "flavor", string(cfg.Flavor)),
		http:  &http.Client{},
		sleep: sleepCtx,
		repos: map[string]*endpoint{},
	}
	for name, rc := range cfg.Repositories {
		c.repos[name] = newEndpoint(cfg.Flavor, name, rc)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) HasRepository(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.repos[name]
	return ok
}

// Repositories lists the logical repository names in sorted order.
func (c *Client) Repositories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.repos))
	for name := range c.repos {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SparqlEndpoint returns the query URL of a logical repository.
func (c *Client) SparqlEndpoint(name string) (string, bool) {
	e, err := c.endpoint(name)
	if err != nil {
		return "", false
	}
	return e.query, true
}

func (c *Client) endpoint(name string) (*endpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.repos[name]
	if !ok {
		return nil, apperr.Validation(ErrKindRepository, "repository with name: %s doesn't exist", name)
	}
	return e, nil
}

// Construct runs a CONSTRUCT query and returns n-quad statements.
func (c *Client) Construct(ctx context.Context, repository, query string) ([]string, error) {
	body, err := c.do(ctx, repository, "construct", "query", query, mediaNQuads)
	if err != nil {
		return nil, err
	}
	return graph.SplitLines(string(body)), nil
}

// Select runs a SELECT query. Each row maps variable names to term values.
func (c *Client) Select(ctx context.Context, repository, query string) ([]map[string]string, error) {
	body, err := c.do(ctx, repository, "select", "query", query, mediaResultsJSON)
	if err != nil {
		return nil, err
	}
	var res selectResults
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode select results: %w", err)
	}
	rows := make([]map[string]string, 0, len(res.Results.Bindings))
	for _, b := range res.Results.Bindings {
		row := make(map[string]string, len(b))
		for k, term := range b {
			row[k] = term.String()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) Ask(ctx context.Context, repository, query string) (bool, error) {
	body, err := c.do(ctx, repository, "ask", "query", query, mediaResultsJSON)
	if err != nil {
		return false, err
	}
	var res struct {
		Boolean bool `json:"boolean"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, fmt.Errorf("decode ask result: %w", err)
	}
	return res.Boolean, nil
}

func (c *Client) Update(ctx context.Context, repository, update string) error {
	_, err := c.do(ctx, repository, "update", "update", update, "")
	return err
}

func (c *Client) do(ctx context.Context, repository, kind, param, text, accept string) (body []byte, err error) {
	e, err := c.endpoint(repository)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "triplestore."+kind,
		attribute.String("triplestore.repository", repository),
		attribute.String("triplestore.flavor", string(c.cfg.Flavor)),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveTripleStore(repository, kind, result, time.Since(start))
		}
		observability.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	target := e.query
	if kind == "update" {
		target = e.update
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(url.Values{param: {text}}.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formContentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	e.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", apperr.ErrUnavailable, kind, repository, err)
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response from %s: %v", apperr.ErrUnavailable, kind, repository, err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case !httpx.IsRetryableHTTPStatus(resp.StatusCode):
		return nil, apperr.Validation(ErrKindQuery, "%s rejected by %s (%d): %s", kind, repository, resp.StatusCode, truncate(string(body), 512))
	default:
		return nil, fmt.Errorf("%w: %s on %s returned %d: %s", apperr.ErrUnavailable, kind, repository, resp.StatusCode, truncate(string(body), 512))
	}
}

type selectResults struct {
	Results struct {
		Bindings []map[string]rdfTerm `json:"bindings"`
	} `json:"results"`
}

type rdfTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// String keeps typed literals distinguishable, matching "value"^^<type>.
func (t rdfTerm) String() string {
	switch {
	case t.Type == "literal" && t.Datatype != "":
		return graph.Literal(t.Value) + "^^<" + t.Datatype + ">"
	case t.Type == "literal" && t.Lang != "":
		return graph.Literal(t.Value) + "@" + t.Lang
	default:
		return t.Value
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
