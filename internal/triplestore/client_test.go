package triplestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// fakeFuseki is a minimal Fuseki-shaped SPARQL server.
type fakeFuseki struct {
	mu        sync.Mutex
	datasets  map[string]bool
	updates   map[string][]string
	failures  map[string]int // substring of update -> remaining failures (-1 = always)
	construct string
	selectJS  string
	askValue  bool
	status    int
	accepts   []string
}

func newFakeFuseki(datasets ...string) *fakeFuseki {
	f := &fakeFuseki{datasets: map[string]bool{}, updates: map[string][]string{}, failures: map[string]int{}}
	for _, d := range datasets {
		f.datasets[d] = true
	}
	return f
}

func (f *fakeFuseki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case path == "/$/ping":
		w.WriteHeader(http.StatusOK)
		return
	case strings.HasPrefix(path, "/$/datasets/") && r.Method == http.MethodGet:
		if f.datasets[strings.TrimPrefix(path, "/$/datasets/")] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	case path == "/$/datasets" && r.Method == http.MethodPost:
		_ = r.ParseForm()
		f.datasets[r.PostForm.Get("dbName")] = true
		w.WriteHeader(http.StatusOK)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte("forced"))
		return
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || !f.datasets[parts[0]] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = r.ParseForm()
	f.accepts = append(f.accepts, r.Header.Get("Accept"))
	switch parts[1] {
	case "update":
		u := r.PostForm.Get("update")
		for key, remaining := range f.failures {
			if strings.Contains(u, key) && remaining != 0 {
				if remaining > 0 {
					f.failures[key] = remaining - 1
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		f.updates[parts[0]] = append(f.updates[parts[0]], u)
		w.WriteHeader(http.StatusNoContent)
	case "sparql":
		q := r.PostForm.Get("query")
		switch {
		case strings.HasPrefix(strings.TrimSpace(q), "ASK"):
			w.Header().Set("Content-Type", mediaResultsJSON)
			_ = json.NewEncoder(w).Encode(map[string]any{"boolean": f.askValue})
		case strings.Contains(q, "SELECT"):
			w.Header().Set("Content-Type", mediaResultsJSON)
			_, _ = w.Write([]byte(f.selectJS))
		default:
			w.Header().Set("Content-Type", mediaNQuads)
			_, _ = w.Write([]byte(f.construct))
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, url string, extra ...string) *Client {
	t.Helper()
	repos := map[string]RepositoryConfig{
		knowledge.RepoPublicCurrent: {URL: url, Name: knowledge.RepoPublicCurrent},
		knowledge.RepoDKG:           {URL: url, Name: knowledge.RepoDKG},
	}
	for _, e := range extra {
		repos[e] = RepositoryConfig{URL: url, Name: e}
	}
	c, err := New(Config{
		Flavor:                FlavorFuseki,
		Repositories:          repos,
		ConnectMaxRetries:     2,
		ConnectRetryFrequency: time.Millisecond,
		InsertRetries:         3,
		InsertRetryDelay:      time.Millisecond,
		QueryTimeout:          5 * time.Second,
	}, logger.NewNop(), WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	return c
}

func TestClient_ConstructSelectAsk(t *testing.T) {
	fake := newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent)
	fake.construct = "<s> <p> <o> .\n\n<s> <p> \"x\" .\n"
	fake.selectJS = `{"head":{"vars":["s","n"]},"results":{"bindings":[
		{"s":{"type":"uri","value":"http://ex/s"},"n":{"type":"literal","value":"3","datatype":"http://www.w3.org/2001/XMLSchema#integer"}}
	]}}`
	fake.askValue = true
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	quads, err := c.Construct(ctx, knowledge.RepoDKG, "CONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	require.Equal(t, []string{"<s> <p> <o> .", "<s> <p> \"x\" ."}, quads)

	rows, err := c.Select(ctx, knowledge.RepoDKG, "SELECT ?s ?n WHERE { ?s ?p ?n }")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "http://ex/s", rows[0]["s"])
	require.Equal(t, `"3"^^<http://www.w3.org/2001/XMLSchema#integer>`, rows[0]["n"])

	ok, err := c.Ask(ctx, knowledge.RepoDKG, "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, []string{mediaNQuads, mediaResultsJSON, mediaResultsJSON}, fake.accepts)
}

func TestClient_UnknownRepositoryIsValidationError(t *testing.T) {
	srv := httptest.NewServer(newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Construct(context.Background(), "nope", "CONSTRUCT {} WHERE {}")
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	require.False(t, apperr.IsRetryable(err))
}

func TestClient_StatusClassification(t *testing.T) {
	fake := newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	fake.mu.Lock()
	fake.status = http.StatusBadRequest
	fake.mu.Unlock()
	_, err := c.Construct(context.Background(), knowledge.RepoDKG, "CONSTRUCT")
	require.Error(t, err)
	require.False(t, apperr.IsRetryable(err))

	fake.mu.Lock()
	fake.status = http.StatusServiceUnavailable
	fake.mu.Unlock()
	_, err = c.Construct(context.Background(), knowledge.RepoDKG, "CONSTRUCT")
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	require.True(t, apperr.IsRetryable(err))
}

func TestClient_InsertGraphsRetriesEachGraphIndependently(t *testing.T) {
	fake := newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent)
	fake.failures["u/1/public"] = 2  // succeeds on the third attempt
	fake.failures["u/2/public"] = -1 // never succeeds
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	err := c.InsertGraphs(context.Background(), knowledge.RepoDKG, []GraphInsert{
		{Graph: "u/1/public", Statements: []string{"<a> <b> <c> ."}},
		{Graph: "u/2/public", Statements: []string{"<d> <e> <f> ."}},
		{Graph: "u/3/public", Statements: []string{"<g> <h> <i> ."}},
	})
	require.Error(t, err)
	var partial *PartialInsertError
	require.ErrorAs(t, err, &partial)
	require.Equal(t, []string{"u/2/public"}, partial.Failed)
	require.True(t, apperr.IsRetryable(err))

	written := fake.updates[knowledge.RepoDKG]
	require.Len(t, written, 2)
	require.Contains(t, written[0], "GRAPH <u/1/public>")
	require.Contains(t, written[1], "GRAPH <u/3/public>")
}

func TestClient_EnsureConnectionsFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newTestClient(t, url)

	err := c.EnsureConnections(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestClient_EnsureConnectionsCreatesMissingRepository(t *testing.T) {
	fake := newFakeFuseki(knowledge.RepoPublicCurrent)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.EnsureConnections(context.Background()))
	require.True(t, fake.datasets[knowledge.RepoDKG])
}

func TestClient_EnsureParanetRepositoryClonesPublicCurrent(t *testing.T) {
	fake := newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	name := "hardhat1-31337-0xabc-1"
	require.False(t, c.HasRepository(name))
	require.NoError(t, c.EnsureParanetRepository(context.Background(), name))
	require.True(t, c.HasRepository(name))
	require.True(t, fake.datasets[name])

	endpoint, ok := c.SparqlEndpoint(name)
	require.True(t, ok)
	require.Equal(t, srv.URL+"/"+name+"/sparql", endpoint)

	require.NoError(t, c.Update(context.Background(), name, "INSERT DATA { <a> <b> <c> }"))
	require.Len(t, fake.updates[name], 1)
}

// firstPingGate holds the first health check open until released.
type firstPingGate struct {
	http.Handler
	once    sync.Once
	arrived chan struct{}
	release chan struct{}
}

func (g *firstPingGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/$/ping" {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.arrived)
			<-g.release
		}
	}
	g.Handler.ServeHTTP(w, r)
}

func TestClient_PingDoesNotBlockProvisioning(t *testing.T) {
	gate := &firstPingGate{
		Handler: newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent),
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv := httptest.NewServer(gate)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	pinged := make(chan error, 1)
	go func() { pinged <- c.Ping(context.Background()) }()
	<-gate.arrived

	provisioned := make(chan error, 1)
	go func() { provisioned <- c.EnsureParanetRepository(context.Background(), "hardhat1-31337-0xabc-1") }()
	select {
	case err := <-provisioned:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(gate.release)
		t.Fatal("provisioning waited on an in-flight ping")
	}
	close(gate.release)
	require.NoError(t, <-pinged)
}

func TestClient_RewriteFederated(t *testing.T) {
	srv := httptest.NewServer(newFakeFuseki(knowledge.RepoDKG, knowledge.RepoPublicCurrent))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	resolve := func(token string) (string, error) {
		if c.HasRepository(token) {
			return token, nil
		}
		return "", apperr.Validation(ErrKindRepository, "Query failed! Repository with name: %s doesn't exist", token)
	}
	q := "SELECT * WHERE { SERVICE <dkg> { ?s ?p ?o } SERVICE <publicCurrent> { ?s ?p ?x } }"
	out, err := c.RewriteFederated(q, resolve)
	require.NoError(t, err)
	require.Contains(t, out, "SERVICE <"+srv.URL+"/dkg/sparql>")
	require.Contains(t, out, "SERVICE <"+srv.URL+"/publicCurrent/sparql>")

	_, err = c.RewriteFederated("SELECT * WHERE { SERVICE <other> { ?s ?p ?o } }", resolve)
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
