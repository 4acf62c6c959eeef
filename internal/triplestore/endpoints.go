package triplestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// endpoint is a resolved repository. Fields are immutable after construction.
type endpoint struct {
	logical  string
	physical string
	base     string
	username string
	password string
	query    string
	update   string
	health   string
}

func newEndpoint(flavor Flavor, logical string, rc RepositoryConfig) *endpoint {
	physical := rc.Name
	if physical == "" {
		physical = logical
	}
	base := strings.TrimRight(rc.URL, "/")
	e := &endpoint{
		logical:  logical,
		physical: physical,
		base:     base,
		username: rc.Username,
		password: rc.Password,
	}
	name := url.PathEscape(physical)
	switch flavor {
	case FlavorGraphDB:
		e.query = base + "/repositories/" + name
		e.update = base + "/repositories/" + name + "/statements"
		e.health = base + "/rest/repositories/" + name
	case FlavorBlazegraph:
		e.query = base + "/blazegraph/namespace/" + name + "/sparql"
		e.update = e.query
		e.health = base + "/blazegraph/namespace/" + name + "/properties"
	default:
		e.query = base + "/" + name + "/sparql"
		e.update = base + "/" + name + "/update"
		e.health = base + "/$/ping"
	}
	return e
}

func (e *endpoint) config() RepositoryConfig {
	return RepositoryConfig{URL: e.base, Name: e.physical, Username: e.username, Password: e.password}
}

func (e *endpoint) authorize(req *http.Request) {
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}
}

// existsRequest asks the store whether the physical repository exists.
func (e *endpoint) existsRequest(ctx context.Context, flavor Flavor) (*http.Request, error) {
	var u string
	switch flavor {
	case FlavorGraphDB:
		u = e.base + "/rest/repositories/" + url.PathEscape(e.physical)
	case FlavorBlazegraph:
		u = e.base + "/blazegraph/namespace/" + url.PathEscape(e.physical) + "/properties"
	default:
		u = e.base + "/$/datasets/" + url.PathEscape(e.physical)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	e.authorize(req)
	return req, nil
}

// createRequest builds the flavor-specific repository creation call.
func (e *endpoint) createRequest(ctx context.Context, flavor Flavor) (*http.Request, error) {
	var (
		u           string
		body        io.Reader
		contentType string
	)
	switch flavor {
	case FlavorGraphDB:
		u = e.base + "/rest/repositories"
		body = strings.NewReader(fmt.Sprintf(
			`{"id":%q,"title":%q,"type":"graphdb","params":{"ruleset":{"name":"ruleset","value":"empty"}}}`,
			e.physical, e.physical))
		contentType = "application/json"
	case FlavorBlazegraph:
		u = e.base + "/blazegraph/namespace"
		body = strings.NewReader(strings.Join([]string{
			"com.bigdata.rdf.sail.namespace=" + e.physical,
			"com.bigdata.rdf.store.AbstractTripleStore.quads=true",
			"com.bigdata.rdf.store.AbstractTripleStore.statementIdentifiers=false",
			"com.bigdata.rdf.sail.truthMaintenance=false",
		}, "\n"))
		contentType = "text/plain"
	default:
		u = e.base + "/$/datasets"
		body = strings.NewReader(url.Values{"dbName": {e.physical}, "dbType": {"tdb2"}}.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	e.authorize(req)
	return req, nil
}
