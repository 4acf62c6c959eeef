// Package kgstore owns the mapping from (UAL, visibility) to named-graph content.
// No other package writes triples.
package kgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/graph"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/triplestore"
)

const ErrKindVisibility = "UNSUPPORTED_VISIBILITY"

// TripleStore is the subset of the SPARQL client the store needs.
type TripleStore interface {
	Construct(ctx context.Context, repository, query string) ([]string, error)
	Select(ctx context.Context, repository, query string) ([]map[string]string, error)
	Ask(ctx context.Context, repository, query string) (bool, error)
	Update(ctx context.Context, repository, update string) error
	InsertGraphs(ctx context.Context, repository string, inserts []triplestore.GraphInsert) error
	DropGraphs(ctx context.Context, repository string, graphs []string) error
	EnsureParanetRepository(ctx context.Context, name string) error
}

type Store struct {
	ts  TripleStore
	log *logger.Logger
}

func New(ts TripleStore, baseLog *logger.Logger) *Store {
	return &Store{ts: ts, log: baseLog.With("component", "KnowledgeGraphStore")}
}

// CreateKnowledgeCollectionGraphs writes one named graph per asset for a single visibility.
// Each graph is retried on its own; a *triplestore.PartialInsertError lists the graphs
// that still need writing.
func (s *Store) CreateKnowledgeCollectionGraphs(ctx context.Context, repository string, assetUALs []string, triplesPerAsset [][]string, v knowledge.Visibility) error {
	if v != knowledge.VisibilityPublic && v != knowledge.VisibilityPrivate {
		return apperr.Validation(ErrKindVisibility, "unsupported visibility for insert: %s", v)
	}
	if len(assetUALs) != len(triplesPerAsset) {
		return apperr.Validation("INVALID_ASSERTION", "got %d asset UALs for %d triple groups", len(assetUALs), len(triplesPerAsset))
	}
	inserts := make([]triplestore.GraphInsert, 0, len(assetUALs))
	for i, u := range assetUALs {
		if len(triplesPerAsset[i]) == 0 {
			continue
		}
		inserts = append(inserts, triplestore.GraphInsert{
			Graph:      graph.VisibilityGraph(u, v),
			Statements: triplesPerAsset[i],
		})
	}
	return s.InsertGraphs(ctx, repository, inserts)
}

// InsertGraphs writes prepared graph contents. It is also the resume path after a
// partial failure of CreateKnowledgeCollectionGraphs.
func (s *Store) InsertGraphs(ctx context.Context, repository string, inserts []triplestore.GraphInsert) error {
	if len(inserts) == 0 {
		return nil
	}
	return s.ts.InsertGraphs(ctx, repository, inserts)
}

// GetKnowledgeCollection reads every live asset graph in r with one CONSTRUCT per
// requested visibility. Burned indices are never addressed.
func (s *Store) GetKnowledgeCollection(ctx context.Context, repository, collectionUAL string, r knowledge.TokenRange, v knowledge.Visibility) (knowledge.Assertion, error) {
	var out knowledge.Assertion
	if _, ok := knowledge.ParseVisibility(string(v)); !ok {
		return out, apperr.Validation(ErrKindVisibility, "unsupported visibility: %s", v)
	}
	if v == "" {
		v = knowledge.VisibilityAll
	}
	if len(r.Indices()) == 0 {
		return out, nil
	}
	if v.IncludesPublic() {
		quads, err := s.constructValues(ctx, repository, graph.CollectionGraphs(collectionUAL, r, knowledge.VisibilityPublic))
		if err != nil {
			return out, err
		}
		out.Public = quads
	}
	if v.IncludesPrivate() {
		quads, err := s.constructValues(ctx, repository, graph.CollectionGraphs(collectionUAL, r, knowledge.VisibilityPrivate))
		if err != nil {
			return out, err
		}
		out.Private = quads
	}
	return out, nil
}

func (s *Store) constructValues(ctx context.Context, repository string, graphs []string) ([]string, error) {
	values, err := graph.IRIs(graphs)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
CONSTRUCT {
    ?s ?p ?o .
}
WHERE {
    GRAPH ?g {
        ?s ?p ?o .
    }
    VALUES ?g {
        %s
    }
}`, graph.SchemaContext, strings.ReplaceAll(values, "\n", "\n        "))
	return s.ts.Construct(ctx, repository, query)
}

// GetKnowledgeAsset reads a single asset's graphs.
func (s *Store) GetKnowledgeAsset(ctx context.Context, repository, assetUAL string, v knowledge.Visibility) ([]string, error) {
	var where string
	switch v {
	case knowledge.VisibilityPublic, knowledge.VisibilityPrivate:
		iri, err := graph.IRI(graph.VisibilityGraph(assetUAL, v))
		if err != nil {
			return nil, err
		}
		where = fmt.Sprintf("GRAPH %s { ?s ?p ?o . }", iri)
	case knowledge.VisibilityAll, "":
		pub, err := graph.IRI(graph.VisibilityGraph(assetUAL, knowledge.VisibilityPublic))
		if err != nil {
			return nil, err
		}
		priv, err := graph.IRI(graph.VisibilityGraph(assetUAL, knowledge.VisibilityPrivate))
		if err != nil {
			return nil, err
		}
		where = fmt.Sprintf("{ GRAPH %s { ?s ?p ?o . } } UNION { GRAPH %s { ?s ?p ?o . } }", pub, priv)
	default:
		return nil, apperr.Validation(ErrKindVisibility, "unsupported visibility: %s", v)
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
CONSTRUCT { ?s ?p ?o }
WHERE {
    %s
}`, graph.SchemaContext, where)
	return s.ts.Construct(ctx, repository, query)
}

// KnowledgeCollectionExists probes the first public asset graph.
func (s *Store) KnowledgeCollectionExists(ctx context.Context, repository, collectionUAL string) (bool, error) {
	return s.NamedGraphExists(ctx, repository, graph.AssetGraph(collectionUAL, 1, knowledge.VisibilityPublic))
}

func (s *Store) NamedGraphExists(ctx context.Context, repository, name string) (bool, error) {
	iri, err := graph.IRI(name)
	if err != nil {
		return false, err
	}
	return s.ts.Ask(ctx, repository, fmt.Sprintf("ASK { GRAPH %s { ?s ?p ?o } }", iri))
}

// DeleteKnowledgeCollection drops both visibility graphs of every live asset in r.
func (s *Store) DeleteKnowledgeCollection(ctx context.Context, repository, collectionUAL string, r knowledge.TokenRange) error {
	graphs := append(
		graph.CollectionGraphs(collectionUAL, r, knowledge.VisibilityPublic),
		graph.CollectionGraphs(collectionUAL, r, knowledge.VisibilityPrivate)...,
	)
	return s.ts.DropGraphs(ctx, repository, graphs)
}

// DeleteKnowledgeAsset drops an asset's own graphs. Shared triples live in the unified
// graph and are handled by DeleteUniqueKnowledgeAssetTriplesFromUnifiedGraph.
func (s *Store) DeleteKnowledgeAsset(ctx context.Context, repository, assetUAL string) error {
	return s.ts.DropGraphs(ctx, repository, []string{
		graph.VisibilityGraph(assetUAL, knowledge.VisibilityPublic),
		graph.VisibilityGraph(assetUAL, knowledge.VisibilityPrivate),
	})
}

// EnsureParanetRepository provisions a paranet repository cloned from publicCurrent.
func (s *Store) EnsureParanetRepository(ctx context.Context, repository string) error {
	return s.ts.EnsureParanetRepository(ctx, repository)
}
