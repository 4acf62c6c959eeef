package kgstore

import (
	"context"
	"fmt"

	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/triplestore"
)

// UnifiedAssets is one collection's content for the unified graph, grouped by asset.
// Group i belongs to asset FirstIndex+i.
type UnifiedAssets struct {
	CollectionUAL string
	FirstIndex    uint64
	Public        [][]string
	Private       [][]string
}

// InsertIntoUnifiedGraph stores each triple once and annotates it with the owning asset
// UAL, so assets sharing a triple add annotations instead of copies. Private triples also
// carry the private label.
func (s *Store) InsertIntoUnifiedGraph(ctx context.Context, repository, namedGraph string, in UnifiedAssets) error {
	uals := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = "<" + graph.AssetUAL(in.CollectionUAL, in.FirstIndex+uint64(i)) + ">"
		}
		return out
	}
	var statements []string
	for _, group := range in.Public {
		statements = append(statements, group...)
	}
	for _, group := range in.Private {
		statements = append(statements, group...)
	}
	statements = append(statements, graph.TripleAnnotations(in.Public, graph.UALPredicate, uals(len(in.Public)))...)
	statements = append(statements, graph.TripleAnnotations(in.Private, graph.UALPredicate, uals(len(in.Private)))...)
	labels := make([]string, len(in.Private))
	for i := range labels {
		labels[i] = graph.Literal(graph.PrivateLabel)
	}
	statements = append(statements, graph.TripleAnnotations(in.Private, graph.LabelPredicate, labels)...)
	if len(statements) == 0 {
		return nil
	}
	return s.ts.InsertGraphs(ctx, repository, []triplestore.GraphInsert{{
		Graph:      namedGraph,
		Statements: graph.Dedupe(statements),
	}})
}

// GetKnowledgeCollectionFromUnifiedGraph returns the triples annotated with any asset of
// the collection. publicOnly excludes triples labelled private.
func (s *Store) GetKnowledgeCollectionFromUnifiedGraph(ctx context.Context, repository, namedGraph, collectionUAL string, publicOnly, sorted bool) ([]string, error) {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
CONSTRUCT { ?s ?p ?o . }
WHERE {
    GRAPH %s {
        << ?s ?p ?o >> %s ?ual .
        FILTER(STRSTARTS(STR(?ual), %s))
        %s
    }
}
%s`, graph.SchemaContext, g, graph.UALPredicate, graph.Literal(graph.SubjectPrefix(collectionUAL)),
		privateFilter(publicOnly), orderBy(sorted))
	return s.ts.Construct(ctx, repository, query)
}

func (s *Store) GetKnowledgeAssetFromUnifiedGraph(ctx context.Context, repository, namedGraph, assetUAL string, publicOnly bool) ([]string, error) {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return nil, err
	}
	u, err := graph.IRI(assetUAL)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
CONSTRUCT { ?s ?p ?o . }
WHERE {
    GRAPH %s {
        << ?s ?p ?o >> %s %s .
        %s
    }
}`, graph.SchemaContext, g, graph.UALPredicate, u, privateFilter(publicOnly))
	return s.ts.Construct(ctx, repository, query)
}

func (s *Store) KnowledgeCollectionExistsInUnifiedGraph(ctx context.Context, repository, namedGraph, collectionUAL string) (bool, error) {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`ASK
WHERE {
    GRAPH %s {
        << ?s ?p ?o >> %s ?ual
        FILTER(STRSTARTS(STR(?ual), %s))
    }
}`, g, graph.UALPredicate, graph.Literal(graph.SubjectPrefix(collectionUAL)))
	return s.ts.Ask(ctx, repository, query)
}

func (s *Store) KnowledgeAssetExistsInUnifiedGraph(ctx context.Context, repository, namedGraph, assetUAL string) (bool, error) {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return false, err
	}
	u, err := graph.IRI(assetUAL)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`ASK
WHERE {
    GRAPH %s {
        << ?s ?p ?o >> %s %s
    }
}`, g, graph.UALPredicate, u)
	return s.ts.Ask(ctx, repository, query)
}

// DeleteUniqueKnowledgeCollectionTriplesFromUnifiedGraph removes the collection's triples
// that no other UAL annotates. The reference count and the delete are one statement.
func (s *Store) DeleteUniqueKnowledgeCollectionTriplesFromUnifiedGraph(ctx context.Context, repository, namedGraph, collectionUAL string) error {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return err
	}
	match := fmt.Sprintf(`<< ?s ?p ?o >> %s ?annotationValue .
    }
    FILTER(STRSTARTS(STR(?annotationValue), %s))`, graph.UALPredicate, graph.Literal(graph.SubjectPrefix(collectionUAL)))
	return s.ts.Update(ctx, repository, deleteUniqueQuery(g, match))
}

// DeleteUniqueKnowledgeAssetTriplesFromUnifiedGraph removes the asset's triples whose only
// annotation is this asset.
func (s *Store) DeleteUniqueKnowledgeAssetTriplesFromUnifiedGraph(ctx context.Context, repository, namedGraph, assetUAL string) error {
	g, err := graph.IRI(namedGraph)
	if err != nil {
		return err
	}
	u, err := graph.IRI(assetUAL)
	if err != nil {
		return err
	}
	match := fmt.Sprintf(`<< ?s ?p ?o >> %s %s .
    }`, graph.UALPredicate, u)
	return s.ts.Update(ctx, repository, deleteUniqueQuery(g, match))
}

func deleteUniqueQuery(g, match string) string {
	return fmt.Sprintf(`DELETE {
    GRAPH %[1]s {
        ?s ?p ?o .
        << ?s ?p ?o >> ?annotationPredicate ?annotationValue .
    }
}
WHERE {
    GRAPH %[1]s {
        %[2]s

    {
        SELECT ?s ?p ?o (COUNT(?annotationValue) AS ?annotationCount)
        WHERE {
            GRAPH %[1]s {
                << ?s ?p ?o >> %[3]s ?annotationValue .
            }
        }
        GROUP BY ?s ?p ?o
        HAVING(?annotationCount = 1)
    }
}`, g, match, graph.UALPredicate)
}

func privateFilter(publicOnly bool) string {
	if !publicOnly {
		return ""
	}
	return fmt.Sprintf(`FILTER NOT EXISTS {
            << ?s ?p ?o >> %s %s .
        }`, graph.LabelPredicate, graph.Literal(graph.PrivateLabel))
}

func orderBy(sorted bool) string {
	if sorted {
		return "ORDER BY ?s"
	}
	return ""
}
