package kgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/BogBogdan/ot-node/internal/graph"
)

// InsertKnowledgeCollectionMetadata writes <ual> predicate object statements into the
// metadata graph.
func (s *Store) InsertKnowledgeCollectionMetadata(ctx context.Context, repository string, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
INSERT DATA {
    GRAPH <%s> {
        %s
    }
}`, graph.SchemaContext, graph.MetadataGraph, strings.Join(statements, "\n        "))
	return s.ts.Update(ctx, repository, query)
}

// DeleteKnowledgeCollectionMetadata removes metadata of every subject under the collection.
func (s *Store) DeleteKnowledgeCollectionMetadata(ctx context.Context, repository, collectionUAL string) error {
	query := fmt.Sprintf(`DELETE
WHERE {
    GRAPH <%s> {
        ?ual ?p ?o .
        FILTER(STRSTARTS(STR(?ual), %s))
    }
}`, graph.MetadataGraph, graph.Literal(graph.SubjectPrefix(collectionUAL)))
	return s.ts.Update(ctx, repository, query)
}

func (s *Store) GetKnowledgeCollectionMetadata(ctx context.Context, repository, collectionUAL string) ([]string, error) {
	query := fmt.Sprintf(`CONSTRUCT { ?ual ?p ?o . }
WHERE {
    GRAPH <%s> {
        ?ual ?p ?o .
        FILTER(STRSTARTS(STR(?ual), %s))
    }
}`, graph.MetadataGraph, graph.Literal(graph.SubjectPrefix(collectionUAL)))
	return s.ts.Construct(ctx, repository, query)
}

// GetKnowledgeAssetMetadata matches the asset UAL exactly, not as a prefix.
func (s *Store) GetKnowledgeAssetMetadata(ctx context.Context, repository, assetUAL string) ([]string, error) {
	u, err := graph.IRI(assetUAL)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`CONSTRUCT { %[2]s ?p ?o . }
WHERE {
    GRAPH <%[1]s> {
        %[2]s ?p ?o .
    }
}`, graph.MetadataGraph, u)
	return s.ts.Construct(ctx, repository, query)
}

func (s *Store) KnowledgeCollectionMetadataExists(ctx context.Context, repository, collectionUAL string) (bool, error) {
	query := fmt.Sprintf(`ASK {
    GRAPH <%s> {
        ?ual ?p ?o
        FILTER(STRSTARTS(STR(?ual), %s))
    }
}`, graph.MetadataGraph, graph.Literal(graph.SubjectPrefix(collectionUAL)))
	return s.ts.Ask(ctx, repository, query)
}
