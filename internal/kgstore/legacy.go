package kgstore

import (
	"context"
	"fmt"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/graph"
)

// GetLatestAssertionID looks up the assertion a pre-UAL asset points at. Empty when
// the asset is unknown to the legacy layout.
func (s *Store) GetLatestAssertionID(ctx context.Context, repository, assetUAL string) (string, error) {
	u, err := graph.IRI(assetUAL)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`SELECT ?assertionId
WHERE {
    GRAPH <%s> {
        %s ?p ?assertionId
    }
}`, graph.LegacyAssetsGraph, u)
	rows, err := s.ts.Select(ctx, repository, query)
	if err != nil || len(rows) == 0 {
		return "", err
	}
	return graph.LegacyAssertionID(rows[0]["assertionId"]), nil
}

// GetV6Assertion reads an assertion-id keyed graph. The id is escaped before it is
// placed in IRI position.
func (s *Store) GetV6Assertion(ctx context.Context, repository, assertionID string) ([]string, error) {
	if assertionID == "" {
		return nil, nil
	}
	g, err := graph.IRI(graph.LegacyAssertionGraph(assertionID))
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`PREFIX schema: <%s>
CONSTRUCT { ?s ?p ?o }
WHERE {
    {
        GRAPH %s {
            ?s ?p ?o .
        }
    }
}`, graph.SchemaContext, g)
	return s.ts.Construct(ctx, repository, query)
}

// ReadLegacy tries the private then the public V6 repository and returns the first
// non-empty assertion along with the repository it came from.
func (s *Store) ReadLegacy(ctx context.Context, assertionID string) ([]string, string, error) {
	for _, repo := range []string{knowledge.RepoPrivateCurrent, knowledge.RepoPublicCurrent} {
		quads, err := s.GetV6Assertion(ctx, repo, assertionID)
		if err != nil {
			return nil, "", err
		}
		if len(quads) > 0 {
			return quads, repo, nil
		}
	}
	return nil, "", nil
}
