package triplestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/observability"
)

// GraphInsert is the content of one named graph.
type GraphInsert struct {
	Graph      string
	Statements []string
}

// PartialInsertError reports the graphs that exhausted their retries. Graphs not
// listed were written; re-running with only Failed resumes the batch.
type PartialInsertError struct {
	Repository string
	Failed     []string
	Errs       []error
}

func (e *PartialInsertError) Error() string {
	return fmt.Sprintf("insert into %s failed for %d graph(s): %s",
		e.Repository, len(e.Failed), strings.Join(e.Failed, ", "))
}

// Unwrap exposes the last underlying failure so callers can classify it.
func (e *PartialInsertError) Unwrap() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[len(e.Errs)-1]
}

// InsertGraphs writes each graph independently with a bounded retry and fixed delay.
// There is no batch-wide rollback.
func (c *Client) InsertGraphs(ctx context.Context, repository string, inserts []GraphInsert) error {
	var partial *PartialInsertError
	for _, in := range inserts {
		update, err := insertDataQuery(in.Graph, in.Statements)
		if err != nil {
			return err
		}
		var lastErr error
		for attempt := 1; attempt <= c.cfg.InsertRetries; attempt++ {
			lastErr = c.Update(ctx, repository, update)
			if lastErr == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.cfg.InsertRetries {
				c.log.Warn("Insert failed, retrying",
					"graph", in.Graph,
					"attempt", attempt,
					"retries", c.cfg.InsertRetries,
					"retry_in", c.cfg.InsertRetryDelay.String(),
					"error", lastErr,
				)
				if metrics := observability.Current(); metrics != nil {
					metrics.GraphInsertRetry(repository)
				}
				if err := c.sleep(ctx, c.cfg.InsertRetryDelay); err != nil {
					return err
				}
			}
		}
		if lastErr != nil {
			c.log.Error("Insert failed after retries", "graph", in.Graph, "retries", c.cfg.InsertRetries, "error", lastErr)
			if partial == nil {
				partial = &PartialInsertError{Repository: repository}
			}
			partial.Failed = append(partial.Failed, in.Graph)
			partial.Errs = append(partial.Errs, lastErr)
		}
	}
	if partial != nil {
		return partial
	}
	return nil
}

// DropGraphs removes whole named graphs in one update request.
func (c *Client) DropGraphs(ctx context.Context, repository string, graphs []string) error {
	if len(graphs) == 0 {
		return nil
	}
	stmts := make([]string, 0, len(graphs))
	for _, g := range graphs {
		iri, err := graph.IRI(g)
		if err != nil {
			return err
		}
		stmts = append(stmts, "DROP SILENT GRAPH "+iri)
	}
	return c.Update(ctx, repository, strings.Join(stmts, ";\n")+";")
}

func insertDataQuery(graphName string, statements []string) (string, error) {
	iri, err := graph.IRI(graphName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`PREFIX schema: <%s>
INSERT DATA {
    GRAPH %s {
        %s
    }
}`, graph.SchemaContext, iri, strings.Join(statements, "\n        ")), nil
}
