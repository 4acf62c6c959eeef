package protocols

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/graph"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const (
	QueryTypeConstruct = "CONSTRUCT"
	QueryTypeSelect    = "SELECT"

	ErrKindUnknownRepository = "UNKNOWN_REPOSITORY"
	ErrKindQueryType         = "UNSUPPORTED_QUERY_TYPE"
)

// Repositories accepts a single repository name or a list of them.
type Repositories []string

func (r *Repositories) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*r = nil
		} else {
			*r = Repositories{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("repository must be a string or a list of strings")
	}
	*r = many
	return nil
}

type QueryInput struct {
	Query      string       `json:"query"`
	QueryType  string       `json:"queryType"`
	Repository Repositories `json:"repository,omitempty"`
	ParanetUAL string       `json:"paranetUAL,omitempty"`
}

type queryCmd struct {
	tracker      Tracker
	query        QueryStore
	syncParanets []string
}

func (h *queryCmd) Name() string { return QueryCommand }

func (h *queryCmd) Default() runtime.Policy { return runtime.Policy{} }

func (h *queryCmd) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[QueryInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrLocalQuery, err.Error())
	}
	setStatus(rc, h.tracker, "", opstatus.QueryStart)

	repositories, err := h.repositories(rc.Ctx, in)
	if err != nil {
		return runtime.FromError(err, opstatus.ErrLocalQuery)
	}
	query, err := h.query.RewriteFederated(in.Query, func(token string) (string, error) {
		return h.resolve(rc.Ctx, token)
	})
	if err != nil {
		return runtime.FromError(err, opstatus.ErrLocalQuery)
	}

	var (
		data      any
		endStatus string
	)
	switch strings.ToUpper(strings.TrimSpace(in.QueryType)) {
	case QueryTypeConstruct:
		h.tracker.EmitChangeEvent(rc.DB, opstatus.QueryConstructStart, rc.OperationID, "")
		var quads []string
		for _, repo := range repositories {
			out, err := h.query.Construct(rc.Ctx, repo, query)
			if err != nil {
				return runtime.FromError(err, opstatus.ErrLocalQuery)
			}
			quads = append(quads, out...)
		}
		if len(repositories) > 1 {
			quads = graph.Dedupe(quads)
		}
		data, endStatus = quads, opstatus.QueryConstructEnd
		h.tracker.EmitChangeEvent(rc.DB, opstatus.QueryConstructEnd, rc.OperationID, "")
	case QueryTypeSelect:
		h.tracker.EmitChangeEvent(rc.DB, opstatus.QuerySelectStart, rc.OperationID, "")
		var rows []map[string]string
		for _, repo := range repositories {
			out, err := h.query.Select(rc.Ctx, repo, query)
			if err != nil {
				return runtime.FromError(err, opstatus.ErrLocalQuery)
			}
			rows = append(rows, out...)
		}
		if len(repositories) > 1 {
			rows = dedupeRows(rows)
		}
		data, endStatus = rows, opstatus.QuerySelectEnd
		h.tracker.EmitChangeEvent(rc.DB, opstatus.QuerySelectEnd, rc.OperationID, "")
	default:
		return runtime.Fail(ErrKindQueryType, fmt.Sprintf("Unknown query type %s", in.QueryType))
	}

	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, "", data,
		[]string{endStatus, opstatus.QueryEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}

func (h *queryCmd) repositories(ctx context.Context, in QueryInput) ([]string, error) {
	if in.ParanetUAL != "" {
		if !ual.IsUAL(in.ParanetUAL) {
			return nil, apperr.Validation("INVALID_UAL", "paranet UAL %s is not a UAL", in.ParanetUAL)
		}
		repository := ual.ParanetRepositoryName(in.ParanetUAL)
		if err := h.query.EnsureParanetRepository(ctx, repository); err != nil {
			return nil, err
		}
		return []string{repository}, nil
	}
	if len(in.Repository) == 0 {
		return []string{knowledge.RepoDKG}, nil
	}
	for _, repo := range in.Repository {
		if !h.query.HasRepository(repo) {
			return nil, apperr.Validation(ErrKindUnknownRepository, "Query failed! Repository with name: %s doesn't exist", repo)
		}
	}
	return in.Repository, nil
}

// resolve maps a SERVICE token to a repository: a synced paranet UAL or a known name.
// A synced paranet's repository is provisioned on first reference.
func (h *queryCmd) resolve(ctx context.Context, token string) (string, error) {
	if ual.IsUAL(token) {
		for _, p := range h.syncParanets {
			if p == token {
				repository := ual.ParanetRepositoryName(token)
				if err := h.query.EnsureParanetRepository(ctx, repository); err != nil {
					return "", err
				}
				return repository, nil
			}
		}
		return "", apperr.Validation(ErrKindUnknownRepository, "Query failed! Paranet %s is not synced by this node", token)
	}
	if h.query.HasRepository(token) {
		return token, nil
	}
	return "", apperr.Validation(ErrKindUnknownRepository, "Query failed! Repository with name: %s doesn't exist", token)
}

// dedupeRows drops rows with identical bindings, keeping first occurrence order.
func dedupeRows(rows []map[string]string) []map[string]string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		key, err := json.Marshal(row)
		if err != nil {
			out = append(out, row)
			continue
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, row)
	}
	return out
}
