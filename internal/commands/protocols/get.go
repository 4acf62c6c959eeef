package protocols

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/kgstore"
	"github.com/BogBogdan/ot-node/internal/network"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/ual"
)

type GetInput struct {
	Blockchain      string               `json:"blockchain,omitempty"`
	UAL             string               `json:"ual"`
	ParanetUAL      string               `json:"paranetUAL,omitempty"`
	ContentType     knowledge.Visibility `json:"contentType,omitempty"`
	IncludeMetadata bool                 `json:"includeMetadata,omitempty"`
	AssertionID     string               `json:"assertionId,omitempty"`
	LegacyMode      string               `json:"legacyMode,omitempty"`
	IsOperationV0   bool                 `json:"isOperationV0,omitempty"`
	IsV6Contract    bool                 `json:"isV6Contract,omitempty"`
}

// GetResult is the cached result of a get. Assertion is a knowledge.Assertion for
// UAL-addressed content and a flat statement list for legacy assertions.
type GetResult struct {
	Assertion any      `json:"assertion"`
	Metadata  []string `json:"metadata,omitempty"`
}

func (in GetInput) visibility() (knowledge.Visibility, error) {
	if in.ContentType == "" {
		return knowledge.VisibilityAll, nil
	}
	v, ok := knowledge.ParseVisibility(string(in.ContentType))
	if !ok {
		return "", apperr.Validation(kgstore.ErrKindVisibility, "unsupported content type %q", in.ContentType)
	}
	return v, nil
}

type getValidateAsset struct {
	tracker  Tracker
	chain    blockchain.Client
	paranets ParanetSyncer
}

func (h *getValidateAsset) Name() string { return GetValidateAssetCommand }

func (h *getValidateAsset) Default() runtime.Policy { return runtime.Policy{} }

func (h *getValidateAsset) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[GetInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrGetValidateAsset, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.GetValidateAssetStart)

	u, err := ual.Parse(in.UAL)
	if err != nil {
		return runtime.Fail(opstatus.ErrGetValidateAsset,
			fmt.Sprintf("Get for operation id: %s, UAL: %s: is not a UAL.", rc.OperationID, in.UAL))
	}
	if in.ParanetUAL != "" {
		if !ual.IsUAL(in.ParanetUAL) {
			return runtime.Fail(opstatus.ErrGetValidateAsset,
				fmt.Sprintf("Get for operation id: %s, Paranet UAL: %s: is not a UAL.", rc.OperationID, in.ParanetUAL))
		}
		if _, _, err := h.paranets.ValidateParanet(rc.Ctx, in.ParanetUAL); err != nil {
			return runtime.FromError(err, opstatus.ErrGetValidateAsset)
		}
	}

	if !in.IsOperationV0 && !in.IsV6Contract {
		exists, err := h.chain.KnowledgeCollectionExists(rc.Ctx, u.Blockchain, u.Contract, u.CollectionID)
		if err != nil {
			return runtime.FromError(err, opstatus.ErrGetValidateAsset)
		}
		if !exists {
			return runtime.Fail(opstatus.ErrGetValidateAsset,
				fmt.Sprintf("Get for operation id: %s, UAL: %s: there is no asset with this UAL.", rc.OperationID, in.UAL))
		}
	}
	setStatus(rc, h.tracker, u.Blockchain, opstatus.GetValidateAssetEnd)
	return runtime.Advance(map[string]any{runtime.KeyBlockchain: u.Blockchain})
}

type localGet struct {
	log     *logger.Logger
	tracker Tracker
	store   KnowledgeStore
	chain   blockchain.Client
}

func (h *localGet) Name() string { return LocalGetCommand }

func (h *localGet) Default() runtime.Policy { return runtime.Policy{} }

func (h *localGet) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[GetInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrGetLocal, err.Error())
	}
	blockchainID := rc.Blockchain()
	setStatus(rc, h.tracker, blockchainID, opstatus.GetLocalStart)

	u, err := ual.Parse(in.UAL)
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetLocal)
	}
	v, err := in.visibility()
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetLocal)
	}

	if in.ParanetUAL != "" {
		repository := ual.ParanetRepositoryName(in.ParanetUAL)
		if err := h.store.EnsureParanetRepository(rc.Ctx, repository); err != nil {
			return runtime.FromError(err, opstatus.ErrGetLocal)
		}
		result, found, err := h.read(rc, in, u, v, repository, knowledge.LegacyMigrated)
		if err != nil {
			return runtime.FromError(err, opstatus.ErrGetLocal)
		}
		if !found {
			return runtime.Fail(opstatus.ErrGetLocal,
				fmt.Sprintf("Unable to locally find an asset with UAL: %s in the paranet with UAL: %s", in.UAL, in.ParanetUAL))
		}
		return h.complete(rc, blockchainID, result)
	}

	result, found, err := h.read(rc, in, u, v, knowledge.RepoDKG, knowledge.ParseLegacyMode(in.LegacyMode))
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetLocal)
	}
	if found {
		return h.complete(rc, blockchainID, result)
	}
	setStatus(rc, h.tracker, blockchainID, opstatus.GetLocalEnd)
	return runtime.Advance(nil)
}

func (h *localGet) complete(rc *runtime.Context, blockchainID string, result GetResult) runtime.Outcome {
	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, blockchainID, result,
		[]string{opstatus.GetLocalEnd, opstatus.GetEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}

// read loads the assertion and, when asked, its metadata in parallel. mode decides which
// storage generations are consulted: migrated reads UAL-addressed graphs only,
// notMigrated reads the legacy assertion only, unknown tries UAL-addressed first.
func (h *localGet) read(rc *runtime.Context, in GetInput, u ual.UAL, v knowledge.Visibility, repository string, mode knowledge.LegacyMode) (GetResult, bool, error) {
	var (
		result GetResult
		found  bool
	)
	g, gctx := errgroup.WithContext(rc.Ctx)
	h.tracker.EmitChangeEvent(rc.DB, opstatus.GetLocalGetAssertionStart, rc.OperationID, u.Blockchain)
	g.Go(func() error {
		if mode != knowledge.LegacyNotMigrated {
			a, err := h.readCurrent(gctx, repository, u, v)
			if err != nil {
				return err
			}
			if !a.Empty() {
				result.Assertion, found = a, true
			}
		}
		if !found && mode != knowledge.LegacyMigrated {
			quads, err := h.readLegacy(gctx, in)
			if err != nil {
				return err
			}
			if len(quads) > 0 {
				result.Assertion, found = quads, true
			}
		}
		h.tracker.EmitChangeEvent(rc.DB, opstatus.GetLocalGetAssertionEnd, rc.OperationID, u.Blockchain)
		return nil
	})
	if in.IncludeMetadata {
		h.tracker.EmitChangeEvent(rc.DB, opstatus.GetLocalGetMetadataStart, rc.OperationID, u.Blockchain)
		g.Go(func() error {
			var (
				meta []string
				err  error
			)
			if u.HasAsset {
				meta, err = h.store.GetKnowledgeAssetMetadata(gctx, repository, u.String())
			} else {
				meta, err = h.store.GetKnowledgeCollectionMetadata(gctx, repository, u.String())
			}
			if err != nil {
				return err
			}
			result.Metadata = meta
			h.tracker.EmitChangeEvent(rc.DB, opstatus.GetLocalGetMetadataEnd, rc.OperationID, u.Blockchain)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GetResult{}, false, err
	}
	return result, found, nil
}

func (h *localGet) readCurrent(ctx context.Context, repository string, u ual.UAL, v knowledge.Visibility) (knowledge.Assertion, error) {
	var out knowledge.Assertion
	if u.HasAsset {
		if v.IncludesPublic() {
			quads, err := h.store.GetKnowledgeAsset(ctx, repository, u.String(), knowledge.VisibilityPublic)
			if err != nil {
				return out, err
			}
			out.Public = quads
		}
		if v.IncludesPrivate() {
			quads, err := h.store.GetKnowledgeAsset(ctx, repository, u.String(), knowledge.VisibilityPrivate)
			if err != nil {
				return out, err
			}
			out.Private = quads
		}
		return out, nil
	}
	r, err := h.chain.KnowledgeAssetsRange(ctx, u.Blockchain, u.Contract, u.CollectionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		// collections from the old asset storage contract hold a single asset
		h.log.Debug("Token range unavailable, assuming a single asset", "ual", u.String(), "error", err)
		r = knowledge.TokenRange{Start: 1, End: 1}
	}
	return h.store.GetKnowledgeCollection(ctx, repository, u.String(), r, v)
}

func (h *localGet) readLegacy(ctx context.Context, in GetInput) ([]string, error) {
	assertionID := in.AssertionID
	if assertionID == "" {
		for _, repo := range []string{knowledge.RepoPrivateCurrent, knowledge.RepoPublicCurrent} {
			id, err := h.store.GetLatestAssertionID(ctx, repo, in.UAL)
			if err != nil {
				return nil, err
			}
			if id != "" {
				assertionID = id
				break
			}
		}
	}
	if assertionID == "" {
		return nil, nil
	}
	quads, _, err := h.store.ReadLegacy(ctx, assertionID)
	return quads, err
}

type networkGet struct {
	tracker Tracker
	net     network.Client
	retries int
}

func (h *networkGet) Name() string { return NetworkGetCommand }

func (h *networkGet) Default() runtime.Policy {
	return runtime.Policy{
		Retries: h.retries,
		Backoff: runtime.Backoff{Kind: runtime.BackoffExponential, Min: time.Second, Max: 30 * time.Second},
	}
}

func (h *networkGet) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[GetInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrGetNetwork, err.Error())
	}
	blockchainID := rc.Blockchain()
	setStatus(rc, h.tracker, blockchainID, opstatus.GetNetworkStart)

	peers, err := h.net.FindShard(rc.Ctx, blockchainID)
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetNetwork)
	}
	if len(peers) == 0 {
		return runtime.Fail(opstatus.ErrGetNetwork, fmt.Sprintf("no peers found in shard for blockchain %s", blockchainID))
	}
	v, err := in.visibility()
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetNetwork)
	}
	resp, err := h.net.Get(rc.Ctx, peers, network.GetRequest{
		UAL:             in.UAL,
		Blockchain:      blockchainID,
		ParanetUAL:      in.ParanetUAL,
		Visibility:      v,
		IncludeMetadata: in.IncludeMetadata,
	})
	if err != nil {
		return runtime.FromError(err, opstatus.ErrGetNetwork)
	}
	if resp == nil || resp.Assertion.Empty() {
		return runtime.Fail(opstatus.ErrGetNetwork, fmt.Sprintf("Unable to find assertion on the network for UAL: %s", in.UAL))
	}
	result := GetResult{Assertion: resp.Assertion}
	if in.IncludeMetadata {
		result.Metadata = resp.Metadata
	}
	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, blockchainID, result,
		[]string{opstatus.GetNetworkEnd, opstatus.GetEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}
