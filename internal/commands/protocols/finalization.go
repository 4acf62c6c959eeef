package protocols

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/graph"
	"github.com/BogBogdan/ot-node/internal/kgstore"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/triplestore"
	"github.com/BogBogdan/ot-node/internal/ual"
)

// FinalizationInput carries a finalization event from the chain through the sequence.
// The cached fields are filled by readCachedPublishDataCommand.
type FinalizationInput struct {
	Blockchain         string `json:"blockchain"`
	Contract           string `json:"contract"`
	CollectionID       uint64 `json:"collectionId"`
	MerkleRoot         string `json:"merkleRoot"`
	PublishOperationID string `json:"publishOperationId"`
	ByteSize           int64  `json:"byteSize,omitempty"`

	UAL              string              `json:"ual,omitempty"`
	CachedMerkleRoot string              `json:"cachedMerkleRoot,omitempty"`
	RemotePeerID     string              `json:"remotePeerId,omitempty"`
	Assertion        knowledge.Assertion `json:"assertion,omitempty"`
	// PendingGraphs, when set, limits a retried store to the graphs that failed last time.
	PendingGraphs []string `json:"pendingGraphs,omitempty"`
}

type FinalizationResult struct {
	UAL    string `json:"ual"`
	Assets int    `json:"assets"`
}

type readCachedPublishData struct {
	tracker Tracker
	pending *pendingstorage.Storage
	retries int
	delay   time.Duration
}

func (h *readCachedPublishData) Name() string { return ReadCachedPublishDataCommand }

func (h *readCachedPublishData) Default() runtime.Policy {
	return runtime.Policy{
		Retries: h.retries,
		Backoff: runtime.Backoff{Kind: runtime.BackoffFixed, Min: h.delay},
	}
}

func (h *readCachedPublishData) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[FinalizationInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrFinalization, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.FinalizationReadCacheStart)

	publishID, err := uuid.Parse(in.PublishOperationID)
	if err != nil {
		return runtime.Fail(opstatus.ErrFinalization, fmt.Sprintf("invalid publish operation id %q", in.PublishOperationID))
	}
	doc, err := h.pending.Read(publishID)
	if err != nil {
		// the publish may still be in flight on this node
		return retryAs(err, opstatus.ErrFinalization)
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.FinalizationReadCacheEnd)
	return runtime.Advance(map[string]any{
		"ual":              ual.Derive(in.Blockchain, in.Contract, in.CollectionID),
		"cachedMerkleRoot": doc.MerkleRoot,
		"remotePeerId":     doc.RemotePeerID,
		"assertion":        toMap(doc.Assertion),
	})
}

type validateAssertionMerkleRoot struct {
	tracker Tracker
}

func (h *validateAssertionMerkleRoot) Name() string { return ValidateAssertionMerkleRootCommand }

func (h *validateAssertionMerkleRoot) Default() runtime.Policy { return runtime.Policy{} }

func (h *validateAssertionMerkleRoot) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[FinalizationInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrValidateMerkleRoot, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.FinalizationValidateStart)

	computed := graph.MerkleRoot(in.Assertion.Public)
	if computed != in.MerkleRoot {
		return runtime.Fail(opstatus.ErrValidateMerkleRoot,
			fmt.Sprintf("Invalid Merkle Root for Knowledge Collection: %s. Received value from blockchain: %s, Calculated value: %s",
				in.UAL, in.MerkleRoot, computed))
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.FinalizationValidateEnd)
	return runtime.Advance(nil)
}

type storeAssertion struct {
	log     *logger.Logger
	tracker Tracker
	store   KnowledgeStore
	chain   blockchain.Client
	pending *pendingstorage.Storage
	unified bool
}

func (h *storeAssertion) Name() string { return StoreAssertionCommand }

func (h *storeAssertion) Default() runtime.Policy {
	return runtime.Policy{
		Retries: 3,
		Backoff: runtime.Backoff{Kind: runtime.BackoffExponential, Min: time.Second, Max: 30 * time.Second},
	}
}

func (h *storeAssertion) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[FinalizationInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrStoreAssertion, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.FinalizationStoreStart)

	plan, err := h.plan(rc.Ctx, in)
	if err != nil {
		return runtime.FromError(err, opstatus.ErrStoreAssertion)
	}

	inserts := plan.inserts
	if len(in.PendingGraphs) > 0 {
		inserts = onlyGraphs(inserts, in.PendingGraphs)
	}
	if err := h.store.InsertGraphs(rc.Ctx, knowledge.RepoDKG, inserts); err != nil {
		var partial *triplestore.PartialInsertError
		if errors.As(err, &partial) {
			out := runtime.RetryWith(err, map[string]any{"pendingGraphs": toAnySlice(partial.Failed)})
			out.ErrorKind = opstatus.ErrStoreAssertion
			return out
		}
		return runtime.FromError(err, opstatus.ErrStoreAssertion)
	}

	if err := h.store.InsertKnowledgeCollectionMetadata(rc.Ctx, knowledge.RepoDKG, plan.metadata); err != nil {
		return runtime.FromError(err, opstatus.ErrStoreAssertion)
	}
	if h.unified {
		if err := h.store.InsertIntoUnifiedGraph(rc.Ctx, knowledge.RepoDKG, graph.UnifiedGraph, plan.unified); err != nil {
			return runtime.FromError(err, opstatus.ErrStoreAssertion)
		}
	}

	if id, err := uuid.Parse(in.PublishOperationID); err == nil {
		if err := h.pending.Remove(id); err != nil {
			rc.Log.Warn("Failed to remove pending publish data", "publish_operation_id", id, "error", err)
		}
	}
	result := FinalizationResult{UAL: in.UAL, Assets: len(plan.assets)}
	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, in.Blockchain, result,
		[]string{opstatus.FinalizationStoreEnd, opstatus.FinalizationEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}

type storePlan struct {
	assets   []string
	inserts  []triplestore.GraphInsert
	metadata []string
	unified  kgstore.UnifiedAssets
}

// plan maps subject groups onto asset UALs. Public groups are taken in sorted subject
// order and matched to the live token indices; a private group joins the asset whose
// public group shares its subject.
func (h *storeAssertion) plan(ctx context.Context, in FinalizationInput) (storePlan, error) {
	var p storePlan
	collectionUAL := in.UAL
	if collectionUAL == "" {
		collectionUAL = ual.Derive(in.Blockchain, in.Contract, in.CollectionID)
	}
	public := graph.GroupBySubject(in.Assertion.Public, true)
	if len(public) == 0 {
		return p, apperr.Validation(opstatus.ErrStoreAssertion, "assertion for %s has no public triples", collectionUAL)
	}

	r, err := h.chain.KnowledgeAssetsRange(ctx, in.Blockchain, in.Contract, in.CollectionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return p, err
		}
		h.log.Debug("Token range unavailable, numbering assets from 1", "ual", collectionUAL, "error", err)
		r = knowledge.TokenRange{Start: 1, End: uint64(len(public))}
	}
	indices := r.Indices()
	if len(indices) != len(public) {
		return p, apperr.Validation(opstatus.ErrStoreAssertion,
			"collection %s has %d live assets but the assertion holds %d subjects", collectionUAL, len(indices), len(public))
	}

	bySubject := make(map[string]int, len(public))
	for i, group := range public {
		bySubject[graph.Subject(group[0])] = i
	}
	private := make([][]string, len(public))
	for _, group := range graph.GroupBySubject(in.Assertion.Private, true) {
		i, ok := bySubject[graph.Subject(group[0])]
		if !ok {
			h.log.Warn("Private triples without a public subject skipped", "ual", collectionUAL, "subject", graph.Subject(group[0]))
			continue
		}
		private[i] = append(private[i], group...)
	}

	meta := graph.PublishMetadata{
		Publisher:   in.RemotePeerID,
		PublishedAt: time.Now().UTC(),
		MerkleRoot:  in.MerkleRoot,
		ByteSize:    in.ByteSize,
	}
	for i, idx := range indices {
		asset := graph.AssetUAL(collectionUAL, idx)
		p.assets = append(p.assets, asset)
		graphs := []string{graph.VisibilityGraph(asset, knowledge.VisibilityPublic)}
		p.inserts = append(p.inserts, triplestore.GraphInsert{Graph: graphs[0], Statements: public[i]})
		if len(private[i]) > 0 {
			g := graph.VisibilityGraph(asset, knowledge.VisibilityPrivate)
			graphs = append(graphs, g)
			p.inserts = append(p.inserts, triplestore.GraphInsert{Graph: g, Statements: private[i]})
		}
		statements, err := graph.AssetMetadata(asset, graphs, meta)
		if err != nil {
			return p, err
		}
		p.metadata = append(p.metadata, statements...)
	}
	p.unified = kgstore.UnifiedAssets{
		CollectionUAL: collectionUAL,
		FirstIndex:    indices[0],
		Public:        public,
		Private:       private,
	}
	return p, nil
}

func onlyGraphs(inserts []triplestore.GraphInsert, names []string) []triplestore.GraphInsert {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	out := make([]triplestore.GraphInsert, 0, len(names))
	for _, in := range inserts {
		if _, ok := keep[in.Graph]; ok {
			out = append(out, in)
		}
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
