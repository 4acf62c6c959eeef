package protocols

import (
	"fmt"
	"time"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/network"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
)

// PublishInput is the command payload of a publish. The dataset itself waits in pending
// storage under the operation id.
type PublishInput struct {
	Blockchain          string         `json:"blockchain"`
	DatasetRoot         string         `json:"datasetRoot"`
	MinimumReplications int            `json:"minimumNumberOfNodeReplications,omitempty"`
	Peers               []network.Peer `json:"peers,omitempty"`
}

type PublishResult struct {
	DatasetRoot string   `json:"datasetRoot"`
	Acks        int      `json:"acks"`
	Signatures  []string `json:"signatures,omitempty"`
}

type publishFindShard struct {
	tracker Tracker
	net     network.Client
}

func (h *publishFindShard) Name() string { return PublishFindShardCommand }

func (h *publishFindShard) Default() runtime.Policy { return runtime.Policy{} }

func (h *publishFindShard) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[PublishInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrPublish, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.PublishFindNodesStart)
	peers, fail := findShard(rc, h.net, in.Blockchain, opstatus.ErrPublish)
	if fail != nil {
		return *fail
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.PublishFindNodesEnd)
	return runtime.Advance(map[string]any{"peers": toPeerData(peers)})
}

type networkPublish struct {
	tracker         Tracker
	net             network.Client
	pending         *pendingstorage.Storage
	retries         int
	minReplications int
}

func (h *networkPublish) Name() string { return NetworkPublishCommand }

func (h *networkPublish) Default() runtime.Policy {
	return runtime.Policy{
		Retries: h.retries,
		Backoff: runtime.Backoff{Kind: runtime.BackoffExponential, Min: time.Second, Max: 30 * time.Second},
	}
}

func (h *networkPublish) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[PublishInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrPublishNetwork, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.PublishReplicateStart)

	doc, err := h.pending.Read(rc.OperationID)
	if err != nil {
		return runtime.FromError(err, opstatus.ErrPublishNetwork)
	}
	min := in.MinimumReplications
	if min <= 0 {
		min = h.minReplications
	}
	resp, err := h.net.Publish(rc.Ctx, in.Peers, network.PublishRequest{
		Blockchain: in.Blockchain,
		MerkleRoot: doc.MerkleRoot,
		Assertion:  doc.Assertion,
	})
	if err != nil {
		return runtime.FromError(err, opstatus.ErrPublishNetwork)
	}
	if resp == nil || resp.Acks < min {
		got := 0
		if resp != nil {
			got = resp.Acks
		}
		return retryAs(fmt.Errorf("publish got %d of %d required replications", got, min), opstatus.ErrPublishNetwork)
	}
	result := PublishResult{DatasetRoot: doc.MerkleRoot, Acks: resp.Acks, Signatures: resp.Signatures}
	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, in.Blockchain, result,
		[]string{opstatus.PublishReplicateEnd, opstatus.PublishEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}
