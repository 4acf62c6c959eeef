package protocols

import (
	"fmt"
	"time"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/network"
)

type AskInput struct {
	UAL                 string         `json:"ual"`
	Blockchain          string         `json:"blockchain"`
	DatasetRoot         string         `json:"datasetRoot,omitempty"`
	MinimumReplications int            `json:"minimumNumberOfNodeReplications,omitempty"`
	Peers               []network.Peer `json:"peers,omitempty"`
}

// retryAs retries err and, once the budget is spent, fails the operation with kind.
func retryAs(err error, kind string) runtime.Outcome {
	out := runtime.Retry(err)
	out.ErrorKind = kind
	return out
}

// findShard resolves the peers for blockchainID. It is shared by ask and publish.
func findShard(rc *runtime.Context, net network.Client, blockchainID, kind string) ([]network.Peer, *runtime.Outcome) {
	peers, err := net.FindShard(rc.Ctx, blockchainID)
	if err != nil {
		out := runtime.FromError(err, kind)
		return nil, &out
	}
	if len(peers) == 0 {
		out := runtime.Fail(kind, fmt.Sprintf("Unable to find enough nodes for blockchain %s", blockchainID))
		return nil, &out
	}
	return peers, nil
}

type askFindShard struct {
	tracker Tracker
	net     network.Client
}

func (h *askFindShard) Name() string { return AskFindShardCommand }

func (h *askFindShard) Default() runtime.Policy { return runtime.Policy{} }

func (h *askFindShard) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[AskInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrAsk, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.AskFindNodesStart)
	peers, fail := findShard(rc, h.net, in.Blockchain, opstatus.ErrAsk)
	if fail != nil {
		return *fail
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.AskFindNodesEnd)
	return runtime.Advance(map[string]any{"peers": toPeerData(peers)})
}

type networkAsk struct {
	tracker Tracker
	net     network.Client
	retries int
}

func (h *networkAsk) Name() string { return NetworkAskCommand }

func (h *networkAsk) Default() runtime.Policy {
	return runtime.Policy{
		Retries: h.retries,
		Backoff: runtime.Backoff{Kind: runtime.BackoffExponential, Min: time.Second, Max: 30 * time.Second},
	}
}

func (h *networkAsk) Execute(rc *runtime.Context) runtime.Outcome {
	in, err := decode[AskInput](rc)
	if err != nil {
		return runtime.Fail(opstatus.ErrAskNetwork, err.Error())
	}
	setStatus(rc, h.tracker, in.Blockchain, opstatus.AskNetworkStart)
	min := in.MinimumReplications
	if min <= 0 {
		min = 1
	}
	resp, err := h.net.Ask(rc.Ctx, in.Peers, network.AskRequest{
		UAL:                 in.UAL,
		Blockchain:          in.Blockchain,
		DatasetRoot:         in.DatasetRoot,
		MinimumReplications: min,
	})
	if err != nil {
		return runtime.FromError(err, opstatus.ErrAskNetwork)
	}
	if resp == nil || resp.Responses < min {
		got := 0
		if resp != nil {
			got = resp.Responses
		}
		return retryAs(fmt.Errorf("ask for %s got %d of %d required responses", in.UAL, got, min), opstatus.ErrAskNetwork)
	}
	if _, err := h.tracker.MarkOperationAsCompleted(rc.DB, rc.OperationID, in.Blockchain, resp,
		[]string{opstatus.AskNetworkEnd, opstatus.AskEnd}); err != nil {
		return runtime.Retry(err)
	}
	return runtime.Continue()
}

func toPeerData(peers []network.Peer) []any {
	out := make([]any, len(peers))
	for i, p := range peers {
		out[i] = map[string]any{"id": p.ID}
	}
	return out
}
