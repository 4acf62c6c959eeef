// Package network declares the peer protocol calls the node makes. The libp2p transport is
// external; NotConfigured stands in until one is wired in.
package network

import (
	"context"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

const ErrKindNotConfigured = "NETWORK_NOT_CONFIGURED"

type Peer struct {
	ID string `json:"id"`
}

type GetRequest struct {
	UAL             string               `json:"ual"`
	Blockchain      string               `json:"blockchain"`
	ParanetUAL      string               `json:"paranetUAL,omitempty"`
	Visibility      knowledge.Visibility `json:"contentType"`
	IncludeMetadata bool                 `json:"includeMetadata"`
}

type GetResponse struct {
	Assertion knowledge.Assertion `json:"assertion"`
	Metadata  []string            `json:"metadata,omitempty"`
}

type AskRequest struct {
	UAL                 string `json:"ual"`
	Blockchain          string `json:"blockchain"`
	DatasetRoot         string `json:"datasetRoot,omitempty"`
	MinimumReplications int    `json:"minimumNumberOfNodeReplications"`
}

type AskResponse struct {
	Responses int  `json:"responses"`
	Found     bool `json:"found"`
}

type PublishRequest struct {
	Blockchain string              `json:"blockchain"`
	MerkleRoot string              `json:"datasetRoot"`
	Assertion  knowledge.Assertion `json:"dataset"`
}

type PublishResponse struct {
	Acks       int      `json:"acks"`
	Signatures []string `json:"signatures,omitempty"`
}

type Client interface {
	FindShard(ctx context.Context, blockchain string) ([]Peer, error)
	Get(ctx context.Context, peers []Peer, req GetRequest) (*GetResponse, error)
	Ask(ctx context.Context, peers []Peer, req AskRequest) (*AskResponse, error)
	Publish(ctx context.Context, peers []Peer, req PublishRequest) (*PublishResponse, error)
}

type NotConfigured struct{}

func (NotConfigured) err() error {
	return apperr.Policy(ErrKindNotConfigured, "peer network is not configured on this node")
}

func (n NotConfigured) FindShard(context.Context, string) ([]Peer, error) { return nil, n.err() }

func (n NotConfigured) Get(context.Context, []Peer, GetRequest) (*GetResponse, error) {
	return nil, n.err()
}

func (n NotConfigured) Ask(context.Context, []Peer, AskRequest) (*AskResponse, error) {
	return nil, n.err()
}

func (n NotConfigured) Publish(context.Context, []Peer, PublishRequest) (*PublishResponse, error) {
	return nil, n.err()
}
