// Package blockchain declares what the node reads from chain. The RPC implementation lives
// outside this repository; the node runs against NotConfigured until one is wired in.
package blockchain

import (
	"context"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/domain/paranet"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

const ErrKindNotConfigured = "BLOCKCHAIN_NOT_CONFIGURED"

type Client interface {
	KnowledgeCollectionExists(ctx context.Context, blockchain, contract string, collectionID uint64) (bool, error)
	KnowledgeAssetsRange(ctx context.Context, blockchain, contract string, collectionID uint64) (knowledge.TokenRange, error)
	KnowledgeCollectionMerkleRoot(ctx context.Context, blockchain, contract string, collectionID uint64) (string, error)
	ParanetExists(ctx context.Context, blockchain, paranetID string) (bool, error)
	NodesAccessPolicy(ctx context.Context, blockchain, paranetID string) (paranet.AccessPolicy, error)
	ParanetMetadata(ctx context.Context, blockchain, paranetID string) (ParanetMetadata, error)
	// ParanetKnowledgeCollections lists collection UALs registered in a paranet, paged.
	ParanetKnowledgeCollections(ctx context.Context, blockchain, paranetID string, offset, limit int) ([]string, error)
}

type ParanetMetadata struct {
	Name        string
	Description string
}

// NotConfigured refuses every call with a policy error, so operations that need the chain
// fail with a clear kind instead of retrying.
type NotConfigured struct{}

func (NotConfigured) err() error {
	return apperr.Policy(ErrKindNotConfigured, "blockchain access is not configured on this node")
}

func (n NotConfigured) KnowledgeCollectionExists(context.Context, string, string, uint64) (bool, error) {
	return false, n.err()
}

func (n NotConfigured) KnowledgeAssetsRange(context.Context, string, string, uint64) (knowledge.TokenRange, error) {
	return knowledge.TokenRange{}, n.err()
}

func (n NotConfigured) KnowledgeCollectionMerkleRoot(context.Context, string, string, uint64) (string, error) {
	return "", n.err()
}

func (n NotConfigured) ParanetExists(context.Context, string, string) (bool, error) {
	return false, n.err()
}

func (n NotConfigured) NodesAccessPolicy(context.Context, string, string) (paranet.AccessPolicy, error) {
	return "", n.err()
}

func (n NotConfigured) ParanetMetadata(context.Context, string, string) (ParanetMetadata, error) {
	return ParanetMetadata{}, n.err()
}

func (n NotConfigured) ParanetKnowledgeCollections(context.Context, string, string, int, int) ([]string, error) {
	return nil, n.err()
}
