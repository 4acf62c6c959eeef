package paranet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/BogBogdan/ot-node/internal/blockchain"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	"github.com/BogBogdan/ot-node/internal/data/repos/testutil"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	domainparanet "github.com/BogBogdan/ot-node/internal/domain/paranet"
	"github.com/BogBogdan/ot-node/internal/network"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const (
	testParanetUAL = "did:dkg:hardhat1:31337:0x5fbdb2315678afecb367f032d93f642f64180aa3/1"
	testChain      = "hardhat1:31337"
	testContract   = "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512"
)

type fakeChain struct {
	blockchain.NotConfigured
	policy      domainparanet.AccessPolicy
	collections []string
	ranges      map[uint64]knowledge.TokenRange
}

func (f *fakeChain) ParanetExists(context.Context, string, string) (bool, error) { return true, nil }

func (f *fakeChain) NodesAccessPolicy(context.Context, string, string) (domainparanet.AccessPolicy, error) {
	return f.policy, nil
}

func (f *fakeChain) ParanetMetadata(context.Context, string, string) (blockchain.ParanetMetadata, error) {
	return blockchain.ParanetMetadata{Name: "test paranet"}, nil
}

func (f *fakeChain) ParanetKnowledgeCollections(_ context.Context, _, _ string, offset, limit int) ([]string, error) {
	if offset >= len(f.collections) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.collections) {
		end = len(f.collections)
	}
	return f.collections[offset:end], nil
}

func (f *fakeChain) KnowledgeAssetsRange(_ context.Context, _, _ string, id uint64) (knowledge.TokenRange, error) {
	r, ok := f.ranges[id]
	if !ok {
		return knowledge.TokenRange{}, errors.New("rpc timeout")
	}
	return r, nil
}

type fakeNetwork struct {
	network.NotConfigured
	assertions map[string]knowledge.Assertion
}

func (f *fakeNetwork) FindShard(context.Context, string) ([]network.Peer, error) {
	return []network.Peer{{ID: "peer-1"}}, nil
}

func (f *fakeNetwork) Get(_ context.Context, _ []network.Peer, req network.GetRequest) (*network.GetResponse, error) {
	a, ok := f.assertions[req.UAL]
	if !ok {
		return nil, fmt.Errorf("no peer returned %s", req.UAL)
	}
	return &network.GetResponse{Assertion: a, Metadata: []string{fmt.Sprintf("<%s> <urn:meta> \"m\" .", req.UAL)}}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	repos    map[string]bool
	graphs   map[string][]string
	metadata []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{repos: map[string]bool{}, graphs: map[string][]string{}}
}

func (s *fakeStore) EnsureParanetRepository(_ context.Context, repository string) error {
	s.mu.Lock()
	s.repos[repository] = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) CreateKnowledgeCollectionGraphs(_ context.Context, repository string, assetUALs []string, triples [][]string, v knowledge.Visibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.repos[repository] {
		return fmt.Errorf("repository %s not provisioned", repository)
	}
	for i, u := range assetUALs {
		s.graphs[u+"/"+string(v)] = triples[i]
	}
	return nil
}

func (s *fakeStore) InsertKnowledgeCollectionMetadata(_ context.Context, _ string, statements []string) error {
	s.mu.Lock()
	s.metadata = append(s.metadata, statements...)
	s.mu.Unlock()
	return nil
}

func collection(id uint64) string { return ual.Derive(testChain, testContract, id) }

func newManager(t *testing.T, chain *fakeChain, net *fakeNetwork, store *fakeStore, cfg Config) (*SyncManager, repos.Set) {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	return NewSyncManager(db, log, set.Paranets, set.ParanetKCs, store, chain, net, cfg), set
}

func TestSyncParanetStoresCollectionsAndCounts(t *testing.T) {
	chain := &fakeChain{
		policy:      domainparanet.AccessOpen,
		collections: []string{collection(1), collection(2), collection(3)},
		ranges: map[uint64]knowledge.TokenRange{
			1: {Start: 1, End: 2},
			2: {Start: 1, End: 3, Burned: []uint64{2}},
			3: {Start: 1, End: 1},
		},
	}
	net := &fakeNetwork{assertions: map[string]knowledge.Assertion{
		collection(1): {Public: []string{`<urn:a> <urn:p> "1" .`, `<urn:b> <urn:p> "2" .`}},
		collection(2): {Public: []string{`<urn:c> <urn:p> "3" .`, `<urn:d> <urn:p> "4" .`}},
		collection(3): {Public: []string{`<urn:e> <urn:p> "5" .`, `<urn:f> <urn:p> "6" .`}},
	}}
	store := newFakeStore()
	m, set := newManager(t, chain, net, store, Config{RetriesMax: 1, DiscoveryPageSize: 2})
	ctx := context.Background()

	res, err := m.SyncParanet(ctx, testParanetUAL)
	if err != nil {
		t.Fatalf("SyncParanet: %v", err)
	}
	if res.Discovered != 3 || res.Attempted != 3 || res.Synced != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, ok := store.graphs[collection(2)+"/3/public"]; !ok {
		t.Fatalf("asset 3 of collection 2 not stored: %v", store.graphs)
	}
	if _, ok := store.graphs[collection(2)+"/2/public"]; ok {
		t.Fatalf("burned asset stored")
	}
	if len(store.metadata) != 2 {
		t.Fatalf("expected metadata of 2 collections, got %v", store.metadata)
	}

	// collection 3 has one live asset but two subject groups
	rec, err := set.ParanetKCs.Get(dbctx.Context{Ctx: ctx}, collection(3), testParanetUAL)
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.IsSynced || rec.Retries != 1 || rec.ErrorMessage == nil {
		t.Fatalf("failed record not tracked: %+v", rec)
	}

	counts, err := m.Progress(ctx, testParanetUAL)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if counts.Total != 3 || counts.Synced != 2 || counts.Pending != 0 || counts.Exhausted != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	paranetID, _, _ := ual.ParanetIDFromUAL(testParanetUAL)
	p, err := set.Paranets.Get(dbctx.Context{Ctx: ctx}, paranetID, testChain)
	if err != nil || p == nil {
		t.Fatalf("paranet record missing: %v", err)
	}
	if p.KaCount != 4 || p.Name != "test paranet" {
		t.Fatalf("unexpected paranet record: %+v", p)
	}

	// A second pass finds nothing new and nothing eligible.
	res, err = m.SyncParanet(ctx, testParanetUAL)
	if err != nil {
		t.Fatalf("second SyncParanet: %v", err)
	}
	if res.Discovered != 0 || res.Attempted != 0 {
		t.Fatalf("second pass did work: %+v", res)
	}

	// A redelivered item must not count its assets twice.
	done, err := set.ParanetKCs.Get(dbctx.Context{Ctx: ctx}, collection(1), testParanetUAL)
	if err != nil || done == nil {
		t.Fatalf("Get: %v %v", done, err)
	}
	if err := m.markSynced(ctx, p, done, 2); err != nil {
		t.Fatalf("markSynced: %v", err)
	}
	p, err = set.Paranets.Get(dbctx.Context{Ctx: ctx}, paranetID, testChain)
	if err != nil || p == nil || p.KaCount != 4 {
		t.Fatalf("asset count changed on redelivery: %+v err=%v", p, err)
	}
}

func TestSyncParanetCuratedPolicy(t *testing.T) {
	chain := &fakeChain{policy: domainparanet.AccessCurated}
	store := newFakeStore()

	m, _ := newManager(t, chain, &fakeNetwork{}, store, Config{})
	_, err := m.SyncParanet(context.Background(), testParanetUAL)
	if !errors.Is(err, apperr.ErrPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if apperr.KindOf(err, "") != ErrKindCurated {
		t.Fatalf("kind=%s", apperr.KindOf(err, ""))
	}
	if len(store.repos) != 0 {
		t.Fatalf("repository provisioned for rejected paranet")
	}

	m, _ = newManager(t, chain, &fakeNetwork{}, newFakeStore(), Config{AllowCurated: true})
	if _, err := m.SyncParanet(context.Background(), testParanetUAL); err != nil {
		t.Fatalf("curated paranet with policy flag: %v", err)
	}
}

func TestProgressRejectsNonUAL(t *testing.T) {
	m, _ := newManager(t, &fakeChain{}, &fakeNetwork{}, newFakeStore(), Config{})
	if _, err := m.Progress(context.Background(), "not-a-ual"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
