package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
)

func TestAssetMetadata(t *testing.T) {
	asset := "did:dkg:hardhat1:0xabc/7/1"
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := AssetMetadata(asset, []string{VisibilityGraph(asset, knowledge.VisibilityPublic)}, PublishMetadata{
		Publisher:   "peer-1",
		PublishedAt: at,
		MerkleRoot:  "0xroot",
	})
	if err != nil {
		t.Fatalf("AssetMetadata: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d statements: %v", len(got), got)
	}
	for _, s := range got {
		if !strings.HasPrefix(s, "<"+asset+"> ") || !strings.HasSuffix(s, " .") {
			t.Fatalf("malformed statement %q", s)
		}
	}
	if !strings.Contains(got[1], "2025-03-01T12:00:00Z") {
		t.Fatalf("publish time statement %q", got[1])
	}
	if !strings.Contains(got[3], "<"+asset+"/public>") {
		t.Fatalf("named graph statement %q", got[3])
	}
}

func TestAssetMetadataRejectsBadUAL(t *testing.T) {
	if _, err := AssetMetadata("bad ual", nil, PublishMetadata{}); err == nil {
		t.Fatalf("expected error for IRI with whitespace")
	}
}
