package graph

import (
	"strings"
	"testing"
)

func TestMerkleRootIgnoresOrderAndTerminator(t *testing.T) {
	a := []string{
		`<urn:a> <urn:p> "1" .`,
		`<urn:b> <urn:p> "2" .`,
		`<urn:c> <urn:p> "3" .`,
	}
	b := []string{
		`<urn:c> <urn:p> "3"`,
		`<urn:a> <urn:p> "1" .`,
		`  <urn:b> <urn:p> "2" . `,
	}
	ra, rb := MerkleRoot(a), MerkleRoot(b)
	if ra != rb {
		t.Fatalf("roots differ: %s vs %s", ra, rb)
	}
	if !strings.HasPrefix(ra, "0x") || len(ra) != 66 {
		t.Fatalf("unexpected root format %q", ra)
	}
}

func TestMerkleRootChangesWithContent(t *testing.T) {
	base := []string{`<urn:a> <urn:p> "1" .`, `<urn:b> <urn:p> "2" .`}
	changed := []string{`<urn:a> <urn:p> "1" .`, `<urn:b> <urn:p> "X" .`}
	if MerkleRoot(base) == MerkleRoot(changed) {
		t.Fatalf("expected different roots")
	}
	if MerkleRoot(base) == MerkleRoot(base[:1]) {
		t.Fatalf("expected dropping a statement to change the root")
	}
}

func TestMerkleRootEmpty(t *testing.T) {
	if got := MerkleRoot(nil); got != "0x"+strings.Repeat("0", 64) {
		t.Fatalf("empty root = %s", got)
	}
}
