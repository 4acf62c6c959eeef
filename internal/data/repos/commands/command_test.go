package commands

import (
	"context"
	"testing"
	"time"

	"github.com/BogBogdan/ot-node/internal/data/repos/testutil"
	types "github.com/BogBogdan/ot-node/internal/domain"
	domaincmd "github.com/BogBogdan/ot-node/internal/domain/commands"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
)

func TestCommandRepo_ClaimDueRespectsReadyAt(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCommandRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	now := time.Now().UTC()
	due := &types.Command{Name: "localGetCommand", ReadyAt: now.Add(-time.Second)}
	later := &types.Command{Name: "networkGetCommand", ReadyAt: now.Add(time.Hour)}
	if _, err := repo.Create(dbc, []*types.Command{due, later}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := repo.ClaimDue(dbc, now, time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due command, got %d", len(claimed))
	}
	if claimed[0].Status != string(domaincmd.StatusStarted) || claimed[0].Attempts != 1 {
		t.Fatalf("unexpected claim state: status=%s attempts=%d", claimed[0].Status, claimed[0].Attempts)
	}

	again, err := repo.ClaimDue(dbc, now, time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDue again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("started command was claimed twice")
	}

	// a worker that died long ago releases its claim
	stale, err := repo.ClaimDue(dbc, now.Add(2*time.Minute), time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDue stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != due.ID || stale[0].Attempts != 2 {
		t.Fatalf("expected stale command to be reclaimed, got %+v", stale)
	}
}

func TestCommandRepo_ReplaceIsAtomic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCommandRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	cur := &types.Command{Name: "localGetCommand"}
	cur.SetSequence([]string{"networkGetCommand"})
	if err := cur.SetData(map[string]any{"ual": "did:dkg:hardhat1:31337:0xabc/7/3"}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if _, err := repo.Create(dbc, []*types.Command{cur}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := &types.Command{Name: "networkGetCommand", Data: cur.Data}
	next.SetSequence(nil)
	if err := repo.Replace(dbc, cur.ID, next); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got, _ := repo.GetByID(dbc, cur.ID); got != nil {
		t.Fatalf("current command still present after Replace")
	}
	got, err := repo.GetByID(dbc, next.ID)
	if err != nil || got == nil {
		t.Fatalf("next command missing: %v", err)
	}
	if got.DataMap()["ual"] != "did:dkg:hardhat1:31337:0xabc/7/3" {
		t.Fatalf("data not carried: %v", got.DataMap())
	}
	if len(got.SequenceNames()) != 0 {
		t.Fatalf("expected empty sequence, got %v", got.SequenceNames())
	}
}

func TestCommandRepo_RemoveFinalized(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCommandRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	failed := &types.Command{Name: "storeAssertionCommand"}
	pending := &types.Command{Name: "storeAssertionCommand"}
	if _, err := repo.Create(dbc, []*types.Command{failed, pending}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Finalize(dbc, failed.ID, domaincmd.StatusFailed, "boom"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	n, err := repo.RemoveFinalized(dbc, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("RemoveFinalized: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if got, _ := repo.GetByID(dbc, pending.ID); got == nil {
		t.Fatalf("pending command was removed")
	}
}
