package executor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	"github.com/BogBogdan/ot-node/internal/data/repos/testutil"
	types "github.com/BogBogdan/ot-node/internal/domain"
	domaincmd "github.com/BogBogdan/ot-node/internal/domain/commands"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/pointers"
	"github.com/BogBogdan/ot-node/internal/services"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type funcHandler struct {
	name   string
	policy runtime.Policy
	mu     sync.Mutex
	calls  int
	seen   []map[string]any
	fn     func(rc *runtime.Context) runtime.Outcome
}

func (h *funcHandler) Name() string            { return h.name }
func (h *funcHandler) Default() runtime.Policy { return h.policy }
func (h *funcHandler) Execute(rc *runtime.Context) runtime.Outcome {
	h.mu.Lock()
	h.calls++
	h.seen = append(h.seen, rc.Data())
	h.mu.Unlock()
	return h.fn(rc)
}

func (h *funcHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type harness struct {
	db    *gorm.DB
	exec  *Executor
	cmds  repos.CommandRepo
	ops   services.OperationIDService
	clock *testClock
	reg   *runtime.Registry
}

func newHarness(t *testing.T, handlers ...runtime.Handler) *harness {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	reg := runtime.NewRegistry()
	reg.MustRegister(handlers...)
	cache, err := services.NewOperationResultCache("", log)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ops := services.NewOperationIDService(db, log, repos.NewOperationRepo(db, log), cache, nil)
	cmds := repos.NewCommandRepo(db, log)
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	exec := New(db, log, cmds, ops, reg, Config{Concurrency: 2, BatchSize: 10, StaleAfter: time.Hour}, WithClock(clock.Now))
	return &harness{db: db, exec: exec, cmds: cmds, ops: ops, clock: clock, reg: reg}
}

func (h *harness) newOperation(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := h.ops.GenerateOperationID(dbctx.Context{Ctx: context.Background()}, opstatus.TypeGet, opstatus.GetStart, nil)
	if err != nil {
		t.Fatalf("GenerateOperationID: %v", err)
	}
	return id
}

func (h *harness) drain(t *testing.T) int {
	t.Helper()
	n, err := h.exec.ExecuteDue(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDue: %v", err)
	}
	return n
}

func (h *harness) operation(t *testing.T, id uuid.UUID) *types.Operation {
	t.Helper()
	op, err := h.ops.Get(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || op == nil {
		t.Fatalf("Get operation: op=%v err=%v", op, err)
	}
	return op
}

func TestTransientFailureAttemptsRetriesPlusOne(t *testing.T) {
	flaky := &funcHandler{
		name:   "networkGetCommand",
		policy: runtime.Policy{Delay: time.Second, Backoff: runtime.Backoff{Kind: runtime.BackoffFixed}},
		fn:     func(*runtime.Context) runtime.Outcome { return runtime.Retry(errors.New("connection reset")) },
	}
	h := newHarness(t, flaky)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	cmd, err := h.exec.Schedule(ctx, Spec{Name: flaky.name, OperationID: &opID, Retries: pointers.Int(3)})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	for i := 0; i < 10; i++ {
		h.drain(t)
		h.clock.Advance(2 * time.Second)
	}
	if got := flaky.Calls(); got != 4 {
		t.Fatalf("attempts: want=4 got=%d", got)
	}
	op := h.operation(t, opID)
	if op.Status != opstatus.StatusFailed || op.ErrorType != opstatus.ErrRetriesExhausted {
		t.Fatalf("operation should fail after retries: %+v", op)
	}
	stored, _ := h.cmds.GetByID(ctx, cmd.ID)
	if stored == nil || stored.Status != string(domaincmd.StatusFailed) || stored.Attempts != 4 {
		t.Fatalf("command record: %+v", stored)
	}
}

func TestRetryReArmsFromNow(t *testing.T) {
	flaky := &funcHandler{
		name:   "queryCommand",
		policy: runtime.Policy{Retries: 1, Backoff: runtime.Backoff{Kind: runtime.BackoffFixed, Min: time.Minute}},
		fn:     func(*runtime.Context) runtime.Outcome { return runtime.Retry(errors.New("timeout")) },
	}
	h := newHarness(t, flaky)
	ctx := dbctx.Context{Ctx: context.Background()}
	cmd, err := h.exec.Schedule(ctx, Spec{Name: flaky.name})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	h.drain(t)
	stored, _ := h.cmds.GetByID(ctx, cmd.ID)
	want := h.clock.Now().Add(time.Minute)
	if !stored.ReadyAt.Equal(want) || stored.Retries != 0 {
		t.Fatalf("retry should be due at %s with 0 retries, got %s / %d", want, stored.ReadyAt, stored.Retries)
	}
	if n := h.drain(t); n != 0 {
		t.Fatalf("retry ran before its delay")
	}
}

func TestAdvanceCarriesDataAndStripsBookkeeping(t *testing.T) {
	local := &funcHandler{
		name: "localGetCommand",
		fn:   func(*runtime.Context) runtime.Outcome { return runtime.Advance(nil) },
	}
	network := &funcHandler{
		name: "networkGetCommand",
		fn:   func(*runtime.Context) runtime.Outcome { return runtime.Continue() },
	}
	h := newHarness(t, local, network)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	_, err := h.exec.Schedule(ctx, Spec{
		Name:        local.name,
		Sequence:    []string{network.name},
		OperationID: &opID,
		Data:        map[string]any{"ual": "did:dkg:hardhat1:0xabc/7/3", "retry": 2, "period": 5000},
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	h.drain(t)

	if network.Calls() != 1 {
		t.Fatalf("networkGetCommand calls: want=1 got=%d", network.Calls())
	}
	data := network.seen[0]
	if data["ual"] != "did:dkg:hardhat1:0xabc/7/3" {
		t.Fatalf("ual not preserved: %v", data)
	}
	if _, ok := data["retry"]; ok {
		t.Fatalf("retry should be stripped: %v", data)
	}
	if _, ok := data["period"]; ok {
		t.Fatalf("period should be stripped: %v", data)
	}
	if op := h.operation(t, opID); op.Status != opstatus.StatusCompleted {
		t.Fatalf("operation should complete at the end of the sequence: %s", op.Status)
	}
	left, _ := h.cmds.ListByOperation(ctx, opID)
	if len(left) != 0 {
		t.Fatalf("no command should remain, got %d", len(left))
	}
}

func TestFailStopsSequence(t *testing.T) {
	validate := &funcHandler{
		name: "getValidateAssetCommand",
		fn: func(*runtime.Context) runtime.Outcome {
			return runtime.Fail(opstatus.ErrGetValidateAsset, "paranet is curated")
		},
	}
	local := &funcHandler{name: "localGetCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, validate, local)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	if _, err := h.exec.Schedule(ctx, Spec{Name: validate.name, Sequence: []string{local.name}, OperationID: &opID}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	h.drain(t)
	if local.Calls() != 0 {
		t.Fatalf("sequence continued after failure")
	}
	op := h.operation(t, opID)
	if op.Status != opstatus.StatusFailed || op.ErrorType != opstatus.ErrGetValidateAsset || op.ErrorMessage != "paranet is curated" {
		t.Fatalf("failed operation: %+v", op)
	}
}

func TestScheduleRejectsUnknownNames(t *testing.T) {
	known := &funcHandler{name: "queryCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, known)
	ctx := dbctx.Context{Ctx: context.Background()}
	if _, err := h.exec.Schedule(ctx, Spec{Name: "nope"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if _, err := h.exec.Schedule(ctx, Spec{Name: known.name, Sequence: []string{"nope"}}); err == nil {
		t.Fatalf("expected error for unknown command in sequence")
	}
}

func TestScheduleRejectsUnencodableData(t *testing.T) {
	local := &funcHandler{name: "localGetCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, local)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	_, err := h.exec.Schedule(ctx, Spec{
		Name:        local.name,
		OperationID: &opID,
		Data:        map[string]any{"ual": "did:dkg:hardhat1:0xabc/7/3", "score": math.NaN()},
	})
	if err == nil {
		t.Fatalf("expected error for data that cannot be encoded")
	}
	if apperr.KindOf(err, "") != opstatus.ErrInvalidCommandData {
		t.Fatalf("error kind: got %q err=%v", apperr.KindOf(err, ""), err)
	}
	left, _ := h.cmds.ListByOperation(ctx, opID)
	if len(left) != 0 {
		t.Fatalf("nothing should be stored, got %d commands", len(left))
	}
}

func TestAdvanceWithUnencodableDataFailsOperation(t *testing.T) {
	local := &funcHandler{
		name: "localGetCommand",
		fn: func(*runtime.Context) runtime.Outcome {
			return runtime.Advance(map[string]any{"score": math.Inf(1)})
		},
	}
	network := &funcHandler{name: "networkGetCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, local, network)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	if _, err := h.exec.Schedule(ctx, Spec{Name: local.name, Sequence: []string{network.name}, OperationID: &opID}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	h.drain(t)
	if network.Calls() != 0 {
		t.Fatalf("successor ran without its data")
	}
	if op := h.operation(t, opID); op.Status != opstatus.StatusFailed || op.ErrorType != opstatus.ErrInvalidCommandData {
		t.Fatalf("operation: %+v", op)
	}
}

func TestTerminalOperationSkipsCommand(t *testing.T) {
	network := &funcHandler{name: "networkGetCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, network)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	cmd, err := h.exec.Schedule(ctx, Spec{Name: network.name, OperationID: &opID})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := h.ops.MarkOperationAsFailed(ctx, opID, "", "cancelled", opstatus.ErrGet); err != nil {
		t.Fatalf("MarkOperationAsFailed: %v", err)
	}
	h.drain(t)
	if network.Calls() != 0 {
		t.Fatalf("handler ran for a terminal operation")
	}
	if stored, _ := h.cmds.GetByID(ctx, cmd.ID); stored != nil {
		t.Fatalf("skipped command should be removed")
	}
}

func TestPanicIsRetried(t *testing.T) {
	var once sync.Once
	h0 := &funcHandler{
		name:   "storeAssertionCommand",
		policy: runtime.Policy{Retries: 1},
		fn: func(*runtime.Context) runtime.Outcome {
			var out runtime.Outcome
			once.Do(func() { panic("boom") })
			return out
		},
	}
	h := newHarness(t, h0)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	if _, err := h.exec.Schedule(ctx, Spec{Name: h0.name, OperationID: &opID}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	if op := h.operation(t, opID); op.Terminal {
		t.Fatalf("panic should not be terminal: %+v", op)
	}
	h.clock.Advance(time.Minute)
	h.drain(t)
	if h0.Calls() != 2 {
		t.Fatalf("calls: want=2 got=%d", h0.Calls())
	}
	if op := h.operation(t, opID); op.Status != opstatus.StatusCompleted {
		t.Fatalf("second attempt should complete: %s", op.Status)
	}
}

func TestTransactionalRollsBackOnRetry(t *testing.T) {
	var fail = true
	var paranets repos.ParanetRepo
	writer := &funcHandler{
		name:   "paranetRecordCommand",
		policy: runtime.Policy{Retries: 2, Transactional: true},
		fn: func(rc *runtime.Context) runtime.Outcome {
			if err := paranets.Create(rc.DB, &types.Paranet{ParanetID: "0x01", BlockchainID: "hardhat1:31337", UAL: "did:dkg:hardhat1:31337/0xabc/1"}); err != nil {
				return runtime.Retry(err)
			}
			if fail {
				fail = false
				return runtime.Retry(errors.New("rpc timeout"))
			}
			return runtime.Continue()
		},
	}
	h := newHarness(t, writer)
	paranets = repos.NewParanetRepo(h.db, testutil.Logger(t))
	ctx := dbctx.Context{Ctx: context.Background()}
	if _, err := h.exec.Schedule(ctx, Spec{Name: writer.name}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	exists, err := paranets.Exists(ctx, "0x01", "hardhat1:31337")
	if err != nil || exists {
		t.Fatalf("retried step must not leave writes: exists=%v err=%v", exists, err)
	}
	h.clock.Advance(time.Minute)
	h.drain(t)
	exists, err = paranets.Exists(ctx, "0x01", "hardhat1:31337")
	if err != nil || !exists {
		t.Fatalf("successful step must commit: exists=%v err=%v", exists, err)
	}
}

func TestPeriodicCommandRepeats(t *testing.T) {
	tick := &funcHandler{
		name:   "paranetSyncCommand",
		policy: runtime.Policy{Period: time.Minute},
		fn:     func(*runtime.Context) runtime.Outcome { return runtime.Fail("SYNC_ERROR", "store down") },
	}
	h := newHarness(t, tick)
	ctx := dbctx.Context{Ctx: context.Background()}
	cmd, err := h.exec.Schedule(ctx, Spec{Name: tick.name})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.drain(t)
	stored, _ := h.cmds.GetByID(ctx, cmd.ID)
	if stored == nil || stored.Status != string(domaincmd.StatusRepeating) {
		t.Fatalf("periodic command should be repeating: %+v", stored)
	}
	if n := h.drain(t); n != 0 {
		t.Fatalf("ran before the period elapsed")
	}
	h.clock.Advance(time.Minute)
	h.drain(t)
	if tick.Calls() != 2 {
		t.Fatalf("calls: want=2 got=%d", tick.Calls())
	}
}

func TestExpiredCommandFailsOperation(t *testing.T) {
	slow := &funcHandler{name: "askFindShardCommand", fn: func(*runtime.Context) runtime.Outcome { return runtime.Continue() }}
	h := newHarness(t, slow)
	opID := h.newOperation(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	deadline := h.clock.Now().Add(time.Second)
	if _, err := h.exec.Schedule(ctx, Spec{Name: slow.name, OperationID: &opID, Deadline: &deadline}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.clock.Advance(time.Minute)
	h.drain(t)
	if slow.Calls() != 0 {
		t.Fatalf("expired command ran")
	}
	if op := h.operation(t, opID); op.ErrorType != opstatus.ErrCommandExpired {
		t.Fatalf("operation error type: %+v", op)
	}
}
