package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	appdb "github.com/BogBogdan/ot-node/internal/data/db"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	types "github.com/BogBogdan/ot-node/internal/domain"
	domaincmd "github.com/BogBogdan/ot-node/internal/domain/commands"
	opstatus "github.com/BogBogdan/ot-node/internal/domain/operations"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/pkg/dbctx"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// OperationTracker is the part of the operation service the executor drives.
type OperationTracker interface {
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Operation, error)
	MarkOperationAsCompleted(dbc dbctx.Context, id uuid.UUID, blockchain string, result any, statusSequence []string) (bool, error)
	MarkOperationAsFailed(dbc dbctx.Context, id uuid.UUID, blockchain, message, errorKind string) (bool, error)
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	StaleAfter   time.Duration
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = c.Concurrency * 4
	}
	return c
}

// Spec is a scheduling request. Nil fields take the handler's default policy.
type Spec struct {
	Name          string
	Sequence      []string
	Data          map[string]any
	OperationID   *uuid.UUID
	Delay         *time.Duration
	Retries       *int
	Transactional *bool
	Period        *time.Duration
	Deadline      *time.Time
}

type Option func(*Executor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor persists commands and runs the due ones through their handlers.
type Executor struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.CommandRepo
	ops      OperationTracker
	registry *runtime.Registry
	cfg      Config
	now      func() time.Time
	wake     chan struct{}
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.CommandRepo, ops OperationTracker, registry *runtime.Registry, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		db:       db,
		log:      baseLog.With("component", "CommandExecutor"),
		repo:     repo,
		ops:      ops,
		registry: registry,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule persists a command. Unknown names, in the command or its sequence, are
// rejected here rather than at execution.
func (e *Executor) Schedule(dbc dbctx.Context, spec Spec) (*types.Command, error) {
	h, ok := e.registry.Get(spec.Name)
	if !ok {
		return nil, apperr.Validation(opstatus.ErrUnknownCommand, "command %q is not registered", spec.Name)
	}
	for _, name := range spec.Sequence {
		if _, ok := e.registry.Get(name); !ok {
			return nil, apperr.Validation(opstatus.ErrUnknownCommand, "command %q in sequence of %s is not registered", name, spec.Name)
		}
	}
	p := h.Default()
	if spec.Delay != nil {
		p.Delay = *spec.Delay
	}
	if spec.Retries != nil {
		p.Retries = *spec.Retries
	}
	if spec.Transactional != nil {
		p.Transactional = *spec.Transactional
	}
	if spec.Period != nil {
		p.Period = *spec.Period
	}
	data := spec.Data
	if data == nil {
		data = map[string]any{}
	}
	opID := spec.OperationID
	if opID == nil {
		if raw, ok := data[runtime.KeyOperationID].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				opID = &id
			}
		}
	}
	if opID != nil {
		data[runtime.KeyOperationID] = opID.String()
	}
	cmd, err := e.build(spec.Name, p, data, spec.Sequence, opID)
	if err != nil {
		return nil, apperr.Validation(opstatus.ErrInvalidCommandData, "command %s data: %v", spec.Name, err)
	}
	cmd.Deadline = spec.Deadline
	if _, err := e.repo.Create(dbc, []*types.Command{cmd}); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", spec.Name, err)
	}
	e.log.Debug("command scheduled", "command_id", cmd.ID, "command_name", cmd.Name, "ready_at", cmd.ReadyAt)
	e.Wake()
	return cmd, nil
}

func (e *Executor) build(name string, p runtime.Policy, data map[string]any, sequence []string, opID *uuid.UUID) (*types.Command, error) {
	cmd := &types.Command{
		ID:            uuid.New(),
		Name:          name,
		OperationID:   opID,
		Delay:         p.Delay.Milliseconds(),
		Retries:       p.Retries,
		Transactional: p.Transactional,
		Status:        string(domaincmd.StatusPending),
		ReadyAt:       e.now().Add(p.Delay),
	}
	if p.Period > 0 {
		period := p.Period.Milliseconds()
		cmd.Period = &period
	}
	if err := cmd.SetData(data); err != nil {
		return nil, err
	}
	cmd.SetSequence(sequence)
	return cmd, nil
}

// Wake asks the loop to poll now instead of waiting for the next tick.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start polls until ctx is done.
func (e *Executor) Start(ctx context.Context) {
	e.log.Info("Starting command executor", "concurrency", e.cfg.Concurrency, "poll_interval", e.cfg.PollInterval)
	go func() {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.log.Info("Command executor stopped")
				return
			case <-ticker.C:
			case <-e.wake:
			}
			for {
				n, err := e.ExecuteDue(ctx)
				if err != nil {
					if appdb.IsTransient(err) {
						e.log.Debug("Command claim contended, retrying on next tick", "error", err)
					} else {
						e.log.Warn("ExecuteDue failed", "error", err)
					}
					break
				}
				if n < e.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}()
}

// ExecuteDue claims one batch of due commands and runs them in parallel. It returns how
// many were claimed.
func (e *Executor) ExecuteDue(ctx context.Context) (int, error) {
	claimed, err := e.repo.ClaimDue(dbctx.Context{Ctx: ctx}, e.now(), e.cfg.StaleAfter, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.CommandsClaimed(len(claimed))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, cmd := range claimed {
		cmd := cmd
		g.Go(func() error {
			e.execute(gctx, cmd)
			return nil
		})
	}
	_ = g.Wait()
	return len(claimed), nil
}

var errRollback = errors.New("rollback step")

func (e *Executor) execute(ctx context.Context, cmd *types.Command) {
	start := time.Now()
	rc := runtime.NewContext(ctx, dbctx.Context{Ctx: ctx}, cmd, e.log)
	log := rc.Log

	h, ok := e.registry.Get(cmd.Name)
	if !ok {
		log.Warn("No handler registered for command")
		e.finalize(rc, domaincmd.StatusFailed, runtime.Fail(opstatus.ErrUnknownCommand, fmt.Sprintf("no handler registered for command=%s", cmd.Name)))
		return
	}
	policy := h.Default()

	if cmd.Deadline != nil && e.now().After(*cmd.Deadline) {
		log.Warn("Command deadline passed", "deadline", cmd.Deadline)
		e.finalize(rc, domaincmd.StatusExpired, runtime.Fail(opstatus.ErrCommandExpired, fmt.Sprintf("command %s expired at %s", cmd.Name, cmd.Deadline.Format(time.RFC3339))))
		return
	}

	if rc.OperationID != uuid.Nil {
		op, err := e.ops.Get(dbctx.Context{Ctx: ctx}, rc.OperationID)
		if err != nil {
			if aerr := e.apply(rc, policy, runtime.Retry(err)); aerr != nil {
				log.Error("Failed to record command outcome", "outcome", runtime.OutcomeRetry.String(), "error", aerr)
			}
			return
		}
		if op != nil && op.Terminal {
			log.Debug("Operation already terminal, skipping command", "status", op.Status)
			if err := e.repo.Delete(dbctx.Context{Ctx: ctx}, cmd.ID); err != nil {
				log.Warn("Failed to remove skipped command", "error", err)
			}
			e.observe(cmd.Name, "skipped", start)
			return
		}
	}

	spanCtx, span := observability.StartSpan(ctx, "command."+cmd.Name,
		attribute.String("command.id", cmd.ID.String()),
		attribute.String("operation.id", rc.OperationID.String()),
		attribute.Int("command.attempt", cmd.Attempts),
	)
	rc.Ctx = spanCtx

	var outcome runtime.Outcome
	if cmd.Transactional {
		outer := dbctx.Context{Ctx: spanCtx}.WithCommitHooks()
		err := e.db.WithContext(spanCtx).Transaction(func(txx *gorm.DB) error {
			rc.DB = outer.WithTx(txx)
			outcome = e.run(h, rc)
			if outcome.Kind == runtime.OutcomeRetry || outcome.Kind == runtime.OutcomeFail {
				return errRollback
			}
			return e.apply(rc, policy, outcome)
		})
		rc.DB = dbctx.Context{Ctx: spanCtx}
		if err == nil {
			outer.RunCommitHooks()
		}
		switch {
		case errors.Is(err, errRollback):
			err = e.apply(rc, policy, outcome)
		case err != nil:
			outcome = runtime.Retry(err)
			err = e.apply(rc, policy, outcome)
		}
		if err != nil {
			log.Error("Failed to record command outcome", "outcome", outcome.Kind.String(), "error", err)
		}
	} else {
		outcome = e.run(h, rc)
		if err := e.apply(rc, policy, outcome); err != nil {
			log.Error("Failed to record command outcome", "outcome", outcome.Kind.String(), "error", err)
		}
	}
	observability.EndSpan(span, outcome.Err)
	e.observe(cmd.Name, outcome.Kind.String(), start)
}

// run invokes the handler. A panic counts as a transient failure.
func (e *Executor) run(h runtime.Handler, rc *runtime.Context) (out runtime.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			rc.Log.Error("Command handler panic", "panic", r)
			out = runtime.Retry(&panicError{Val: r})
			out.ErrorKind = opstatus.ErrCommandPanic
		}
	}()
	return h.Execute(rc)
}

// apply durably records the outcome. Within one operation the next command only exists
// once this returns.
func (e *Executor) apply(rc *runtime.Context, policy runtime.Policy, out runtime.Outcome) error {
	cmd := rc.Command
	switch out.Kind {
	case runtime.OutcomeAdvance:
		sequence := cmd.SequenceNames()
		if len(sequence) == 0 {
			return e.complete(rc)
		}
		nextName := sequence[0]
		next, ok := e.registry.Get(nextName)
		if !ok {
			return e.finalize(rc, domaincmd.StatusFailed, runtime.Fail(opstatus.ErrUnknownCommand, fmt.Sprintf("no handler registered for command=%s", nextName)))
		}
		successor, err := e.build(nextName, next.Default(), runtime.MergeData(rc.Data(), out.Data), sequence[1:], cmd.OperationID)
		if err != nil {
			return e.finalize(rc, domaincmd.StatusFailed, runtime.Fail(opstatus.ErrInvalidCommandData, fmt.Sprintf("data for %s: %v", nextName, err)))
		}
		if err := e.repo.Replace(rc.DB, cmd.ID, successor); err != nil {
			return err
		}
		rc.Log.Debug("Command advanced", "next", nextName)
		e.Wake()
		return nil

	case runtime.OutcomeRetry:
		if cmd.Retries <= 0 {
			kind := out.ErrorKind
			if kind == "" {
				kind = opstatus.ErrRetriesExhausted
			}
			rc.Log.Warn("Command retries exhausted", "error", out.Message)
			return e.finalize(rc, domaincmd.StatusFailed, runtime.Fail(kind, out.Message))
		}
		delay := policy.RetryDelay(cmd.DelayDuration(), cmd.Attempts)
		var data datatypes.JSON
		if out.Data != nil {
			raw, err := json.Marshal(runtime.MergeData(rc.Data(), out.Data))
			if err != nil {
				return err
			}
			data = datatypes.JSON(raw)
		}
		rc.Log.Info("Command retry scheduled", "retries_left", cmd.Retries-1, "delay", delay, "error", out.Message)
		return e.repo.Reschedule(rc.DB, cmd.ID, domaincmd.StatusPending, cmd.Retries-1, e.now().Add(delay), data, out.Message)

	case runtime.OutcomeFail:
		return e.finalize(rc, domaincmd.StatusFailed, out)

	default:
		return e.complete(rc)
	}
}

// complete ends the chain: periodic commands are re-armed, everything else is removed and
// a still-open operation is completed.
func (e *Executor) complete(rc *runtime.Context) error {
	cmd := rc.Command
	if period := cmd.PeriodDuration(); period > 0 {
		return e.repo.Reschedule(rc.DB, cmd.ID, domaincmd.StatusRepeating, cmd.Retries, e.now().Add(period), nil, "")
	}
	if err := e.repo.Delete(rc.DB, cmd.ID); err != nil {
		return err
	}
	if rc.OperationID == uuid.Nil {
		return nil
	}
	_, err := e.ops.MarkOperationAsCompleted(rc.DB, rc.OperationID, rc.Blockchain(), nil, nil)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// finalize stops the chain with a failure. Periodic commands wait for their next period
// with a fresh retry budget instead.
func (e *Executor) finalize(rc *runtime.Context, status domaincmd.Status, out runtime.Outcome) error {
	cmd := rc.Command
	if period := cmd.PeriodDuration(); period > 0 && status == domaincmd.StatusFailed {
		retries := cmd.Retries
		if h, ok := e.registry.Get(cmd.Name); ok {
			retries = h.Default().Retries
		}
		rc.Log.Warn("Periodic command failed, waiting for next period", "error_type", out.ErrorKind, "error", out.Message)
		return e.repo.Reschedule(rc.DB, cmd.ID, domaincmd.StatusRepeating, retries, e.now().Add(period), nil, out.Message)
	}
	if err := e.repo.Finalize(rc.DB, cmd.ID, status, out.Message); err != nil {
		return err
	}
	if rc.OperationID == uuid.Nil {
		return nil
	}
	_, err := e.ops.MarkOperationAsFailed(rc.DB, rc.OperationID, rc.Blockchain(), out.Message, out.ErrorKind)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Executor) observe(name, outcome string, start time.Time) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveCommand(name, outcome, time.Since(start))
	}
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
