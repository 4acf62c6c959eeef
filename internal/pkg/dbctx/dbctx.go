package dbctx

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own handle when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB

	hooks *commitHooks
}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// DB picks the transaction when present, otherwise the fallback handle, bound to Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx)
}

func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx, hooks: c.hooks}
}

// WithCommitHooks holds AfterCommit callbacks until RunCommitHooks. The owner of the
// outer transaction calls RunCommitHooks only when it committed.
func (c Context) WithCommitHooks() Context {
	c.hooks = &commitHooks{}
	return c
}

// AfterCommit defers fn until the enclosing transaction commits. Without one it runs now.
func (c Context) AfterCommit(fn func()) {
	if c.hooks == nil {
		fn()
		return
	}
	c.hooks.mu.Lock()
	c.hooks.fns = append(c.hooks.fns, fn)
	c.hooks.mu.Unlock()
}

// RunCommitHooks runs and clears the held callbacks in registration order.
func (c Context) RunCommitHooks() {
	if c.hooks == nil {
		return
	}
	c.hooks.mu.Lock()
	fns := c.hooks.fns
	c.hooks.fns = nil
	c.hooks.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
