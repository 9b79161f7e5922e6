package sqlstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

type txContextKey struct{}

type commitHooksKey struct{}

// commitHooks collects callbacks that must only observe committed state.
type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

func withCommitHooks(ctx context.Context) (context.Context, *commitHooks) {
	hooks := &commitHooks{}
	return context.WithValue(ctx, commitHooksKey{}, hooks), hooks
}

func (h *commitHooks) add(fn func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// AfterCommit schedules fn to run once the TxRunner transaction bound to ctx
// commits. It reports false when ctx carries no such transaction; fn is then
// not scheduled. Rolled back transactions drop their callbacks.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) bool {
	if ctx == nil || fn == nil {
		return false
	}
	hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		return false
	}
	hooks.add(fn)
	return true
}

// WithTx binds tx to ctx. Store calls made with the returned context join
// the transaction, so delivery jobs enqueued by Trigger become visible only
// when the caller commits.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

func TxFromContext(ctx context.Context) (bun.Tx, bool) {
	if ctx == nil {
		return bun.Tx{}, false
	}
	tx, ok := ctx.Value(txContextKey{}).(bun.Tx)
	return tx, ok
}

// TxRunner runs fn in a database transaction, joining one already bound to
// ctx instead of nesting. Callbacks registered with AfterCommit run after the
// outermost transaction commits, with the caller's context.
type TxRunner struct {
	db *bun.DB
}

func NewTxRunner(db *bun.DB) (*TxRunner, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &TxRunner{db: db}, nil
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("sqlstore: tx runner is not configured")
	}
	if fn == nil {
		return nil
	}
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	hookCtx, hooks := withCommitHooks(ctx)
	err := r.db.RunInTx(hookCtx, nil, func(txCtx context.Context, tx bun.Tx) error {
		return fn(WithTx(txCtx, tx))
	})
	if err != nil {
		return err
	}
	hooks.run(ctx)
	return nil
}

func conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}
