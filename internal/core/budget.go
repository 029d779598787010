package core

import (
	"context"
	"time"
)

// Budget bounds a batch operation by a wall-clock limit and by the
// caller's cancellation. Loops poll Expired between outer iterations.
type Budget struct {
	ctx    context.Context
	cancel context.CancelFunc
	stage  string
	limit  time.Duration
}

// NewBudget derives a budget from parent. A non-positive limit leaves only
// parent cancellation in effect.
func NewBudget(parent context.Context, stage string, limit time.Duration) *Budget {
	if parent == nil {
		parent = context.Background()
	}
	b := &Budget{stage: stage, limit: limit}
	if limit > 0 {
		b.ctx, b.cancel = context.WithTimeout(parent, limit)
	} else {
		b.ctx, b.cancel = context.WithCancel(parent)
	}
	return b
}

// Context returns the budget's context.
func (b *Budget) Context() context.Context { return b.ctx }

// Expired reports whether the deadline passed or the caller cancelled.
func (b *Budget) Expired() bool { return b.ctx.Err() != nil }

// Warning describes the expiry for inclusion in a partial result.
func (b *Budget) Warning(reached string) *BudgetExceededWarning {
	w := &BudgetExceededWarning{Stage: b.stage, Reached: reached}
	if b.limit > 0 && b.ctx.Err() == context.DeadlineExceeded {
		w.Budget = b.limit
	}
	return w
}

// Release frees the budget's timer.
func (b *Budget) Release() { b.cancel() }
