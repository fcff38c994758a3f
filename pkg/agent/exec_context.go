package agent

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/lidco/lidco/pkg/tools"
)

const (
	ToolEventStart = "start"
	ToolEventEnd   = "end"
)

// ToolEvent is reported before and after every dispatch. Result is nil on
// the start phase.
type ToolEvent struct {
	Phase  string
	Tool   string
	Args   map[string]any
	Result *tools.ToolResult
}

// ContinueFunc is asked whether to keep going once the iteration cap is
// reached. It may block on the user.
type ContinueFunc func(ctx context.Context, iteration, limit int) bool

// CallbackPool runs blocking user-facing hooks on a bounded set of
// goroutines so the caller's goroutine is never the one parked on user
// input.
type CallbackPool struct {
	sem *semaphore.Weighted
}

func NewCallbackPool(workers int) *CallbackPool {
	if workers <= 0 {
		workers = max(2, runtime.NumCPU())
	}
	return &CallbackPool{sem: semaphore.NewWeighted(int64(workers))}
}

var defaultPool = NewCallbackPool(4)

// CallOnPool runs fn on the pool and waits for its result. It returns early
// only when ctx is done; fn then finishes in the background and its result
// is dropped.
func CallOnPool[T any](ctx context.Context, p *CallbackPool, fn func() T) (T, error) {
	var zero T
	if p == nil {
		p = defaultPool
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	done := make(chan T, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()
	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ExecContext carries the observers and hooks for one run. It is a value:
// the With methods return modified copies and never touch the receiver.
//
// Observers may be called from several goroutines at once while a batch of
// read-only tools runs, so they must be safe for concurrent use.
type ExecContext struct {
	onStatus    func(status string)
	onTokens    func(totalTokens int, costUSD float64)
	onStream    func(text string)
	onToolEvent func(ev ToolEvent)

	permission tools.PermissionFunc
	continueFn ContinueFunc
	clarify    tools.ClarifyFunc

	pool *CallbackPool
}

func (ec ExecContext) WithStatus(fn func(string)) ExecContext {
	ec.onStatus = fn
	return ec
}

func (ec ExecContext) WithTokens(fn func(int, float64)) ExecContext {
	ec.onTokens = fn
	return ec
}

// WithStream attaches a sink for streamed text. A non-nil sink switches
// model calls to streaming mode.
func (ec ExecContext) WithStream(fn func(string)) ExecContext {
	ec.onStream = fn
	return ec
}

func (ec ExecContext) WithToolEvents(fn func(ToolEvent)) ExecContext {
	ec.onToolEvent = fn
	return ec
}

func (ec ExecContext) WithPermission(fn tools.PermissionFunc) ExecContext {
	ec.permission = fn
	return ec
}

func (ec ExecContext) WithContinue(fn ContinueFunc) ExecContext {
	ec.continueFn = fn
	return ec
}

func (ec ExecContext) WithClarify(fn tools.ClarifyFunc) ExecContext {
	ec.clarify = fn
	return ec
}

func (ec ExecContext) WithPool(p *CallbackPool) ExecContext {
	ec.pool = p
	return ec
}

func (ec ExecContext) Streaming() bool     { return ec.onStream != nil }
func (ec ExecContext) CanClarify() bool    { return ec.clarify != nil }
func (ec ExecContext) Pool() *CallbackPool { return ec.pool }

func (ec ExecContext) Status(status string) {
	if ec.onStatus != nil {
		ec.onStatus(status)
	}
}

func (ec ExecContext) tokens(usage TokenUsage) {
	if ec.onTokens != nil {
		ec.onTokens(usage.TotalTokens, usage.TotalCostUSD)
	}
}

func (ec ExecContext) stream(text string) {
	if ec.onStream != nil && text != "" {
		ec.onStream(text)
	}
}

func (ec ExecContext) toolEvent(ev ToolEvent) {
	if ec.onToolEvent != nil {
		ec.onToolEvent(ev)
	}
}

// Continue asks the continue hook on the pool. No hook means stop.
func (ec ExecContext) Continue(ctx context.Context, iteration, limit int) bool {
	if ec.continueFn == nil {
		return false
	}
	ok, err := CallOnPool(ctx, ec.pool, func() bool { return ec.continueFn(ctx, iteration, limit) })
	return err == nil && ok
}

type clarifyAnswer struct {
	answer string
	err    error
}

// Clarify asks the clarification hook on the pool.
func (ec ExecContext) Clarify(ctx context.Context, question string, options []string, detail string) (string, error) {
	if ec.clarify == nil {
		return "", errNoClarifier
	}
	res, err := CallOnPool(ctx, ec.pool, func() clarifyAnswer {
		a, err := ec.clarify(ctx, question, options, detail)
		return clarifyAnswer{answer: a, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.answer, res.err
}

// hooks adapts the context for the dispatcher, routing both blocking hooks
// through the pool.
func (ec ExecContext) hooks() tools.Hooks {
	var h tools.Hooks
	if ec.permission != nil {
		h.Permission = func(ctx context.Context, tool string, args map[string]any) bool {
			ok, err := CallOnPool(ctx, ec.pool, func() bool { return ec.permission(ctx, tool, args) })
			return err == nil && ok
		}
	}
	if ec.clarify != nil {
		h.Clarify = ec.Clarify
	}
	return h
}
