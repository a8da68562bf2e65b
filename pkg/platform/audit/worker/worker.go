package worker

import (
	"context"
	"errors"
	"fmt"

	audit "custodywatch/pkg/platform/audit"
)

// ErrStopped is returned for appends submitted after the writer has stopped.
var ErrStopped = errors.New("audit writer stopped")

// Appender is the ledger surface the writer drives.
type Appender interface {
	Append(ctx context.Context, action audit.ActionType, payload any, actorID string) (audit.Entry, error)
}

// request is one append waiting for the writer goroutine.
type request struct {
	action  audit.ActionType
	payload any
	actorID string
	reply   chan result
}

type result struct {
	entry audit.Entry
	err   error
}

// Writer funnels appends from any number of producers through one goroutine,
// so the chain tail has exactly one owner.
type Writer struct {
	ledger Appender
	inbox  chan request
	done   chan struct{}
}

// NewWriter creates a writer with the given queue depth.
func NewWriter(ledger Appender, depth int) *Writer {
	return &Writer{
		ledger: ledger,
		inbox:  make(chan request, max(depth, 0)),
		done:   make(chan struct{}),
	}
}

// Run processes appends until ctx is cancelled. Requests still queued at
// that point fail with ErrStopped.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case req := <-w.inbox:
			entry, err := w.ledger.Append(ctx, req.action, req.payload, req.actorID)
			req.reply <- result{entry: entry, err: err}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case req := <-w.inbox:
			req.reply <- result{err: ErrStopped}
		default:
			return
		}
	}
}

// Append submits an append and waits for its result.
func (w *Writer) Append(ctx context.Context, action audit.ActionType, payload any, actorID string) (audit.Entry, error) {
	req := request{action: action, payload: payload, actorID: actorID, reply: make(chan result, 1)}
	select {
	case w.inbox <- req:
	case <-w.done:
		return audit.Entry{}, ErrStopped
	case <-ctx.Done():
		return audit.Entry{}, fmt.Errorf("submit audit append: %w", ctx.Err())
	}
	select {
	case res := <-req.reply:
		return res.entry, res.err
	case <-w.done:
		select {
		case res := <-req.reply:
			return res.entry, res.err
		default:
			return audit.Entry{}, ErrStopped
		}
	case <-ctx.Done():
		return audit.Entry{}, fmt.Errorf("await audit append: %w", ctx.Err())
	}
}
