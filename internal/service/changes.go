package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tribunal-ia/portal/internal/core"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const (
	defaultChangeWaitWindow = time.Minute
	defaultChangeBackoff    = 250 * time.Millisecond
	changeSubscriberBuffer  = 8
)

// ChangeNotifierOptions configure ChangeNotifier.
type ChangeNotifierOptions struct {
	Waiter     core.ChangeWaiter // required
	WaitWindow time.Duration
	Backoff    time.Duration
	Logger     *slog.Logger
}

type changeSub struct {
	ch     chan model.ChangeEvent
	filter model.ChangeFilter
}

// ChangeNotifier fans out row-change notifications to subscribers. One listener
// goroutine runs per table while that table has at least one subscriber.
type ChangeNotifier struct {
	waiter     core.ChangeWaiter
	waitWindow time.Duration
	backoff    time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	subs      map[string]map[*changeSub]struct{}
	listeners map[string]context.CancelFunc
}

// NewChangeNotifier constructs a ChangeNotifier. It panics when Waiter is nil.
func NewChangeNotifier(opts ChangeNotifierOptions) *ChangeNotifier {
	if opts.Waiter == nil {
		panic("ChangeWaiter is required")
	}
	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = defaultChangeWaitWindow
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultChangeBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		logger:     logger.With("component", "changes"),
		subs:       make(map[string]map[*changeSub]struct{}),
		listeners:  make(map[string]context.CancelFunc),
	}
}

// Subscribe registers for changes on table that pass filter. The returned channel is
// closed by the unsubscribe func or StopAll. Events are dropped for slow subscribers.
func (n *ChangeNotifier) Subscribe(table string, filter model.ChangeFilter) (func(), <-chan model.ChangeEvent, error) {
	if !slices.Contains(model.WatchedTables, table) {
		return nil, nil, apperrors.ValidationField("table", "table is not watched")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[table]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		n.listeners[table] = cancel
		go n.listenLoop(ctx, table)
	}

	sub := &changeSub{ch: make(chan model.ChangeEvent, changeSubscriberBuffer), filter: filter}
	if n.subs[table] == nil {
		n.subs[table] = make(map[*changeSub]struct{})
	}
	n.subs[table][sub] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[table]
		if _, ok := subscribers[sub]; !ok {
			return
		}
		delete(subscribers, sub)
		drainAndClose(sub.ch)
		if len(subscribers) == 0 {
			n.stopListener(table)
			delete(n.subs, table)
		}
	}
	return unsub, sub.ch, nil
}

// Wait blocks until the next matching change on table, the wait elapses, or ctx ends.
// It reports false when no change arrived.
func (n *ChangeNotifier) Wait(ctx context.Context, table string, filter model.ChangeFilter, wait time.Duration) (model.ChangeEvent, bool, error) {
	unsub, ch, err := n.Subscribe(table, filter)
	if err != nil {
		return model.ChangeEvent{}, false, err
	}
	defer unsub()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ev, ok := <-ch:
		return ev, ok, nil
	case <-timer.C:
		return model.ChangeEvent{}, false, nil
	case <-ctx.Done():
		return model.ChangeEvent{}, false, ctx.Err()
	}
}

// StopAll stops every listener and closes every subscriber channel.
func (n *ChangeNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for table, cancel := range n.listeners {
		cancel()
		delete(n.listeners, table)
	}
	for table, subscribers := range n.subs {
		for sub := range subscribers {
			drainAndClose(sub.ch)
		}
		delete(n.subs, table)
	}
}

func (n *ChangeNotifier) stopListener(table string) {
	cancel, ok := n.listeners[table]
	if !ok {
		return
	}
	cancel()
	delete(n.listeners, table)
}

func (n *ChangeNotifier) listenLoop(ctx context.Context, table string) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		ev, err := n.waiter.WaitForChange(waitCtx, table)
		cancel()

		if err == nil {
			n.broadcast(table, ev)
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			continue
		}

		n.logger.WarnContext(ctx, "change listener failed", "table", table, "error", err)
		timer := time.NewTimer(n.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (n *ChangeNotifier) broadcast(table string, ev model.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for sub := range n.subs[table] {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// drainAndClose removes any buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
