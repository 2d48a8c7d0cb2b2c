package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/llehouerou/notifyd/internal/hints"
	"github.com/llehouerou/notifyd/internal/imaging"
	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/ratelimit"
	"github.com/llehouerou/notifyd/internal/store"
)

// Verify Engine implements Service at compile time.
var _ Service = (*Engine)(nil)

// pending tracks a request whose enrichment has not committed yet.
type pending struct {
	gen    uint64
	cancel context.CancelFunc
}

type expiry struct {
	timer *time.Timer
	seq   uint64
}

// Engine is the Service implementation.
type Engine struct {
	log       zerolog.Logger
	extractor *hints.Extractor

	cmds    chan func()
	done    chan struct{}
	stopped chan struct{}
	closing sync.Once

	// ctx is the parent of every enrichment context.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the loop goroutine.
	settings Settings
	store    *store.Store
	limiter  *ratelimit.Limiter
	sem      *semaphore.Weighted
	pending  map[uint32]*pending
	timers   map[uint32]expiry
	gen      uint64
	timerSeq uint64

	subs   []*Subscription
	subsMu sync.RWMutex
}

// New creates an Engine and starts its loop. Close stops it.
func New(s Settings, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		log:       log,
		extractor: hints.NewExtractor(imaging.NewCache(imageCacheEntries), log),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		settings:  s,
		store:     store.New(s.Policy),
		limiter:   ratelimit.New(s.RateLimit),
		sem:       semaphore.NewWeighted(s.workers()),
		pending:   make(map[uint32]*pending),
		timers:    make(map[uint32]expiry),
	}
	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.stopped)
	prune := time.NewTicker(e.pruneInterval())
	defer prune.Stop()
	for {
		select {
		case fn := <-e.cmds:
			e.exec(fn)
		case now := <-prune.C:
			if n := e.limiter.Prune(now); n > 0 {
				e.log.Debug().Int("senders", n).Msg("pruned idle rate limit windows")
			}
		case <-e.done:
			e.shutdown()
			return
		}
	}
}

func (e *Engine) pruneInterval() time.Duration {
	if w := e.settings.RateLimit.Window; w > 0 {
		return w
	}
	return ratelimit.DefaultWindow
}

// exec runs one command, keeping the loop alive if it panics.
func (e *Engine) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("command panicked")
		}
	}()
	fn()
}

func (e *Engine) shutdown() {
	for id, p := range e.pending {
		p.cancel()
		delete(e.pending, id)
	}
	for id, t := range e.timers {
		t.timer.Stop()
		delete(e.timers, id)
	}
}

// post queues fn on the loop. It returns ErrStopped once the loop has exited.
func (e *Engine) post(fn func()) error {
	select {
	case e.cmds <- fn:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

// call runs fn on the loop and waits for its result.
func call[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	err := e.post(func() {
		r := result{err: errInternal}
		defer func() { ch <- r }()
		r.v, r.err = fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	// The command has been received, so it runs to completion.
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (e *Engine) now() time.Time {
	return time.Now()
}

// Notify validates and admits a request. The id is returned as soon as it
// is reserved; the notification becomes live when enrichment commits.
func (e *Engine) Notify(ctx context.Context, req Request) (uint32, error) {
	if req.ExpireTimeout < -1 {
		return 0, fmt.Errorf("%w: expire_timeout %d", ErrInvalidArgument, req.ExpireTimeout)
	}
	return call(ctx, e, func() (uint32, error) {
		return e.admit(req)
	})
}

func (e *Engine) admit(req Request) (uint32, error) {
	replacing := req.ReplacesID != 0 && e.store.IsReserved(req.ReplacesID)
	if !replacing && !e.limiter.AdmitAt(req.RateKey(), e.now()) {
		e.log.Debug().Str("app", req.AppName).Str("sender", req.Sender).Msg("request rate limited")
		return 0, fmt.Errorf("%w: %s", ErrRateLimited, req.RateKey())
	}

	id, replacing := e.store.Reserve(req.ReplacesID)
	if p, ok := e.pending[id]; ok {
		p.cancel()
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithTimeout(e.ctx, e.settings.enrichTimeout())
	e.pending[id] = &pending{gen: gen, cancel: cancel}

	e.log.Debug().
		Uint32("id", id).
		Bool("replacing", replacing).
		Str("app", req.AppName).
		Msg("request admitted")

	e.wg.Add(1)
	go e.enrich(ctx, cancel, e.sem, id, gen, req, e.settings.Content)
	return id, nil
}

// enrich runs outside the loop. Its result is committed only if the
// request is still the current one for id.
func (e *Engine) enrich(
	ctx context.Context,
	cancel context.CancelFunc,
	sem *semaphore.Weighted,
	id uint32,
	gen uint64,
	req Request,
	opts hints.Options,
) {
	defer e.wg.Done()
	defer cancel()

	in := hints.Input{
		Summary: req.Summary,
		Body:    req.Body,
		Actions: req.Actions,
		Table:   req.Hints,
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Timed out while queued: text content only.
		opts.ShowImages = false
	} else {
		defer sem.Release(1)
	}
	res := e.extractor.Extract(ctx, in, opts)
	if len(res.Degraded) > 0 {
		e.log.Debug().Uint32("id", id).Strs("degraded", res.Degraded).Msg("notification degraded")
	}

	n := notify.Notification{
		ID:               id,
		Sender:           req.Sender,
		AppName:          req.AppName,
		AppIcon:          req.AppIcon,
		Summary:          res.Summary,
		Body:             res.Body,
		Actions:          res.Actions,
		Hints:            res.Hints,
		Links:            res.Links,
		RequestedTimeout: req.ExpireTimeout,
	}
	_ = e.post(func() { e.commit(gen, n) })
}

func (e *Engine) commit(gen uint64, n notify.Notification) {
	p, ok := e.pending[n.ID]
	if !ok || p.gen != gen {
		e.log.Debug().Uint32("id", n.ID).Msg("discarded superseded enrichment")
		return
	}
	delete(e.pending, n.ID)

	out := e.store.Commit(n, e.now())
	for _, ev := range out.Evicted {
		e.dropPending(ev.ID)
		e.stopTimer(ev.ID)
		e.log.Debug().Uint32("id", ev.ID).Str("app", ev.AppName).Msg("evicted by ceiling")
		e.emitClosed(ev.ID, notify.CloseUndelivered)
	}
	if out.Muted {
		e.stopTimer(n.ID)
		e.log.Debug().Uint32("id", n.ID).Str("app", n.AppName).Msg("muted by app rule")
		e.emitClosed(n.ID, notify.CloseUndelivered)
		return
	}
	e.schedule(out.Notification)
	e.emit(Posted{Notification: out.Notification, Replaced: out.Replaced})
}

// schedule (re)starts the expiry timer of n.
func (e *Engine) schedule(n notify.Notification) {
	e.stopTimer(n.ID)
	if n.Timeout <= 0 {
		return
	}
	e.timerSeq++
	seq, id := e.timerSeq, n.ID
	t := time.AfterFunc(n.Timeout, func() {
		_ = e.post(func() { e.expire(id, seq) })
	})
	e.timers[id] = expiry{timer: t, seq: seq}
}

func (e *Engine) stopTimer(id uint32) {
	if t, ok := e.timers[id]; ok {
		t.timer.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) expire(id uint32, seq uint64) {
	t, ok := e.timers[id]
	if !ok || t.seq != seq {
		return
	}
	delete(e.timers, id)
	e.closeID(id, notify.CloseExpired)
}

// dropPending cancels the enrichment queued for id, if any, so it can no
// longer commit. It reports whether there was one.
func (e *Engine) dropPending(id uint32) bool {
	p, ok := e.pending[id]
	if !ok {
		return false
	}
	p.cancel()
	delete(e.pending, id)
	return true
}

// closeID closes a live or pending id. It reports false if id is neither.
func (e *Engine) closeID(id uint32, reason notify.CloseReason) bool {
	wasPending := e.dropPending(id)
	e.stopTimer(id)
	if _, ok := e.store.Close(id, reason); ok {
		e.emitClosed(id, reason)
		return true
	}
	if wasPending {
		e.store.Release(id)
		e.emitClosed(id, reason)
		return true
	}
	return false
}

// CloseNotification closes id on behalf of its caller. Unknown ids are
// ignored.
func (e *Engine) CloseNotification(ctx context.Context, id uint32) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		if !e.closeID(id, notify.CloseCallerClosed) {
			e.log.Debug().Uint32("id", id).Msg("close of unknown id ignored")
		}
		return struct{}{}, nil
	})
	return err
}

// Dismiss closes a live notification as dismissed by the user, or removes
// it from history.
func (e *Engine) Dismiss(ctx context.Context, id uint32) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		if e.closeID(id, notify.CloseDismissed) || e.store.RemoveHistory(id) {
			return struct{}{}, nil
		}
		return struct{}{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	})
	return err
}

// InvokeAction activates an action of a live notification. An unknown key
// falls back to the default action, then to the first one. A notification
// without actions is dismissed. Non-resident notifications close afterwards.
func (e *Engine) InvokeAction(ctx context.Context, id uint32, key, token string) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		n, ok := e.store.Get(id)
		if !ok {
			return struct{}{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		action, ok := n.ResolveAction(notify.ActionID(key))
		if !ok {
			e.closeID(id, notify.CloseDismissed)
			return struct{}{}, nil
		}
		if token != "" {
			e.emit(ActivationToken{ID: id, Token: token})
		}
		e.emit(ActionInvoked{ID: id, Action: action})
		if !n.Hints.Resident {
			e.closeID(id, notify.CloseDismissed)
		}
		return struct{}{}, nil
	})
	return err
}

// Get returns a live notification.
func (e *Engine) Get(ctx context.Context, id uint32) (notify.Notification, error) {
	return call(ctx, e, func() (notify.Notification, error) {
		n, ok := e.store.Get(id)
		if !ok {
			return n, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return n, nil
	})
}

// Live returns the live notifications, newest first.
func (e *Engine) Live(ctx context.Context) ([]notify.Notification, error) {
	return call(ctx, e, func() ([]notify.Notification, error) {
		return e.store.Live(), nil
	})
}

// Visible returns the live notifications in presentation order.
func (e *Engine) Visible(ctx context.Context) ([]notify.Notification, error) {
	return call(ctx, e, func() ([]notify.Notification, error) {
		return e.store.Visible(), nil
	})
}

// Groups returns the live notifications grouped by the configured mode.
func (e *Engine) Groups(ctx context.Context) ([]notify.Group, error) {
	return call(ctx, e, func() ([]notify.Group, error) {
		return e.store.Groups(e.settings.Grouping), nil
	})
}

// History returns the retained notifications, newest first.
func (e *Engine) History(ctx context.Context) ([]notify.Notification, error) {
	return call(ctx, e, func() ([]notify.Notification, error) {
		return e.store.History(), nil
	})
}

// ClearHistory empties the history and returns how many records it held.
func (e *Engine) ClearHistory(ctx context.Context) (int, error) {
	return call(ctx, e, func() (int, error) {
		return e.store.ClearHistory(), nil
	})
}

// Capabilities returns the protocol capability list.
func (e *Engine) Capabilities() []string {
	caps, err := call(context.Background(), e, func() ([]string, error) {
		return e.settings.Capabilities(), nil
	})
	if err != nil {
		s := DefaultSettings()
		return s.Capabilities()
	}
	return caps
}

// ServerInfo returns the GetServerInformation reply.
func (e *Engine) ServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "notifyd",
		Vendor:      "llehouerou",
		Version:     Version,
		SpecVersion: specVersion,
	}
}

// Reload applies new settings. Policy changes apply to the next commit,
// except retention limits which apply immediately. Rate limit counters are
// reset only when the rate limit options change.
func (e *Engine) Reload(ctx context.Context, s Settings) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		old := e.settings
		e.settings = s
		e.store.SetPolicy(s.Policy)
		if s.RateLimit != old.RateLimit {
			e.limiter = ratelimit.New(s.RateLimit)
		}
		if s.workers() != old.workers() {
			e.sem = semaphore.NewWeighted(s.workers())
		}
		e.log.Info().
			Bool("do_not_disturb", s.Policy.DoNotDisturb).
			Str("grouping", string(s.Grouping)).
			Int64("workers", s.workers()).
			Msg("settings reloaded")
		return struct{}{}, nil
	})
	return err
}

// Subscribe creates a new event subscription.
func (e *Engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	select {
	case <-e.done:
		sub.close()
	default:
		e.subs = append(e.subs, sub)
	}
	return sub
}

// emit is only called from the loop, so every subscriber sees events in
// the order they happened.
func (e *Engine) emit(ev Event) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		if !sub.send(ev) {
			e.log.Warn().Uint32("id", ev.NotificationID()).Msg("subscriber too slow, event dropped")
		}
	}
}

func (e *Engine) emitClosed(id uint32, reason notify.CloseReason) {
	e.log.Debug().Uint32("id", id).Stringer("reason", reason).Msg("notification closed")
	e.emit(Closed{ID: id, Reason: reason})
}

// Close stops the loop, cancels in-flight enrichment and ends every
// subscription.
func (e *Engine) Close() error {
	e.closing.Do(func() {
		e.subsMu.Lock()
		close(e.done)
		e.subsMu.Unlock()

		<-e.stopped
		e.cancel()
		e.wg.Wait()

		e.subsMu.Lock()
		for _, sub := range e.subs {
			sub.close()
		}
		e.subs = nil
		e.subsMu.Unlock()
	})
	return nil
}
