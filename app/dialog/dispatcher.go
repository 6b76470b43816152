package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"

	"github.com/m3rciful/cardbot/app/errs"
	"github.com/m3rciful/cardbot/app/messages"
	"github.com/m3rciful/cardbot/app/model"
	"github.com/m3rciful/cardbot/core/logger"
	"github.com/m3rciful/cardbot/core/telegram/state"
)

// Recorder receives dispatch measurements.
type Recorder interface {
	Dispatched(handler, outcome string, took time.Duration)
	BackendFailure(backend string)
	Duplicate()
}

type nopRecorder struct{}

func (nopRecorder) Dispatched(string, string, time.Duration) {}
func (nopRecorder) BackendFailure(string)                    {}
func (nopRecorder) Duplicate()                               {}

// Backend names reported to the Recorder.
const (
	BackendRecords  = "records"
	BackendSessions = "sessions"
)

// Outcome labels of a dispatch.
const (
	OutcomeOK          = "ok"
	OutcomeUnmatched   = "unmatched"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Options tune a Dispatcher. Zero values pick defaults.
type Options struct {
	Texts         *messages.Catalogue
	Metrics       Recorder
	DedupTTL      time.Duration
	DedupCapacity int
}

// Dispatcher runs exactly one rule per message and commits its outcome.
type Dispatcher struct {
	registry *Registry
	machine  *Machine
	sessions state.Store
	records  Records
	texts    *messages.Catalogue
	metrics  Recorder

	locks    *keyedMutex
	seen     otter.Cache[int, struct{}]
	degraded atomic.Bool
	inflight sync.WaitGroup
}

// NewDispatcher wires the collaborators of the dialogue core.
func NewDispatcher(reg *Registry, machine *Machine, sessions state.Store, records Records, opts Options) (*Dispatcher, error) {
	if reg == nil || machine == nil || sessions == nil || records == nil {
		return nil, errors.New("dispatcher: registry, machine, sessions and records are required")
	}
	if opts.Texts == nil {
		opts.Texts = messages.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 10 * time.Minute
	}
	if opts.DedupCapacity <= 0 {
		opts.DedupCapacity = 50_000
	}
	seen, err := otter.MustBuilder[int, struct{}](opts.DedupCapacity).WithTTL(opts.DedupTTL).Build()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: update cache: %w", err)
	}
	return &Dispatcher{
		registry: reg,
		machine:  machine,
		sessions: sessions,
		records:  records,
		texts:    opts.Texts,
		metrics:  opts.Metrics,
		locks:    newKeyedMutex(),
		seen:     seen,
	}, nil
}

type dispatchResult struct {
	handler string
	from    state.State
	to      state.State
	event   string
	outcome string
	err     error
}

// Dispatch processes msg and returns the reply to send. Every message gets a
// reply except redeliveries of an update that was already handled, which come
// back with Skip set. A non-nil error means a backend is unavailable; the
// reply then tells the user to retry later.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.Message) (reply model.Reply, err error) {
	d.inflight.Add(1)
	defer d.inflight.Done()

	start := time.Now()
	if logger.TraceIDFrom(ctx) == "" {
		ctx = logger.WithTrace(ctx, uuid.NewString())
	}
	ctx = logger.WithUpdateMeta(ctx, msg.UpdateID, msg.UserID, msg.ChatID)

	res := dispatchResult{handler: "none", outcome: OutcomeOK}
	defer func() {
		d.finish(ctx, start, res)
	}()

	unlock, err := d.locks.Lock(ctx, msg.UserID)
	if err != nil {
		res.outcome, res.err = OutcomeFailed, err
		return model.Reply{Text: d.texts.Get(messages.Failure)}, err
	}
	defer unlock()

	if msg.UpdateID != 0 {
		if _, dup := d.seen.Get(msg.UpdateID); dup {
			d.metrics.Duplicate()
			res.outcome = "duplicate"
			return model.Reply{Skip: true}, nil
		}
	}

	reply, res = d.dispatchLocked(ctx, msg)
	if msg.UpdateID != 0 && res.outcome != OutcomeUnavailable {
		d.seen.Set(msg.UpdateID, struct{}{})
	}
	if res.outcome == OutcomeUnavailable {
		return reply, res.err
	}
	return reply, nil
}

func (d *Dispatcher) dispatchLocked(ctx context.Context, msg model.Message) (model.Reply, dispatchResult) {
	res := dispatchResult{handler: "none"}
	unavailable := func(backend string, err error) (model.Reply, dispatchResult) {
		d.markDegraded(ctx, backend, err)
		res.outcome = OutcomeUnavailable
		res.err = errs.E(errs.KindUnavailable, backend, err)
		return model.Reply{Text: d.texts.Get(messages.Unavailable)}, res
	}

	if d.degraded.Load() {
		if backend, err := d.probe(ctx); err != nil {
			return unavailable(backend, err)
		}
		d.degraded.Store(false)
		logger.Info(ctx, "dialog", "backend.recovered", slog.String("status", "ok"))
	}

	loaded, found, err := d.sessions.Get(ctx, msg.UserID)
	if err != nil {
		return unavailable(BackendSessions, err)
	}
	if !found || loaded.State == state.StateNone {
		exists, err := d.records.UserExists(ctx, msg.UserID)
		if err != nil {
			return unavailable(BackendRecords, err)
		}
		loaded = loaded.Clone()
		loaded.State = StateNew
		if exists {
			loaded.State = StateMain
		}
	}
	res.from, res.to = loaded.State, loaded.State

	rule, ok := d.registry.Match(ctx, loaded.State, msg)
	if !ok {
		res.outcome = OutcomeUnmatched
		return model.Reply{Text: d.texts.Get(messages.NotUnderstood)}, res
	}
	res.handler = rule.Name
	ctx = logger.WithHandler(ctx, rule.Name)

	req := newRequest(msg, loaded, d.records)
	defer req.rollback()

	out, err := d.run(ctx, rule, req)
	res.event = out.Event
	if err != nil {
		res.err = err
		switch errs.KindOf(err) {
		case errs.KindStorage, errs.KindUnavailable:
			if pingErr := d.records.Ping(ctx); pingErr != nil {
				return unavailable(BackendRecords, err)
			}
			res.outcome = OutcomeFailed
		case errs.KindValidation, errs.KindLimitExceeded, errs.KindNotFound, errs.KindAuthorization:
			res.outcome = OutcomeRejected
		default:
			res.outcome = OutcomeFailed
		}
		return model.Reply{Text: d.texts.Get(messages.Failure)}, res
	}

	next, err := d.machine.Next(ctx, loaded.State, out.Event)
	if err != nil {
		res.outcome, res.err = OutcomeFailed, err
		return model.Reply{Text: d.texts.Get(messages.Failure)}, res
	}

	if err := req.commit(); err != nil {
		res.err = err
		if pingErr := d.records.Ping(context.WithoutCancel(ctx)); pingErr != nil {
			return unavailable(BackendRecords, err)
		}
		res.outcome = OutcomeFailed
		return model.Reply{Text: d.texts.Get(messages.Failure)}, res
	}

	updated := state.Session{State: next, Data: req.Data}
	if out.ClearData {
		updated.Data = map[string]string{}
	}
	if !updated.Equal(loaded) {
		if err := d.sessions.Set(context.WithoutCancel(ctx), msg.UserID, updated); err != nil {
			// Records are committed; the user still learns the result.
			d.markDegraded(ctx, BackendSessions, err)
			res.outcome = OutcomeUnavailable
			res.err = errs.E(errs.KindUnavailable, BackendSessions, err)
			return out.Reply, res
		}
	}
	res.to = next
	res.outcome = OutcomeOK
	return out.Reply, res
}

func (d *Dispatcher) run(ctx context.Context, rule Rule, req *Request) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Handle(ctx, req)
}

func (d *Dispatcher) probe(ctx context.Context) (string, error) {
	if err := d.records.Ping(ctx); err != nil {
		return BackendRecords, err
	}
	if err := d.sessions.Ping(ctx); err != nil {
		return BackendSessions, err
	}
	return "", nil
}

func (d *Dispatcher) markDegraded(ctx context.Context, backend string, err error) {
	d.metrics.BackendFailure(backend)
	if d.degraded.CompareAndSwap(false, true) {
		logger.Error(ctx, "dialog", "backend.degraded",
			slog.String("status", "fail"),
			slog.String("backend", backend),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// Degraded reports whether a backend failure is pending recovery.
func (d *Dispatcher) Degraded() bool { return d.degraded.Load() }

func (d *Dispatcher) finish(ctx context.Context, start time.Time, res dispatchResult) {
	took := time.Since(start)
	d.metrics.Dispatched(res.handler, res.outcome, took)

	attrs := []slog.Attr{
		slog.String("status", statusOf(res.outcome)),
		slog.String("handler", res.handler),
		slog.String("state_from", string(res.from)),
		slog.String("state_to", string(res.to)),
		slog.String("outcome", res.outcome),
		slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
	}
	if res.event != "" {
		attrs = append(attrs, slog.String("outcome_event", res.event))
	}
	level := slog.LevelInfo
	if res.err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(res.err.Error(), 256)),
			slog.String("err_code", string(errs.KindOf(res.err))),
		)
		if res.outcome != OutcomeRejected {
			level = slog.LevelWarn
		}
	}
	logger.Event(ctx, "dialog", level, "dispatch.done", attrs...)
}

func statusOf(outcome string) string {
	switch outcome {
	case OutcomeOK, OutcomeUnmatched, OutcomeRejected, "duplicate":
		return "ok"
	default:
		return "fail"
	}
}

// Wait blocks until in-flight dispatches finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the update cache.
func (d *Dispatcher) Close() {
	d.seen.Close()
}
