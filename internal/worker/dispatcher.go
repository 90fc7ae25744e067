// Package worker runs the per-call advice pipeline. Work is parallel
// across call ids and strictly serialized within one: each call owns a
// mailbox whose pending/force flags coalesce bursts of enqueues into
// single cycles, and only its worker writes the advice, analyzing, and
// last_error fields of the session.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/advice"
	"github.com/jkindrix/scamshield/internal/clock"
	"github.com/jkindrix/scamshield/internal/domain"
	"github.com/jkindrix/scamshield/internal/metrics"
)

// User-visible notes for model-side failures. The heuristic advice
// keeps flowing either way.
const (
	NoteDelayed     = "Live analysis is delayed."
	NoteRateLimited = "Live analysis is temporarily rate-limited."
)

// Backoff tuning for model rate limiting.
const (
	backoffBase      = 6 * time.Second
	backoffMax       = 60 * time.Second
	streakResetAfter = 90 * time.Second
	transcriptWindow = 40
)

// Scorer is the remote advice source. A disabled scorer returns
// (nil, nil).
type Scorer interface {
	Enabled() bool
	Score(ctx context.Context, chunks []domain.TranscriptChunk, prev *domain.CoachingAdvice, now time.Time) (*domain.CoachingAdvice, error)
}

// Config tunes the dispatcher.
type Config struct {
	// ModelMinInterval is the minimum spacing between model calls for
	// one call id; force-model enqueues bypass it.
	ModelMinInterval time.Duration
	// StepCaps bounds score movement per update.
	StepCaps advice.StepCaps
	// Metrics records pipeline counters; optional.
	Metrics *metrics.Metrics
}

// Dispatcher owns the per-call workers.
type Dispatcher struct {
	store  domain.Store
	scorer Scorer
	clock  clock.Clock
	logger *zap.Logger
	cfg    Config

	mu      sync.Mutex
	workers map[string]*callWorker
	wg      sync.WaitGroup
	closed  bool
}

// callWorker is one call's mailbox plus its private backoff state.
// The backoff fields are touched only from the worker's own goroutine.
type callWorker struct {
	callID string

	mu         sync.Mutex
	pending    bool
	running    bool
	forceModel bool

	cooldownUntil   time.Time
	streak          int
	lastRateLimitAt time.Time
	lastModelRunAt  time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store domain.Store, scorer Scorer, clk clock.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.StepCaps == (advice.StepCaps{}) {
		cfg.StepCaps = advice.DefaultStepCaps
	}
	return &Dispatcher{
		store:   store,
		scorer:  scorer,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
		workers: make(map[string]*callWorker),
	}
}

// Enqueue requests an advice cycle for a call. force marks the cycle
// as force-model (transcript finality, terminal status). Safe from any
// goroutine; enqueues during a running cycle coalesce but are never
// dropped.
func (d *Dispatcher) Enqueue(callID string, force bool) {
	if callID == "" {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	w, ok := d.workers[callID]
	if !ok {
		w = &callWorker{callID: callID}
		d.workers[callID] = w
	}
	d.mu.Unlock()

	w.mu.Lock()
	w.pending = true
	w.forceModel = w.forceModel || force
	start := !w.running
	if start {
		w.running = true
	}
	w.mu.Unlock()

	if start {
		d.wg.Add(1)
		go d.run(w)
	}
}

// run drains the mailbox. Exits when no work is pending or when the
// session is observed terminal; a terminal exit retires the worker so
// no timer can resurrect it.
func (d *Dispatcher) run(w *callWorker) {
	defer d.wg.Done()

	for {
		w.mu.Lock()
		if !w.pending {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.pending = false
		force := w.forceModel
		w.forceModel = false
		w.mu.Unlock()

		terminal := d.runCycle(w, force)
		if terminal {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			d.mu.Lock()
			delete(d.workers, w.callID)
			d.mu.Unlock()
			return
		}
	}
}

// runCycle executes one advice pass and reports whether the session is
// terminal. It never panics outward and always leaves analyzing=false.
func (d *Dispatcher) runCycle(w *callWorker, forceModel bool) (terminal bool) {
	ctx := context.Background()
	log := d.logger.With(zap.String("call_id", w.callID))

	analyzing := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("advice cycle panicked", zap.Any("panic", r))
		}
		if analyzing {
			if err := d.store.SetAnalyzing(ctx, w.callID, false); err != nil {
				log.Warn("failed to clear analyzing flag", zap.Error(err))
			}
		}
	}()

	summary, err := d.store.GetSummary(ctx, w.callID)
	if err != nil {
		log.Error("failed to load session", zap.Error(err))
		return false
	}
	if summary == nil {
		return true
	}
	terminal = summary.Status.Terminal()

	chunks, err := d.store.GetChunks(ctx, w.callID, transcriptWindow)
	if err != nil {
		log.Error("failed to load transcript", zap.Error(err))
		return terminal
	}
	if len(chunks) == 0 {
		return terminal
	}

	now := d.clock.Now()
	heur := advice.HeuristicScore(chunks, now)
	stabilized := advice.Stabilize(summary.Advice, heur, d.cfg.StepCaps, now)

	// The heuristic write keeps the rate-limit note while a cooldown is
	// active; a later model success clears it.
	var note *string
	if now.Before(w.cooldownUntil) {
		note = strPtr(NoteRateLimited)
	}
	if err := d.store.SetAdvice(ctx, w.callID, *stabilized, note, false); err != nil {
		log.Error("failed to persist heuristic advice", zap.Error(err))
		return terminal
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordAdviceCycle("heuristic")
	}

	if !d.modelDue(w, now, forceModel, terminal) {
		return terminal
	}

	analyzing = true
	if err := d.store.SetAnalyzing(ctx, w.callID, true); err != nil {
		log.Warn("failed to set analyzing flag", zap.Error(err))
	}

	modelStart := time.Now()
	modelAdvice, err := d.scorer.Score(ctx, chunks, stabilized, d.clock.Now())
	modelDuration := time.Since(modelStart)
	now = d.clock.Now()
	switch {
	case err != nil:
		d.handleModelFailure(ctx, w, stabilized, err, now, modelDuration, log)
	case modelAdvice == nil:
		// Scorer disabled between the gate and the call.
	default:
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.RecordModelCall(true, modelDuration)
			d.cfg.Metrics.RecordAdviceCycle("model")
		}
		final := advice.Stabilize(stabilized, modelAdvice, d.cfg.StepCaps, now)
		if err := d.store.SetAdvice(ctx, w.callID, *final, nil, false); err != nil {
			log.Error("failed to persist model advice", zap.Error(err))
			return terminal
		}
		analyzing = false
		w.cooldownUntil = time.Time{}
		w.streak = 0
		w.lastRateLimitAt = time.Time{}
		w.lastModelRunAt = now
	}
	return terminal
}

// modelDue applies the cooldown and minimum-interval gates.
func (d *Dispatcher) modelDue(w *callWorker, now time.Time, forceModel, terminal bool) bool {
	if d.scorer == nil || !d.scorer.Enabled() {
		return false
	}
	if now.Before(w.cooldownUntil) {
		return false
	}
	if forceModel || terminal {
		return true
	}
	return now.Sub(w.lastModelRunAt) >= d.cfg.ModelMinInterval
}

// handleModelFailure records the failure note and advances the backoff
// state. A 429 extends the cooldown exponentially; anything else only
// bumps the model-run timestamp so the interval gate keeps applying.
func (d *Dispatcher) handleModelFailure(ctx context.Context, w *callWorker, current *domain.CoachingAdvice, err error, now time.Time, took time.Duration, log *zap.Logger) {
	var me *advice.ModelError
	if errors.As(err, &me) && me.RateLimited() {
		if !w.lastRateLimitAt.IsZero() && now.Sub(w.lastRateLimitAt) > streakResetAfter {
			w.streak = 0
		}
		w.streak++
		w.lastRateLimitAt = now

		// 6s, 12s, 24s, 48s, then pinned at the cap. Clamping the
		// exponent keeps a long uninterrupted streak from overflowing
		// the shift.
		backoff := backoffMax
		if w.streak > 0 && w.streak <= 4 {
			backoff = backoffBase << (w.streak - 1)
		}
		if me.RetryAfter > backoff {
			backoff = me.RetryAfter
		}
		w.cooldownUntil = now.Add(backoff)

		if d.cfg.Metrics != nil {
			d.cfg.Metrics.RecordModelRateLimited()
		}
		log.Warn("model rate limited",
			zap.Int("streak", w.streak),
			zap.Duration("cooldown", backoff),
		)
		if err := d.store.SetAdvice(ctx, w.callID, *current, strPtr(NoteRateLimited), false); err != nil {
			log.Error("failed to persist rate-limit note", zap.Error(err))
		}
		return
	}

	w.lastModelRunAt = now
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordModelCall(false, took)
	}
	log.Warn("model call failed", zap.Error(err))
	if err := d.store.SetAdvice(ctx, w.callID, *current, strPtr(NoteDelayed), false); err != nil {
		log.Error("failed to persist delay note", zap.Error(err))
	}
}

// Stop waits for in-flight cycles to finish, bounded by ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func strPtr(s string) *string { return &s }
