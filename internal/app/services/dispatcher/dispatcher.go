// Package dispatcher drives one execution record per in-flight /execute
// call through the state machine from spec §4.6: pending → running ↔
// awaiting_llm → {completed, error, timeout}.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	core "github.com/ComputClaw/airlock/internal/app/core/service"
	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/sandbox"
	"github.com/ComputClaw/airlock/internal/app/services/sanitizer"
	"github.com/ComputClaw/airlock/internal/app/storage"
	"github.com/ComputClaw/airlock/internal/app/system"
	"github.com/ComputClaw/airlock/pkg/errors"
	"github.com/ComputClaw/airlock/pkg/logger"
	"github.com/google/uuid"
)

var (
	_ system.Service            = (*Dispatcher)(nil)
	_ system.DescriptorProvider = (*Dispatcher)(nil)
)

// DefaultLLMWaitTimeout bounds how long an execution may sit awaiting_llm
// before the dispatcher force-times it out (spec §4.6, "default 5 minutes").
const DefaultLLMWaitTimeout = 5 * time.Minute

// schedulerTick is how often the scheduler loop retries pending executions
// against newly-freed pool slots (spec §4.6 "first-idle" matching).
const schedulerTick = 50 * time.Millisecond

// inflight tracks the bookkeeping a running or suspended execution needs
// that does not belong on the public domain.Execution record.
type inflight struct {
	secrets   map[string]string
	remaining time.Duration
	llmTimer  *time.Timer
}

// job is the script/secrets/timeout a pending execution needs once a slot
// frees up for it.
type job struct {
	script  string
	secrets map[string]string
	timeout time.Duration
}

// observation tracks the meta map and completion callback an in-progress
// execution was started with, so finish can enrich meta with the terminal
// status before firing OnComplete.
type observation struct {
	meta     map[string]string
	complete func(error)
}

// Dispatcher is the per-process coordinator described in spec §4.6.
type Dispatcher struct {
	pool    *sandbox.Pool
	store   storage.ExecutionStore
	limiter *rate.Limiter
	log     *logger.Logger
	now     func() time.Time

	llmWaitTimeout time.Duration
	defaultTimeout time.Duration
	hooks          core.DispatchHooks

	mu           sync.Mutex
	execs        map[string]*domain.Execution
	inflight     map[string]*inflight
	pending      []string
	jobs         map[string]job
	observations map[string]*observation

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger overrides the default logger.
func WithLogger(log *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithClock overrides the time source (tests only).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLLMWaitTimeout overrides DefaultLLMWaitTimeout.
func WithLLMWaitTimeout(d2 time.Duration) Option {
	return func(d *Dispatcher) { d.llmWaitTimeout = d2 }
}

// WithDefaultTimeout sets the execution timeout used when submit() is not
// given an explicit one.
func WithDefaultTimeout(d2 time.Duration) Option {
	return func(d *Dispatcher) { d.defaultTimeout = d2 }
}

// WithSubmitRateLimit caps submit() throughput; once exhausted submit()
// fails with CodeOverloaded instead of queuing (spec §4.6's "MAY apply
// backpressure ... when saturated").
func WithSubmitRateLimit(r rate.Limit, burst int) Option {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(r, burst) }
}

// WithObservationHooks overrides the default completion logging hook, e.g.
// to feed execution durations into an external collector.
func WithObservationHooks(hooks core.DispatchHooks) Option {
	return func(d *Dispatcher) { d.hooks = hooks }
}

// New builds a Dispatcher driving pool.
func New(pool *sandbox.Pool, store storage.ExecutionStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:           pool,
		store:          store,
		log:            logger.NewDefault("dispatcher"),
		now:            time.Now,
		llmWaitTimeout: DefaultLLMWaitTimeout,
		defaultTimeout: 30 * time.Second,
		execs:          make(map[string]*domain.Execution),
		inflight:       make(map[string]*inflight),
		jobs:           make(map[string]job),
		observations:   make(map[string]*observation),
	}
	d.hooks = core.DispatchHooks{
		OnComplete: func(_ context.Context, meta map[string]string, err error, duration time.Duration) {
			fields := map[string]interface{}{"execution_id": meta["execution_id"], "status": meta["status"], "duration_ms": duration.Milliseconds()}
			if err != nil {
				d.log.WithFields(fields).WithError(err).Debug("execution finished")
				return
			}
			d.log.WithFields(fields).Debug("execution finished")
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name identifies the dispatcher within the system manager.
func (d *Dispatcher) Name() string { return "dispatcher" }

// Descriptor advertises the dispatcher's placement and capabilities to the
// system manager's introspection surface.
func (d *Dispatcher) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "dispatcher",
		Domain: "execution",
		Layer:  core.LayerEngine,
	}.WithCapabilities("submit", "poll", "respond")
}

// Start launches the background scheduler that retries pending executions
// against freed pool slots. Submit works without Start, but pending
// executions accumulated while the pool is saturated are only promoted by
// the scheduler loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(schedulerTick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.scheduleTick()
			}
		}
	}()
	return nil
}

// Stop halts the scheduler loop, leaving any in-flight executions to run to
// completion.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) scheduleTick() {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		if !d.pool.TryAcquire() {
			d.mu.Unlock()
			return
		}
		id := d.pending[0]
		d.pending = d.pending[1:]
		j := d.jobs[id]
		delete(d.jobs, id)
		d.mu.Unlock()

		d.setRunning(id)
		go d.run(id, j.script, j.secrets, j.timeout)
	}
}

// Submit creates a pending execution record and schedules it against the
// pool, returning immediately with its id.
func (d *Dispatcher) Submit(profileID, script string, secrets map[string]string, timeout time.Duration) (string, error) {
	if d.limiter != nil && !d.limiter.Allow() {
		return "", errors.New(errors.CodeOverloaded, "dispatcher is saturated, try again later")
	}
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	e := &domain.Execution{
		ID:        "exec_" + uuid.NewString(),
		ProfileID: profileID,
		Script:    script,
		Status:    domain.StatusPending,
		CreatedAt: d.now().UTC(),
	}

	meta := map[string]string{"execution_id": e.ID}
	complete := core.StartDispatch(context.Background(), d.hooks, meta)

	d.mu.Lock()
	d.execs[e.ID] = e
	d.observations[e.ID] = &observation{meta: meta, complete: complete}
	acquired := d.pool.TryAcquire()
	if !acquired {
		d.pending = append(d.pending, e.ID)
		d.jobs[e.ID] = job{script: script, secrets: secrets, timeout: timeout}
	}
	d.mu.Unlock()

	if acquired {
		d.setRunning(e.ID)
		go d.run(e.ID, script, secrets, timeout)
	}
	// If the pool is saturated the record stays pending until Start's
	// scheduler loop finds it a free slot (spec §4.6, "no synchronous
	// queue length limit is mandated").

	return e.ID, nil
}

// Poll returns a deep copy of the current execution state, or nil if id is
// unknown to both the in-memory map and the terminal-record store.
func (d *Dispatcher) Poll(ctx context.Context, id string) (*domain.Execution, error) {
	d.mu.Lock()
	e, ok := d.execs[id]
	d.mu.Unlock()
	if ok {
		return e.Clone(), nil
	}
	return d.store.GetExecution(ctx, id)
}

// Respond delivers an LLM response to an execution currently awaiting_llm,
// resuming its sandbox. Fails with CodeWrongState if the execution is not
// awaiting_llm.
func (d *Dispatcher) Respond(id, llmResponse string) (*domain.Execution, error) {
	d.mu.Lock()
	e, ok := d.execs[id]
	if !ok {
		d.mu.Unlock()
		return nil, errors.New(errors.CodeNotFound, "execution not found")
	}
	if e.Status != domain.StatusAwaitingLLM {
		d.mu.Unlock()
		return nil, errors.New(errors.CodeWrongState, "execution is not awaiting an LLM response")
	}
	inf := d.inflight[id]
	if inf.llmTimer != nil {
		inf.llmTimer.Stop()
	}
	e.Status = domain.StatusRunning
	e.PendingLLM = nil
	remaining := inf.remaining
	secrets := inf.secrets
	d.mu.Unlock()

	go d.resume(id, llmResponse, secrets, remaining)

	d.mu.Lock()
	snapshot := e.Clone()
	d.mu.Unlock()
	return snapshot, nil
}

func (d *Dispatcher) setRunning(id string) {
	d.mu.Lock()
	if e, ok := d.execs[id]; ok {
		e.Status = domain.StatusRunning
	}
	d.mu.Unlock()
}

func (d *Dispatcher) run(id, script string, secrets map[string]string, timeout time.Duration) {
	start := d.now()
	out := d.pool.Backend().Run(context.Background(), id, script, secrets, timeout)
	elapsed := d.now().Sub(start)
	remaining := timeout - elapsed
	d.handleOutcome(id, out, secrets, remaining)
}

func (d *Dispatcher) resume(id, llmResponse string, secrets map[string]string, remaining time.Duration) {
	start := d.now()
	out := d.pool.Backend().Resume(id, llmResponse, remaining)
	elapsed := d.now().Sub(start)
	d.handleOutcome(id, out, secrets, remaining-elapsed)
}

func (d *Dispatcher) handleOutcome(id string, out sandbox.Outcome, secrets map[string]string, remaining time.Duration) {
	switch out.Kind {
	case sandbox.Suspended:
		d.mu.Lock()
		e, ok := d.execs[id]
		if !ok {
			d.mu.Unlock()
			return
		}
		e.Status = domain.StatusAwaitingLLM
		e.PendingLLM = &domain.LLMRequest{Prompt: out.Prompt, Model: out.Model}
		timer := time.AfterFunc(d.llmWaitTimeout, func() { d.forceLLMTimeout(id) })
		d.inflight[id] = &inflight{secrets: secrets, remaining: remaining, llmTimer: timer}
		d.mu.Unlock()
		return
	case sandbox.Completed:
		d.finish(id, func(e *domain.Execution) {
			e.Status = domain.StatusCompleted
			e.Result = out.Result
			e.Stdout = out.Stdout
			e.Stderr = out.Stderr
		}, secrets)
	case sandbox.Failed:
		d.finish(id, func(e *domain.Execution) {
			e.Status = domain.StatusError
			e.Stdout = out.Stdout
			e.Stderr = out.Stderr
			if out.Err != nil {
				e.ErrorMessage = out.Err.Error()
			}
		}, secrets)
	case sandbox.TimedOut:
		d.finish(id, func(e *domain.Execution) {
			e.Status = domain.StatusTimeout
			e.Stdout = out.Stdout
			e.Stderr = out.Stderr
		}, secrets)
	}
}

func (d *Dispatcher) forceLLMTimeout(id string) {
	d.mu.Lock()
	e, ok := d.execs[id]
	if !ok || e.Status != domain.StatusAwaitingLLM {
		d.mu.Unlock()
		return
	}
	var secrets map[string]string
	if inf, ok := d.inflight[id]; ok {
		secrets = inf.secrets
	}
	d.mu.Unlock()

	d.finish(id, func(e *domain.Execution) {
		e.Status = domain.StatusTimeout
		e.ErrorMessage = "timed out waiting for an LLM response"
	}, secrets)
}

// finish applies mutate under lock, sanitizes every textual field against
// the execution's profile secrets (spec §4.9), persists the terminal
// record, releases the pool slot, and clears in-flight bookkeeping.
func (d *Dispatcher) finish(id string, mutate func(*domain.Execution), secrets map[string]string) {
	d.mu.Lock()
	e, ok := d.execs[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	mutate(e)
	now := d.now().UTC()
	e.CompletedAt = &now
	if !e.CreatedAt.IsZero() {
		ms := now.Sub(e.CreatedAt).Milliseconds()
		e.ExecutionTimeMS = &ms
	}

	if len(secrets) > 0 {
		values := make([]string, 0, len(secrets))
		for _, v := range secrets {
			values = append(values, v)
		}
		sanitizer.New(values).SanitizeExecution(e)
	}

	snapshot := e.Clone()
	delete(d.inflight, id)
	obs := d.observations[id]
	delete(d.observations, id)
	d.mu.Unlock()

	d.pool.Release()

	if err := d.store.SaveExecution(context.Background(), snapshot); err != nil {
		d.log.WithField("execution", id).WithError(err).Warn("failed to persist terminal execution record")
	}

	var execErr error
	if snapshot.ErrorMessage != "" {
		execErr = errors.New(errors.CodeInternal, snapshot.ErrorMessage)
	}
	if obs != nil {
		obs.meta["status"] = string(snapshot.Status)
		obs.complete(execErr)
	}
}
