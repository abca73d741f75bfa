// Package command implements the command execution and undo/redo engine.
//
// A Manager owns a registry of stateless commands, a worker goroutine with a
// FIFO queue, the undo history and its cursor. Commands run on the goroutine
// their affinity dictates: UI commands on the owner goroutine (the one that
// drives the EventLoop), worker commands on the worker, and "any" commands
// wherever they are scheduled. Each invocation is tracked by an Instance whose
// undo/redo record is captured from property mutations or delegated to the
// command.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

const tracerName = "github.com/manav03panchal/cmdstack/internal/command"

// Manager dispatches commands and owns the undo history.
//
// Three pieces of state are shared between goroutines: the registry, the
// history with its cursor and the work queue. Each has its own lock, held only
// around the mutation and never while a command body runs.
type Manager struct {
	logger          *slog.Logger
	tracer          trace.Tracer
	accessor        PropertyAccessor
	resolver        ObjectResolver
	loop            EventLoop
	historyLimit    int
	shutdownTimeout time.Duration

	events *eventBus
	owner  *thread
	worker *thread
	batch  *batchCommand

	registryMu sync.RWMutex
	registry   map[string]Command
	macros     []*CompoundCommand

	historyMu sync.Mutex
	history   []*Instance
	index     int

	// navMu serializes undo/redo navigation.
	navMu sync.Mutex

	workMu    sync.Mutex
	work      []workItem
	workReady chan struct{}

	unsubscribe func()
	stop        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	closed      atomic.Bool
}

type workItem struct {
	ctx  context.Context
	inst *Instance
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer used for execute/undo/redo spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithAccessor enables diff capture through the given property accessor.
func WithAccessor(accessor PropertyAccessor) Option {
	return func(m *Manager) {
		m.accessor = accessor
	}
}

// WithResolver sets the resolver used to skip changes to destroyed objects.
func WithResolver(resolver ObjectResolver) Option {
	return func(m *Manager) {
		m.resolver = resolver
	}
}

// WithEventLoop replaces the owner goroutine's task queue.
func WithEventLoop(loop EventLoop) Option {
	return func(m *Manager) {
		if loop != nil {
			m.loop = loop
		}
	}
}

// WithHistoryLimit caps the number of history entries. Zero means unlimited.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.historyLimit = n
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for the worker.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// NewManager creates a Manager and starts its worker goroutine. The goroutine
// calling NewManager is expected to be the owner goroutine.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:          logging.Component("command"),
		tracer:          otel.Tracer(tracerName),
		loop:            NewTaskLoop(),
		shutdownTimeout: 5 * time.Second,
		registry:        make(map[string]Command),
		index:           -1,
		workReady:       make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		if r, ok := m.accessor.(ObjectResolver); ok {
			m.resolver = r
		}
	}

	m.events = newEventBus(m.logger)
	m.owner = &thread{m: m, name: "ui", affinity: AffinityUI}
	m.worker = &thread{m: m, name: "worker", affinity: AffinityWorker}
	m.batch = &batchCommand{m: m}
	m.registry[BatchCommandID] = m.batch

	if m.accessor != nil {
		m.unsubscribe = m.accessor.Subscribe(&captureListener{m: m})
	}

	go m.runWorker()
	return m
}

// Close stops the worker. Instances still queued for the worker complete as
// aborted. Close waits for the instance currently running on the worker, up to
// the shutdown timeout.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		select {
		case <-m.stopped:
		case <-time.After(m.shutdownTimeout):
			err = errors.NewSystemErrorWithOp("close", "worker did not stop in time", errors.ErrAborted)
		}
		m.loop.RunPending()
	})
	return err
}

// Subscribe registers an event handler and returns a function removing it.
func (m *Manager) Subscribe(h Handler) (unsubscribe func()) {
	return m.events.subscribe(h)
}

// =============================================================================
// Registry
// =============================================================================

// Register adds a command to the registry.
func (m *Manager) Register(cmd Command) error {
	if cmd == nil || cmd.ID() == "" {
		return errors.Wrap(errors.ErrInvalidArguments, "command needs an id")
	}
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	if _, exists := m.registry[cmd.ID()]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "command %q", cmd.ID())
	}
	m.registry[cmd.ID()] = cmd
	return nil
}

// Deregister removes a command. Callers must ensure no instance of it is
// still queued or running.
func (m *Manager) Deregister(id string) error {
	if id == BatchCommandID {
		return errors.Wrapf(errors.ErrInvalidOperation, "command %q is built in", id)
	}
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	if _, exists := m.registry[id]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "command %q", id)
	}
	delete(m.registry, id)
	return nil
}

// Find looks up a registered command.
func (m *Manager) Find(id string) (Command, bool) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	cmd, ok := m.registry[id]
	return cmd, ok
}

// Commands returns the registered command ids in sorted order.
func (m *Manager) Commands() []string {
	m.registryMu.RLock()
	ids := make([]string, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	m.registryMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// =============================================================================
// Queueing and waiting
// =============================================================================

// Queue creates an instance of the command and schedules it. Unknown ids and
// rejected arguments fail synchronously with ErrInvalidArguments and create no
// instance. When called from a running command or inside an open batch, the
// new instance becomes a child of it.
func (m *Manager) Queue(ctx context.Context, id string, args any) (*Instance, error) {
	if m.closed.Load() {
		return nil, errors.ErrManagerClosed
	}
	cmd, ok := m.Find(id)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidArguments, "unknown command %q", id)
	}
	if v, ok := cmd.(Validator); ok {
		if err := v.ValidateArguments(args); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", id, errors.ErrInvalidArguments, err)
		}
	}

	t := m.threadFor(ctx)
	if _, ok := cmd.(*batchCommand); ok {
		return m.queueBatchStage(t.bind(ctx), args)
	}

	inst := newInstance(cmd, args, m.events)
	top := t.top()
	if top != nil {
		top.inst.addChild(inst)
	}

	m.logger.Debug("queued",
		logging.KeyCommand, id,
		logging.KeyInstance, inst.id,
		logging.KeyStatus, StatusQueued.String(),
		logging.KeyThread, t.name)
	m.events.publish(Event{Kind: EventStatusChanged, Instance: inst, Status: StatusQueued})

	m.dispatch(ctx, t, top, inst)
	return inst, nil
}

func (m *Manager) dispatch(ctx context.Context, t *thread, top *frame, inst *Instance) {
	aff := inst.cmd.Affinity()
	runsHere := aff == AffinityAny || aff == t.affinity

	if top != nil && !top.batch {
		if runsHere {
			top.immediate = append(top.immediate, inst)
			return
		}
		top.pending = append(top.pending, inst)
		m.route(ctx, inst)
		return
	}

	if top != nil {
		top.pending = append(top.pending, inst)
	}
	if aff == AffinityUI && t == m.owner {
		m.execute(t.bind(ctx), t, inst)
		return
	}
	m.route(ctx, inst)
}

// route hands an instance to the goroutine its affinity requires. The caller's
// context values travel with it, its cancellation does not.
func (m *Manager) route(ctx context.Context, inst *Instance) {
	base := context.WithoutCancel(ctx)
	if inst.cmd.Affinity() == AffinityUI {
		octx := m.owner.bind(base)
		m.loop.Post(func() { m.execute(octx, m.owner, inst) })
		return
	}

	m.workMu.Lock()
	m.work = append(m.work, workItem{ctx: m.worker.bind(base), inst: inst})
	m.workMu.Unlock()
	select {
	case m.workReady <- struct{}{}:
	default:
	}
}

func (m *Manager) popWork() (workItem, bool) {
	m.workMu.Lock()
	defer m.workMu.Unlock()
	if len(m.work) == 0 {
		return workItem{}, false
	}
	item := m.work[0]
	m.work[0] = workItem{}
	m.work = m.work[1:]
	return item, true
}

func (m *Manager) runWorker() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stop:
			m.abortQueuedWork()
			return
		case <-m.workReady:
			m.runWork()
		}
	}
}

// runWork drains the work queue. It only runs on the worker goroutine.
func (m *Manager) runWork() int {
	n := 0
	for {
		select {
		case <-m.stop:
			m.abortQueuedWork()
			return n
		default:
		}
		item, ok := m.popWork()
		if !ok {
			return n
		}
		m.execute(item.ctx, m.worker, item.inst)
		n++
	}
}

func (m *Manager) abortQueuedWork() {
	for {
		item, ok := m.popWork()
		if !ok {
			return
		}
		m.cancel(item.inst)
	}
}

// popNested removes the first queued item that descends from an instance
// running on t.
func (m *Manager) popNested(t *thread) (workItem, bool) {
	m.workMu.Lock()
	defer m.workMu.Unlock()
	for n, item := range m.work {
		if t.encloses(item.inst) {
			m.work = append(m.work[:n:n], m.work[n+1:]...)
			return item, true
		}
	}
	return workItem{}, false
}

// pump runs work queued for t while it waits. A waiting worker only takes the
// descendants of its own running instances; unrelated commands keep their
// place in the queue.
func (m *Manager) pump(t *thread) int {
	if t == m.owner {
		return m.loop.RunPending()
	}
	n := 0
	for {
		item, ok := m.popNested(t)
		if !ok {
			return n
		}
		m.execute(item.ctx, t, item.inst)
		n++
	}
}

func (m *Manager) ready(t *thread) <-chan struct{} {
	if t == m.owner {
		return m.loop.Ready()
	}
	return m.workReady
}

// WaitFor blocks until inst completes. While it waits, the calling goroutine
// keeps running its own queued work, so waiting on the owner goroutine for a
// command that needs the owner does not deadlock. It returns early with
// ctx.Err() when ctx ends.
func (m *Manager) WaitFor(ctx context.Context, inst *Instance) error {
	if inst == nil {
		return errors.Wrap(errors.ErrInvalidArguments, "nil instance")
	}
	t := m.threadFor(ctx)
	if err := m.await(ctx, t, inst); err != nil {
		return err
	}
	if t == m.owner {
		m.loop.RunPending()
	}
	return nil
}

func (m *Manager) await(ctx context.Context, t *thread, inst *Instance) error {
	for !inst.isComplete() {
		if m.runImmediate(ctx, t, inst) {
			continue
		}
		select {
		case <-inst.done:
		case <-m.ready(t):
			m.pump(t)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runImmediate runs a frame's immediate queue up to and including inst, if
// inst is waiting in one of t's frames.
func (m *Manager) runImmediate(ctx context.Context, t *thread, inst *Instance) bool {
	for n := len(t.frames) - 1; n >= 0; n-- {
		f := t.frames[n]
		pos := -1
		for k, c := range f.immediate {
			if c == inst {
				pos = k
				break
			}
		}
		if pos < 0 {
			continue
		}
		for k := 0; k <= pos; k++ {
			next := f.immediate[0]
			f.immediate = f.immediate[1:]
			m.execute(t.bind(ctx), t, next)
		}
		return true
	}
	return false
}

// Execute queues a command and waits for it. A failed instance is returned
// together with its error.
func (m *Manager) Execute(ctx context.Context, id string, args any) (*Instance, error) {
	inst, err := m.Queue(ctx, id, args)
	if err != nil {
		return nil, err
	}
	if err := m.WaitFor(ctx, inst); err != nil {
		return inst, err
	}
	if inst.ErrorCode() != CodeOK {
		return inst, inst.Err()
	}
	return inst, nil
}

// Cancel aborts an instance that has not started yet.
func (m *Manager) Cancel(inst *Instance) error {
	if inst == nil {
		return errors.Wrap(errors.ErrInvalidArguments, "nil instance")
	}
	if !m.cancel(inst) {
		return errors.Wrapf(errors.ErrInvalidOperation, "instance %s is %s", inst.id, inst.Status())
	}
	return nil
}

func (m *Manager) cancel(inst *Instance) bool {
	if !inst.abort() {
		return false
	}
	m.logger.Debug("canceled", logging.KeyCommand, inst.CommandID(), logging.KeyInstance, inst.id)
	m.events.publish(Event{Kind: EventStatusChanged, Instance: inst, Status: StatusComplete})
	return true
}

// ExecutingCommandGroup reports whether the calling goroutine is inside an
// open batch or a running compound command.
func (m *Manager) ExecutingCommandGroup(ctx context.Context) bool {
	return m.threadFor(ctx).inGroup()
}

// =============================================================================
// Execution
// =============================================================================

func (m *Manager) execute(ctx context.Context, t *thread, inst *Instance) {
	if !inst.start() {
		return
	}
	m.events.publish(Event{Kind: EventStatusChanged, Instance: inst, Status: StatusRunning})

	ctx, span := m.tracer.Start(ctx, "command.execute", trace.WithAttributes(
		attribute.String("command.id", inst.CommandID()),
		attribute.String("command.instance", inst.id),
		attribute.String("command.thread", t.name),
	))
	defer span.End()
	started := time.Now()

	if _, custom := customUndo(inst.cmd); !custom && m.accessor != nil {
		inst.recorder = newDiffRecord(m.accessor, m.resolver)
	}

	f := &frame{inst: inst}
	t.push(f)
	result, err := m.safeExecute(ctx, inst)
	m.drainFrame(ctx, t, f)
	t.pop(f)

	code := Code(err)
	m.complete(ctx, t, inst, result, code, err)

	span.SetAttributes(attribute.String("command.error_code", code.String()))
	if code != CodeOK {
		span.SetStatus(codes.Error, code.String())
		if err != nil {
			span.RecordError(err)
		}
		m.logger.Warn("command failed",
			logging.KeyCommand, inst.CommandID(),
			logging.KeyInstance, inst.id,
			logging.KeyObject, string(inst.ContextObject()),
			logging.KeyErrorCode, code.String(),
			logging.KeyError, err)
		return
	}
	m.logger.Debug("command complete",
		logging.KeyCommand, inst.CommandID(),
		logging.KeyInstance, inst.id,
		logging.KeyThread, t.name,
		logging.KeyDuration, time.Since(started).Milliseconds())
}

// safeExecute runs the body, turning a panic into a failure.
func (m *Manager) safeExecute(ctx context.Context, inst *Instance) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("command panicked",
				logging.KeyCommand, inst.CommandID(),
				logging.KeyInstance, inst.id,
				"panic", r)
			result = nil
			err = fmt.Errorf("%w: panic: %v", errors.ErrFailed, r)
		}
	}()
	return inst.cmd.Execute(ctx, inst.args)
}

// drainFrame runs the frame's remaining immediate children and waits for the
// ones executing on other goroutines.
func (m *Manager) drainFrame(ctx context.Context, t *thread, f *frame) {
	ctx = context.WithoutCancel(ctx)
	for len(f.immediate) > 0 {
		next := f.immediate[0]
		f.immediate = f.immediate[1:]
		m.execute(t.bind(ctx), t, next)
	}
	for _, p := range f.pending {
		_ = m.await(ctx, t, p)
	}
	f.pending = nil
}

func (m *Manager) complete(ctx context.Context, t *thread, inst *Instance, result any, code ErrorCode, err error) {
	parent := inst.parent
	rec := inst.recorder

	switch {
	case code != CodeOK:
		// Roll back whatever the failed body changed, then keep the record
		// only as an inert audit trail.
		m.rollback(withReplay(ctx), inst, rec)
	case rec != nil:
		rec.consolidate()
		inst.setRecord(rec)
	default:
		if rev, ok := customUndo(inst.cmd); ok {
			inst.setRecord(newDelegateRecord(inst, rev))
		}
	}
	markChild(parent, inst)
	inst.recorder = nil
	inst.parent = nil

	if parent == nil && canUndo(inst.cmd, inst.args) {
		m.addToHistory(t, inst)
	}

	inst.finish(result, code, err)
	m.events.publish(Event{Kind: EventStatusChanged, Instance: inst, Status: StatusComplete})
	m.events.publish(Event{Kind: EventCommandExecuted, Instance: inst, Operation: OpExecute})
}

// rollback reverses the successful children of a failed instance and the
// changes its body made before failing, in the order they were made.
func (m *Manager) rollback(ctx context.Context, inst *Instance, rec *DiffRecord) {
	var record Record
	if rec != nil {
		rec.consolidate()
		record = rec
	}
	if err := unwind(ctx, record, inst.Children(), true); err != nil {
		m.logger.Warn("rollback failed", logging.KeyInstance, inst.id, logging.KeyError, err)
	}
	if rec == nil {
		return
	}
	rec.markInert()
	inst.setRecord(rec)
}

// markChild places child's marker in its parent's record so undo and redo
// interleave the child with the parent's own changes. Batches replay their
// children in order and take no markers.
func markChild(parent, child *Instance) {
	if parent == nil || parent.batch || parent.recorder == nil {
		return
	}
	parent.recorder.markChild(parent.childIndex(child))
}

// addToHistory appends on the owner goroutine so that history order follows
// completion order there.
func (m *Manager) addToHistory(t *thread, inst *Instance) {
	if t == m.owner {
		m.appendHistory(inst)
		return
	}
	m.loop.Post(func() { m.appendHistory(inst) })
}

func (i *Instance) setRecord(r Record) {
	i.mu.Lock()
	i.record = r
	i.mu.Unlock()
}

// =============================================================================
// Diff capture
// =============================================================================

type captureListener struct {
	m *Manager
}

func (l *captureListener) recorder(ctx context.Context) *DiffRecord {
	if ctx == nil || isReplay(ctx) {
		return nil
	}
	inst := l.m.threadFor(ctx).executing()
	if inst == nil {
		return nil
	}
	return inst.recorder
}

func (l *captureListener) BeforeMutation(ctx context.Context, mut Mutation) {
	if r := l.recorder(ctx); r != nil {
		r.before(mut)
	}
}

func (l *captureListener) AfterMutation(ctx context.Context, mut Mutation) {
	if r := l.recorder(ctx); r != nil {
		r.after(mut)
	}
}
