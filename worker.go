// Package reactor implements a per-thread, epoll/kqueue-driven event
// loop worker: one OS thread per Worker, a cross-thread mailbox for
// task injection and arbitrary messages, a drift-compensating timer
// subsystem, and a hierarchical load meter. The worker's lifecycle and
// handler contract are expressed as Go interfaces and composable
// options rather than a base class hierarchy.
package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panlibin/reactor/internal/loadmeter"
	"github.com/panlibin/reactor/internal/mailbox"
	"github.com/panlibin/reactor/internal/netpoll"
	"github.com/panlibin/reactor/internal/stats"
	"github.com/panlibin/reactor/internal/task"
	"github.com/panlibin/reactor/internal/timerset"
	"github.com/pkg/errors"
)

// pollTimeout bounds every blocking poll-wait call so an otherwise idle
// Worker still produces at least one load sample per second. The
// timer-fd, registered like any other descriptor, provides the precise
// wake for scheduled work; this timeout only bounds the worst case.
const pollTimeout = loadmeter.Granularity

// wakeMessageID is a reserved mailbox.Message id used only to wake a
// worker blocked in poll-wait (e.g. on Shutdown). It is swallowed by
// HandleMessage before reaching any user MessageHandler.
const wakeMessageID uint32 = 0

// workerConfig accumulates Option values before NewWorker builds the
// Worker itself.
type workerConfig struct {
	logger         Logger
	mailboxKind    mailbox.Kind
	preRun         func(*Worker) bool
	postRun        func(*Worker)
	epollTick      func(*Worker)
	messageHandler func(mailbox.Message)
}

// Option customizes a Worker at construction time.
type Option func(*workerConfig)

// WithLogger supplies the Logger a Worker reports through. A nil Logger
// (or omitting this option) means discard.
func WithLogger(l Logger) Option {
	return func(c *workerConfig) { c.logger = l }
}

// WithMailboxKind selects the cross-thread transport backing the
// Worker's mailbox. Defaults to mailbox.Pipe, the portable choice; pass
// mailbox.EventCounter on Linux for unbounded, lower-syscall-overhead
// delivery.
func WithMailboxKind(k mailbox.Kind) Option {
	return func(c *workerConfig) { c.mailboxKind = k }
}

// WithPreRun sets the hook run once, on the worker's own thread, before
// the loop begins. Returning false aborts the run without ever
// entering the loop.
func WithPreRun(fn func(w *Worker) bool) Option {
	return func(c *workerConfig) { c.preRun = fn }
}

// WithPostRun sets the hook run once, on the worker's own thread, after
// the loop exits and teardown has completed.
func WithPostRun(fn func(w *Worker)) Option {
	return func(c *workerConfig) { c.postRun = fn }
}

// WithEpollTick sets the hook run once per loop iteration, after event
// dispatch and before the shutdown check. Defaults to a no-op.
func WithEpollTick(fn func(w *Worker)) Option {
	return func(c *workerConfig) { c.epollTick = fn }
}

// WithMessageHandler sets the callback for post_message traffic whose
// id is not one of the TaskInjector's reserved ids (internal/task.Owns).
func WithMessageHandler(fn func(msg mailbox.Message)) Option {
	return func(c *workerConfig) { c.messageHandler = fn }
}

// Worker is a single-threaded reactor: one goroutine, pinned to one OS
// thread for its entire life, running a poll/dispatch loop over
// registered Pollables, a shared mailbox, and a timer set. All mutation
// of its registration table happens only on the owning thread;
// everything else is safe from any goroutine.
type Worker struct {
	logger Logger

	poller    *netpoll.Poller
	pollables map[int]Pollable

	mailbox  *mailbox.Mailbox
	injector *task.Injector[*Worker]
	timers   *timerset.Set
	timerFD  timerset.TimerFD

	loadMeter *loadmeter.LoadMeter

	messageHandler func(mailbox.Message)

	// PreRun, PostRun and EpollTick are the optional lifecycle hooks,
	// settable directly or via the matching With* options.
	PreRun    func(w *Worker) bool
	PostRun   func(w *Worker)
	EpollTick func(w *Worker)

	state           atomic.Int32
	stopFlag        atomic.Bool
	runnerGoroutine atomic.Uint64

	polls      uint64
	events     uint64
	queueTimes stats.Histogram
	execTimes  stats.Histogram
	batchSizes stats.BatchSizes

	currentDescriptors atomic.Uint32
	totalDescriptors   atomic.Uint64

	mu      sync.Mutex
	started bool
	doneCh  chan struct{}
}

// NewWorker constructs a Worker. The returned Worker is in state
// Stopped; call Start or Run to begin its loop.
func NewWorker(opts ...Option) (*Worker, error) {
	cfg := workerConfig{logger: NoopLogger, mailboxKind: mailbox.Pipe}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NoopLogger
	}

	poller, err := netpoll.Open()
	if err != nil {
		return nil, errors.Wrap(err, "reactor: open poller")
	}

	w := &Worker{
		logger:         cfg.logger,
		poller:         poller,
		pollables:      make(map[int]Pollable),
		timers:         timerset.New(),
		loadMeter:      loadmeter.New(),
		messageHandler: cfg.messageHandler,
		PreRun:         cfg.preRun,
		PostRun:        cfg.postRun,
		EpollTick:      cfg.epollTick,
		doneCh:         make(chan struct{}),
	}
	w.state.Store(int32(Stopped))

	mb, err := mailbox.New(cfg.mailboxKind, w)
	if err != nil {
		_ = poller.Close()
		return nil, errors.Wrap(err, "reactor: create mailbox")
	}
	w.mailbox = mb
	w.injector = task.NewInjector(w, mb, w.isOwningThread)
	w.injector.SetDispatchObserver(func(queued time.Duration) {
		w.queueTimes.Observe(queued.Milliseconds())
	})

	if err := mb.Attach(w); err != nil {
		_ = mb.Close()
		_ = poller.Close()
		return nil, errors.Wrap(err, "reactor: attach mailbox")
	}

	tfd, err := timerset.NewTimerFD()
	if err != nil {
		mb.Detach()
		_ = mb.Close()
		_ = poller.Close()
		return nil, errors.Wrap(err, "reactor: create timerfd")
	}
	w.timerFD = tfd

	if err := w.AddFD(tfd.FD(), netpoll.EventRead, w.onTimerReadable); err != nil {
		_ = tfd.Close()
		mb.Detach()
		_ = mb.Close()
		_ = poller.Close()
		return nil, errors.Wrap(err, "reactor: register timerfd")
	}

	return w, nil
}

// State returns the worker's current lifecycle state. Safe from any
// goroutine.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) isOwningThread() bool {
	return w.runnerGoroutine.Load() == goroutineID()
}

// addPollable registers p for fd's readiness, enforcing the
// owning-thread-only contract once the worker has left Stopped.
// Construction-time registrations (mailbox, timer-fd) happen while the
// worker is still Stopped, before any goroutine owns it, so they bypass
// the check.
func (w *Worker) addPollable(fd int, events netpoll.Event, p Pollable) error {
	if State(w.state.Load()) != Stopped && !w.isOwningThread() {
		panic("reactor: add_fd called from a non-owning thread")
	}
	if _, exists := w.pollables[fd]; exists {
		return ErrFDRegistered
	}
	if err := w.poller.Add(fd, events); err != nil {
		// Add never has a benign failure mode (unlike Delete's ENOENT):
		// any kernel rejection here means the invariants this module
		// guarantees (unique fd, non-blocking fd) were already violated.
		panic(err)
	}
	w.pollables[fd] = p
	w.currentDescriptors.Add(1)
	w.totalDescriptors.Add(1)
	return nil
}

func (w *Worker) removePollable(fd int) error {
	if State(w.state.Load()) != Stopped && !w.isOwningThread() {
		panic("reactor: remove_fd called from a non-owning thread")
	}
	if _, exists := w.pollables[fd]; !exists {
		return ErrFDNotFound
	}
	delete(w.pollables, fd)
	w.currentDescriptors.Add(^uint32(0))
	if err := w.poller.Delete(fd); err != nil {
		if netpoll.IsBenign(netpoll.CtlDelete, err) {
			w.logger.Debug("benign delete error", "fd", fd, "err", err.Error())
			return nil
		}
		panic(err)
	}
	return nil
}

// AddFD implements mailbox.Registrar (and the equivalent capability
// internal/timerset's owner needs) by wrapping a plain readiness
// callback as a Pollable. Exported so those internal packages, which
// never import reactor, can still register through a *Worker.
func (w *Worker) AddFD(fd int, events netpoll.Event, onReadable func(netpoll.Event)) error {
	return w.addPollable(fd, events, funcPollable{fd: fd, fn: onReadable})
}

// RemoveFD implements mailbox.Registrar.
func (w *Worker) RemoveFD(fd int) error {
	return w.removePollable(fd)
}

// Register binds p to fd in this worker's poll registry. fd must
// already be non-blocking. Owning thread only once the worker is
// running.
func (w *Worker) Register(fd int, mask netpoll.Event, p Pollable) error {
	return w.addPollable(fd, mask, p)
}

// Unregister undoes a prior Register. Owning thread only once the
// worker is running.
func (w *Worker) Unregister(fd int) error {
	return w.removePollable(fd)
}

func (w *Worker) onTimerReadable(netpoll.Event) {
	w.timerFD.Drain()
	w.timers.PopDue(time.Now())
	w.rearmTimer()
}

func (w *Worker) rearmTimer() {
	due, ok := w.timers.NextDue()
	if !ok {
		_ = w.timerFD.Arm(0)
		return
	}
	d := time.Until(due)
	if d <= 0 {
		// Arm(0) would disarm; an already-due head must still fire.
		d = time.Nanosecond
	}
	_ = w.timerFD.Arm(d)
}

// DelayedCall schedules cb to run after delay, recurring per its own
// return value. delay must be positive; callable from any goroutine —
// a foreign-thread call is funneled through the task injector onto the
// owning thread so the timer set's single-writer invariant never needs
// its own lock.
func (w *Worker) DelayedCall(delay time.Duration, cb func(timerset.Action) bool) uint32 {
	if delay <= 0 {
		panic("reactor: delayed_call requires delay > 0")
	}
	if w.isOwningThread() {
		return w.delayedCallOnThread(delay, cb)
	}
	var id uint32
	w.injector.CallFunc(func(w *Worker) { id = w.delayedCallOnThread(delay, cb) })
	return id
}

func (w *Worker) delayedCallOnThread(delay time.Duration, cb func(timerset.Action) bool) uint32 {
	id := w.timers.Add(time.Now(), delay, timerset.Callback(cb))
	w.rearmTimer()
	return id
}

// CancelDelayedCall cancels id, synchronously: by the time it returns,
// cb(CANCEL) has already run.
func (w *Worker) CancelDelayedCall(id uint32) bool {
	if w.isOwningThread() {
		return w.cancelDelayedCallOnThread(id)
	}
	var ok bool
	w.injector.CallFunc(func(w *Worker) { ok = w.cancelDelayedCallOnThread(id) })
	return ok
}

func (w *Worker) cancelDelayedCallOnThread(id uint32) bool {
	ok := w.timers.Cancel(id)
	w.rearmTimer()
	return ok
}

// Execute posts t for execution on w.
func (w *Worker) Execute(t task.Task[*Worker], sem task.Semaphore, mode task.Mode) bool {
	return w.injector.Execute(t, sem, mode)
}

// ExecuteFunc wraps fn as a one-shot disposable task and enqueues it.
func (w *Worker) ExecuteFunc(fn func(*Worker)) bool {
	return w.injector.ExecuteFunc(fn)
}

// ExecuteDisposable enqueues a ref-counted DisposableTask.
func (w *Worker) ExecuteDisposable(t task.DisposableTask[*Worker]) bool {
	return w.injector.ExecuteDisposable(t)
}

// Call runs t on w and blocks until it has finished executing.
func (w *Worker) Call(t task.Task[*Worker], mode task.Mode) bool {
	return w.injector.Call(t, mode)
}

// CallFunc is Call for a plain callable.
func (w *Worker) CallFunc(fn func(*Worker)) bool {
	return w.injector.CallFunc(fn)
}

// PostMessage posts an arbitrary message to this worker's mailbox. Ids
// task.TaskMessageID and task.DisposableTaskMessageID are reserved for
// the task injector; id 0 is reserved for the worker's own shutdown
// wake.
func (w *Worker) PostMessage(id uint32, arg1, arg2 uintptr) bool {
	return w.mailbox.Post(mailbox.Message{ID: id, Arg1: arg1, Arg2: arg2})
}

// HandleMessage implements mailbox.Handler: it dispatches task-injector
// traffic to the injector and everything else to the configured
// MessageHandler, if any.
func (w *Worker) HandleMessage(msg mailbox.Message) {
	switch {
	case msg.ID == wakeMessageID:
		return
	case task.Owns(msg.ID):
		w.injector.HandleMessage(msg)
	case w.messageHandler != nil:
		w.messageHandler(msg)
	}
}

// Load returns the worker's busyness percentage (0-100) at the given
// horizon. Lock-free; safe from any goroutine.
func (w *Worker) Load(h loadmeter.Horizon) uint8 {
	return w.loadMeter.Percentage(h)
}

// Start spawns a new goroutine to run the worker's loop and returns
// immediately. Returns false if the worker was already started.
func (w *Worker) Start() bool {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return false
	}
	w.started = true
	w.mu.Unlock()

	go w.Run()
	return true
}

// Run executes the worker's loop on the calling goroutine, which
// becomes the worker's owning thread for the rest of its life. It
// returns once the loop has exited and teardown has completed.
func (w *Worker) Run() {
	w.mu.Lock()
	if State(w.state.Load()) != Stopped {
		w.mu.Unlock()
		panic("reactor: worker already running")
	}
	w.started = true
	w.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.runnerGoroutine.Store(goroutineID())
	registerCurrent(w)
	defer unregisterCurrent()

	w.loadMeter.Reset(time.Now())
	w.state.Store(int32(Idle))

	if w.PreRun != nil && !w.PreRun(w) {
		w.state.Store(int32(Stopped))
		close(w.doneCh)
		return
	}

	w.loop()
	w.teardown()

	w.state.Store(int32(Stopped))
	if w.PostRun != nil {
		w.PostRun(w)
	}
	close(w.doneCh)
}

func (w *Worker) loop() {
	for {
		w.state.Store(int32(Polling))

		now := time.Now()
		w.loadMeter.AboutToWait(now)
		ready, err := w.poller.Wait(pollTimeout)
		now = time.Now()
		w.loadMeter.AboutToWork(now)

		atomic.AddUint64(&w.polls, 1)
		w.batchSizes.Observe(len(ready))

		if err != nil {
			w.logger.Error("poll wait failed", "err", err.Error())
		}

		if len(ready) == 0 {
			w.state.Store(int32(ZProcessing))
		} else {
			w.state.Store(int32(Processing))
			for _, r := range ready {
				w.dispatch(r)
			}
			atomic.AddUint64(&w.events, uint64(len(ready)))
		}

		if w.EpollTick != nil {
			w.EpollTick(w)
		}

		if w.ShouldShutdown() {
			break
		}
	}
}

// dispatch invokes p.HandlePollEvents for one ready descriptor,
// tolerating a fd that was removed earlier in the same batch (such
// events are dropped silently) and containing a handler panic to this
// one iteration, logging once per occurrence and continuing the loop.
func (w *Worker) dispatch(r netpoll.Ready) {
	p, ok := w.pollables[r.Fd]
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("handler panic", "fd", r.Fd, "recover", rec)
		}
	}()
	start := time.Now()
	p.HandlePollEvents(w, r.Event, PollContext)
	w.execTimes.Observe(time.Since(start).Milliseconds())
}

func (w *Worker) teardown() {
	w.mailbox.Deliver()
	w.injector.DiscardPending()
	w.timers.DiscardAll()

	w.mailbox.Detach()
	if err := w.mailbox.Close(); err != nil {
		w.logger.Debug("mailbox close failed", "err", err.Error())
	}
	if err := w.timerFD.Close(); err != nil {
		w.logger.Debug("timerfd close failed", "err", err.Error())
	}
	if err := w.poller.Close(); err != nil {
		w.logger.Debug("poller close failed", "err", err.Error())
	}
}

// Shutdown requests the worker's loop exit at the next opportunity.
// Safe from any goroutine, signal-safe when the mailbox uses the pipe
// transport.
func (w *Worker) Shutdown() {
	w.stopFlag.Store(true)
	w.mailbox.Post(mailbox.Message{ID: wakeMessageID})
}

// ShouldShutdown reports whether Shutdown has been called.
func (w *Worker) ShouldShutdown() bool {
	return w.stopFlag.Load()
}

// Join blocks until the worker's loop has exited and teardown has
// completed.
func (w *Worker) Join() {
	<-w.doneCh
}
