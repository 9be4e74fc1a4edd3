package task

import (
	"sync"
	"time"

	"github.com/panlibin/reactor/internal/mailbox"
)

const (
	// TaskMessageID is the mailbox.Message.ID used for borrowed tasks.
	TaskMessageID uint32 = iota + 1
	// DisposableTaskMessageID is the mailbox.Message.ID used for
	// disposable tasks.
	DisposableTaskMessageID
)

// Owns reports whether id is one this Injector's HandleMessage handles,
// so a Worker sharing one mailbox between task dispatch and arbitrary
// post_message traffic knows which messages to forward here.
func Owns(id uint32) bool {
	return id == TaskMessageID || id == DisposableTaskMessageID
}

// Poster is the narrow capability Injector needs from whatever mailbox
// carries its wire messages. A Worker owns one Mailbox shared between
// its task Injector and its general arbitrary-message traffic; Poster
// lets Injector post into that shared mailbox without owning it.
type Poster interface {
	Post(msg mailbox.Message) bool
}

// Injector delivers Tasks and DisposableTasks for execution on a
// single worker's thread, built atop a shared Mailbox. Its
// HandleMessage method handles only the two message ids it owns;
// callers that share the same mailbox for other message ids dispatch
// to HandleMessage themselves and otherwise handle the rest.
//
// The mailbox.Message wire record carries two uintptr words and knows
// nothing about Go's garbage collector, so Injector does not smuggle
// raw pointers through it: each in-flight envelope is kept alive by an
// ordinary Go reference in the tasks map, and only an opaque handle
// travels through the mailbox. This trades one map operation per task
// for never having to reason about whether a GC-visible pointer
// round-tripped through a uintptr stays valid.
type Injector[W any] struct {
	worker         W
	mb             Poster
	isOwningThread func() bool
	onDispatch     func(queued time.Duration)

	mu    sync.Mutex
	tasks map[uint64]any
	nextH uint64
}

// NewInjector constructs an Injector bound to worker, posting through
// mb. isOwningThread must report whether the calling goroutine is the
// one that drives worker's event loop; the reactor package supplies
// this via its goroutine-identity lookup.
func NewInjector[W any](worker W, mb Poster, isOwningThread func() bool) *Injector[W] {
	return &Injector[W]{
		worker:         worker,
		mb:             mb,
		isOwningThread: isOwningThread,
		tasks:          make(map[uint64]any),
	}
}

// SetDispatchObserver registers fn to be called with the elapsed time
// between a task being enqueued and being dispatched, once per task
// actually delivered through HandleMessage. Inline AUTO executions
// never go through the mailbox and are not observed. fn may be nil to
// disable observation.
func (inj *Injector[W]) SetDispatchObserver(fn func(queued time.Duration)) {
	inj.onDispatch = fn
}

func (inj *Injector[W]) store(env any) uint64 {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.nextH++
	h := inj.nextH
	inj.tasks[h] = env
	return h
}

func (inj *Injector[W]) take(h uint64) any {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	env, ok := inj.tasks[h]
	if !ok {
		return nil
	}
	delete(inj.tasks, h)
	return env
}

// Execute posts t for execution on this injector's worker. With mode
// AUTO and the caller already on the owning thread, t
// runs inline and sem (if non-nil) is signaled before Execute returns;
// otherwise t is enqueued and runs on a future loop iteration. The
// return value reports whether t will run at all: true for inline
// execution or a successful post, false if the mailbox rejected the
// post (t will never run and sem will never be signaled).
func (inj *Injector[W]) Execute(t Task[W], sem Semaphore, mode Mode) bool {
	if mode == AUTO && inj.isOwningThread() {
		t.Execute(inj.worker)
		if sem != nil {
			sem.Signal()
		}
		return true
	}
	h := inj.store(&borrowedEnvelope[W]{task: t, sem: sem, queuedAt: time.Now()})
	if !inj.mb.Post(mailbox.Message{ID: TaskMessageID, Arg1: uintptr(h)}) {
		inj.take(h)
		return false
	}
	return true
}

// ExecuteFunc wraps fn as a one-shot DisposableTask and enqueues it.
func (inj *Injector[W]) ExecuteFunc(fn func(w W)) bool {
	return inj.ExecuteDisposable(funcTask[W]{fn: fn})
}

// ExecuteDisposable enqueues t with a reference count of one: a single
// worker will execute it once, after which it is released.
func (inj *Injector[W]) ExecuteDisposable(t DisposableTask[W]) bool {
	env := &disposableEnvelope[W]{task: t, queuedAt: time.Now()}
	env.remaining.Store(1)
	return inj.postDisposable(env)
}

func (inj *Injector[W]) postDisposable(env *disposableEnvelope[W]) bool {
	h := inj.store(env)
	if !inj.mb.Post(mailbox.Message{ID: DisposableTaskMessageID, Arg1: uintptr(h)}) {
		inj.take(h)
		env.finish()
		return false
	}
	return true
}

// Call is the synchronous helper: equivalent to Execute(t, sem, mode)
// followed by sem.Wait(), except that when the caller is already on
// the target worker's thread the semaphore is skipped entirely and t
// runs inline.
func (inj *Injector[W]) Call(t Task[W], mode Mode) bool {
	if inj.isOwningThread() {
		t.Execute(inj.worker)
		return true
	}
	sem := newChanSem()
	if !inj.Execute(t, sem, mode) {
		return false
	}
	sem.Wait()
	return true
}

// CallFunc is Call for a plain callable.
func (inj *Injector[W]) CallFunc(fn func(w W)) bool {
	return inj.Call(TaskFunc[W](fn), AUTO)
}

// HandleMessage implements mailbox.Handler: it is invoked on the
// worker's own thread once per drained message, in post order.
func (inj *Injector[W]) HandleMessage(msg mailbox.Message) {
	switch msg.ID {
	case TaskMessageID:
		env := inj.take(uint64(msg.Arg1))
		if env == nil {
			return
		}
		be := env.(*borrowedEnvelope[W])
		if inj.onDispatch != nil {
			inj.onDispatch(time.Since(be.queuedAt))
		}
		be.task.Execute(inj.worker)
		if be.sem != nil {
			be.sem.Signal()
		}
	case DisposableTaskMessageID:
		env := inj.take(uint64(msg.Arg1))
		if env == nil {
			return
		}
		de := env.(*disposableEnvelope[W])
		if inj.onDispatch != nil {
			inj.onDispatch(time.Since(de.queuedAt))
		}
		de.run(inj.worker)
	}
}

// DiscardPending drops every task and disposable task still sitting in
// this injector's table without executing it, for use during shutdown.
// Borrowed tasks still have their semaphore signaled, so a caller
// blocked in Call never hangs; disposable tasks still have their
// reference count decremented, so Release fires exactly once per
// target worker even when execution never happened.
func (inj *Injector[W]) DiscardPending() {
	inj.mu.Lock()
	pending := inj.tasks
	inj.tasks = make(map[uint64]any)
	inj.mu.Unlock()

	for _, env := range pending {
		switch e := env.(type) {
		case *borrowedEnvelope[W]:
			if e.sem != nil {
				e.sem.Signal()
			}
		case *disposableEnvelope[W]:
			e.finish()
		}
	}
}

// Broadcast posts t to every injector in injs with a shared reference
// count of len(injs): the underlying DisposableTask is released after
// exactly that many executions, regardless of how many of the posts
// actually succeed (a rejected post still counts down, since that
// worker will never run it). Returns the number of injectors the post
// succeeded against.
func Broadcast[W any](t DisposableTask[W], injs []*Injector[W]) int {
	env := &disposableEnvelope[W]{task: t, queuedAt: time.Now()}
	env.remaining.Store(int32(len(injs)))

	posted := 0
	for _, inj := range injs {
		if inj.postDisposable(env) {
			posted++
		}
	}
	return posted
}
