package host

import (
	"context"
	"sync"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/host/watchdog"
	"github.com/reglet-dev/scripthost/hostfuncs"
)

// MaxNativeArgs is the size of the native argument buffer of a context.
const MaxNativeArgs = 16

// labelSize bounds the call-site label kept for diagnostics.
const labelSize = 256

var (
	_ watchdog.Target        = (*Thread)(nil)
	_ hostfuncs.Synchronizer = (*Thread)(nil)
)

// slot is one pooled execution context.
type slot struct {
	ctx    ports.ScriptContext
	label  *hostfuncs.BoundedBuffer
	bound  entities.BoundFunction
	native *nativeTarget
	cancel context.CancelFunc
	broken error
	ret    entities.Value
	decl   entities.Declaration
	args   [MaxNativeArgs]entities.Value
	nargs  int
	state  entities.ContextState
	module string
}

func (s *slot) reset() {
	s.bound = nil
	s.native = nil
	s.cancel = nil
	s.broken = nil
	s.ret = entities.Void
	s.decl = entities.Declaration{}
	s.args = [MaxNativeArgs]entities.Value{}
	s.nargs = 0
	s.state = entities.StateUninitialized
	s.module = ""
	s.label.Reset()
}

// Thread owns a realm and a fixed-depth pool of execution contexts. A
// thread must be driven from one goroutine at a time; only
// SuspendExecuting may be called concurrently.
type Thread struct {
	rt    *Runtime
	realm ports.ScriptRealm
	pool  []*slot
	id    uint64
	depth int

	// syncDepth is this thread's hold on the synchronize section.
	syncDepth int
	locked    bool

	// mu guards the cancel funcs and states read by SuspendExecuting.
	mu sync.Mutex
}

// NewThread creates a thread with ContextStackSize pooled contexts.
func (r *Runtime) NewThread() *Thread {
	t := &Thread{
		rt:    r,
		id:    r.threadIDs.Add(1),
		realm: r.engine.NewRealm(),
		pool:  make([]*slot, r.config.Execution.ContextStackSize),
	}
	for i := range t.pool {
		t.pool[i] = &slot{
			ctx:   t.realm.NewContext(),
			label: hostfuncs.NewBoundedBuffer(labelSize),
		}
	}
	return t
}

// ID returns the thread's pool id, the key of its watchdog record.
func (t *Thread) ID() uint64 { return t.id }

// Depth returns the number of contexts in use.
func (t *Thread) Depth() int { return t.depth }

// Close releases the thread's realm. The thread must be idle.
func (t *Thread) Close() {
	t.realm.Close()
}

// SuspendExecuting asks every executing context of the thread to suspend.
// It does not wait for them.
func (t *Thread) SuspendExecuting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.pool {
		if s.state != entities.StateExecuting {
			continue
		}
		if _, script := s.bound.(entities.ScriptCall); script {
			s.ctx.Suspend()
		}
		if s.cancel != nil {
			s.cancel()
		}
	}
}

// enter runs before the outermost dispatch of the thread.
func (t *Thread) enter() {
	if !t.rt.config.Execution.Concurrent {
		t.rt.execMu.Lock()
		t.locked = true
	}
	t.rt.watchdog.Register(t.id, t)
}

// leave runs after the outermost dispatch of the thread completed.
func (t *Thread) leave() {
	t.rt.watchdog.Unregister(t.id)
	if t.syncDepth > 0 {
		t.rt.logger.Warn("synchronize section still held at end of call, releasing",
			"thread", t.id, "depth", t.syncDepth)
		t.syncDepth = 0
		t.rt.section.release()
	}
	if t.locked {
		t.locked = false
		t.rt.execMu.Unlock()
	}
}

// Synchronize enters the synchronize section. Entering is reentrant. It is
// a no-op when concurrent execution is disabled.
func (t *Thread) Synchronize() {
	if !t.rt.config.Execution.Concurrent {
		return
	}
	if t.syncDepth == 0 {
		t.rt.section.acquire(t.id)
	}
	t.syncDepth++
}

// Desynchronize leaves one level of the synchronize section.
func (t *Thread) Desynchronize() {
	if !t.rt.config.Execution.Concurrent {
		return
	}
	if t.syncDepth == 0 {
		t.rt.logger.Error("desynchronize without synchronize", "thread", t.id)
		return
	}
	t.syncDepth--
	if t.syncDepth == 0 {
		t.rt.section.release()
	}
}

// Resynchronize lets threads waiting on the section through, then
// re-enters it at the same depth. Without a hold it behaves like
// Synchronize.
func (t *Thread) Resynchronize() {
	if !t.rt.config.Execution.Concurrent {
		return
	}
	if t.syncDepth == 0 {
		t.Synchronize()
		return
	}
	t.rt.section.yield(t.id)
}

// section is the synchronize section shared by the threads of a runtime.
type section struct {
	cond    *sync.Cond
	owner   uint64
	waiters int
	taken   uint64
	mu      sync.Mutex
}

func newSection() *section {
	s := &section{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *section) acquire(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters++
	for s.owner != 0 {
		s.cond.Wait()
	}
	s.waiters--
	s.owner = id
	s.taken++
}

func (s *section) release() {
	s.mu.Lock()
	s.owner = 0
	s.mu.Unlock()
	s.cond.Broadcast()
}

// yield releases the section and takes it back once a thread that was
// waiting for it has had it.
func (s *section) yield(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark := s.taken
	s.owner = 0
	s.cond.Broadcast()
	for s.owner != 0 || s.taken == mark && s.waiters > 0 {
		s.cond.Wait()
	}
	s.owner = id
	s.taken++
}

type threadKey struct{}

// ThreadFrom returns the thread a host function is being called on, for
// nested dispatches back into scripts.
func ThreadFrom(ctx context.Context) (*Thread, bool) {
	t, ok := ctx.Value(threadKey{}).(*Thread)
	return t, ok
}
