package goja

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.ScriptEngine = (*Engine)(nil)

// FormatVersion stamps persisted units. Bump it whenever the unit layout or
// the preprocessing rules change.
const FormatVersion uint32 = 0x676a0002

type engineConfig struct {
	logger           *slog.Logger
	maxCallStackSize int
	strict           bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:           slog.Default(),
		maxCallStackSize: 1024,
	}
}

// Option configures the Engine.
type Option func(*engineConfig)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrict compiles every module in strict mode.
func WithStrict(strict bool) Option {
	return func(c *engineConfig) {
		c.strict = strict
	}
}

// WithMaxCallStackSize bounds script recursion per runtime.
func WithMaxCallStackSize(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.maxCallStackSize = n
		}
	}
}

type native struct {
	fn   ports.NativeFunc
	decl entities.Declaration
}

// Engine compiles modules and creates realms.
type Engine struct {
	collector *Collector
	onMessage func(entities.EngineMessage)
	functions map[entities.FuncID]*function
	globals   map[string]ports.SharedGlobal
	blocks    map[string][]byte
	natives   map[string]native
	order     []string
	config    engineConfig
	nextID    atomic.Uint64
	mu        sync.RWMutex
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		config:    cfg,
		collector: NewCollector(),
		functions: make(map[entities.FuncID]*function),
		globals:   make(map[string]ports.SharedGlobal),
		blocks:    make(map[string][]byte),
		natives:   make(map[string]native),
	}
}

func (e *Engine) Version() uint32 { return FormatVersion }

// SetMessageCallback installs the diagnostic callback used during compilation.
func (e *Engine) SetMessageCallback(cb func(entities.EngineMessage)) {
	e.mu.Lock()
	e.onMessage = cb
	e.mu.Unlock()
}

func (e *Engine) message(msg entities.EngineMessage) {
	e.mu.RLock()
	cb := e.onMessage
	e.mu.RUnlock()
	if cb != nil {
		cb(msg)
		return
	}
	level := slog.LevelInfo
	switch msg.Type {
	case entities.MessageWarning:
		level = slog.LevelWarn
	case entities.MessageError:
		level = slog.LevelError
	}
	e.config.logger.Log(context.Background(), level, msg.Message, "section", msg.Section, "row", msg.Row, "col", msg.Col)
}

// Compile parses and compiles a preprocessed unit. Syntax errors are
// reported through the message callback with their positions.
func (e *Engine) Compile(name string, unit []byte) (ports.ScriptModule, error) {
	prg, err := parser.ParseFile(nil, name, string(unit), 0)
	if err != nil {
		var list parser.ErrorList
		if errors.As(err, &list) {
			for _, perr := range list {
				e.message(entities.EngineMessage{
					Section: name,
					Message: perr.Message,
					Row:     perr.Position.Line,
					Col:     perr.Position.Column,
					Type:    entities.MessageError,
				})
			}
		} else {
			e.message(entities.EngineMessage{Section: name, Message: err.Error(), Type: entities.MessageError})
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	program, err := goja.CompileAST(prg, e.config.strict)
	if err != nil {
		e.message(entities.EngineMessage{Section: name, Message: err.Error(), Type: entities.MessageError})
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	m := &Module{
		name:      name,
		program:   program,
		functions: make(map[string]*function),
	}
	discover(m, prg, func(msg string) {
		e.message(entities.EngineMessage{Section: name, Message: msg, Type: entities.MessageWarning})
	})

	e.mu.Lock()
	for _, fn := range m.functions {
		fn.id = entities.FuncID(e.nextID.Add(1))
		e.functions[fn.id] = fn
	}
	e.mu.Unlock()

	return m, nil
}

// Discard releases a module. Realms drop their instance of it on next use.
func (e *Engine) Discard(module ports.ScriptModule) {
	m, ok := module.(*Module)
	if !ok || m.discarded.Swap(true) {
		return
	}
	e.mu.Lock()
	for _, fn := range m.functions {
		delete(e.functions, fn.id)
	}
	e.mu.Unlock()
}

func (e *Engine) lookup(id entities.FuncID) (*function, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.functions[id]
	return fn, ok
}

// NewRealm creates an empty realm.
func (e *Engine) NewRealm() ports.ScriptRealm {
	return &Realm{engine: e, instances: make(map[*Module]*instance)}
}

// DefineGlobal registers a host-owned global.
func (e *Engine) DefineGlobal(global ports.SharedGlobal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := global.Name()
	if err := e.checkFreeLocked(name, "global"); err != nil {
		return err
	}
	e.globals[name] = global
	e.order = append(e.order, name)
	return nil
}

// DefineDataBlock exposes data to scripts as an ArrayBuffer named name.
// The slice is shared, not copied.
func (e *Engine) DefineDataBlock(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFreeLocked(name, "data block"); err != nil {
		return err
	}
	e.blocks[name] = data
	e.order = append(e.order, name)
	return nil
}

// DefineNative exposes fn to scripts as a global function named after decl.
func (e *Engine) DefineNative(decl entities.Declaration, fn ports.NativeFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFreeLocked(decl.Name, "native"); err != nil {
		return err
	}
	e.natives[decl.Name] = native{decl: decl, fn: fn}
	e.order = append(e.order, decl.Name)
	return nil
}

func (e *Engine) checkFreeLocked(name, what string) error {
	if name == "" {
		return fmt.Errorf("%s name is empty", what)
	}
	_, g := e.globals[name]
	_, b := e.blocks[name]
	_, n := e.natives[name]
	if g || b || n {
		return fmt.Errorf("%s %s: name already defined", what, name)
	}
	return nil
}

// Collector returns the process collector.
func (e *Engine) Collector() ports.Collector { return e.collector }

// install defines every host global, data block and native in rt.
func (e *Engine) install(rt *goja.Runtime, realm *Realm) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	global := rt.GlobalObject()
	for _, name := range e.order {
		if g, ok := e.globals[name]; ok {
			getter := rt.ToValue(func(goja.FunctionCall) goja.Value {
				return toJS(rt, g.Load())
			})
			setter := rt.ToValue(func(call goja.FunctionCall) goja.Value {
				if err := g.Store(fromJS(call.Argument(0), g.Type())); err != nil {
					panic(rt.NewTypeError("%s: %v", g.Name(), err))
				}
				return goja.Undefined()
			})
			if err := global.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
				return fmt.Errorf("define global %s: %w", name, err)
			}
			continue
		}
		if data, ok := e.blocks[name]; ok {
			if err := rt.Set(name, rt.NewArrayBuffer(data)); err != nil {
				return fmt.Errorf("define data block %s: %w", name, err)
			}
			continue
		}
		if n, ok := e.natives[name]; ok {
			if err := rt.Set(name, nativeFunc(rt, realm, n)); err != nil {
				return fmt.Errorf("define native %s: %w", name, err)
			}
		}
	}
	return nil
}

func nativeFunc(rt *goja.Runtime, realm *Realm, n native) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]entities.Value, len(n.decl.Params))
		for i, p := range n.decl.Params {
			args[i] = fromJS(call.Argument(i), p)
		}
		ret, err := n.fn(realm.context(), args)
		if err != nil {
			panic(rt.NewGoError(fmt.Errorf("%s: %w", n.decl.Name, err)))
		}
		if n.decl.Return.Kind() == entities.KindVoid {
			return goja.Undefined()
		}
		return toJS(rt, ret)
	}
}
