package host

import (
	"context"
	"sync"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/log"
)

var (
	_ ports.SharedGlobal = (*sharedGlobal)(nil)
	_ ports.NativeHooks  = (*Runtime)(nil)
)

// sharedGlobal is a host-owned variable declared by a globalvar pragma.
type sharedGlobal struct {
	value entities.Value
	name  string
	decl  string
	typ   entities.TypeRef
	mu    sync.RWMutex
}

func (g *sharedGlobal) Name() string { return g.name }

func (g *sharedGlobal) Type() entities.TypeRef { return g.typ }

func (g *sharedGlobal) Load() entities.Value {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Store coerces v to the declared type.
func (g *sharedGlobal) Store(v entities.Value) error {
	cv, err := v.Coerce(g.typ)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.value = cv
	g.mu.Unlock()
	return nil
}

// globalStore holds the globals and data blocks declared by pragmas.
// Definitions are never removed: every realm and library may refer to them.
type globalStore struct {
	globals map[string]*sharedGlobal
	blocks  map[string][]byte
	natives map[string]string
	mu      sync.RWMutex
}

func newGlobalStore() *globalStore {
	return &globalStore{
		globals: make(map[string]*sharedGlobal),
		blocks:  make(map[string][]byte),
		natives: make(map[string]string),
	}
}

func (s *globalStore) global(name string) (*sharedGlobal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.globals[name]
	return g, ok
}

func (s *globalStore) block(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[name]
	return b, ok
}

// Global implements ports.NativeHooks.
func (r *Runtime) Global(name string) (ports.SharedGlobal, bool) {
	g, ok := r.globals.global(name)
	if !ok {
		return nil, false
	}
	return g, true
}

// DataBlock implements ports.NativeHooks.
func (r *Runtime) DataBlock(name string) ([]byte, bool) {
	return r.globals.block(name)
}

// Log implements ports.NativeHooks. Payloads are log envelopes written by
// the library; anything else is logged as plain text.
func (r *Runtime) Log(ctx context.Context, library string, payload []byte) {
	log.Replay(ctx, r.logger, library, payload)
}

// SharedGlobal returns the current value of a pragma-declared global.
func (r *Runtime) SharedGlobal(name string) (entities.Value, bool) {
	g, ok := r.globals.global(name)
	if !ok {
		return entities.Void, false
	}
	return g.Load(), true
}

// SetSharedGlobal stores into a pragma-declared global.
func (r *Runtime) SetSharedGlobal(name string, v entities.Value) error {
	g, ok := r.globals.global(name)
	if !ok {
		return &UnknownGlobalError{Name: name}
	}
	return g.Store(v)
}

// UnknownGlobalError is returned for globals no pragma declared.
type UnknownGlobalError struct {
	Name string
}

func (e *UnknownGlobalError) Error() string {
	return "unknown shared global " + e.Name
}
