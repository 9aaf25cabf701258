package host

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// Pragma tags handled by every runtime.
const (
	PragmaGlobalVar = "globalvar"
	PragmaDataBlock = "datablock"
	PragmaBindFunc  = "bindfunc"
)

// maxDataBlockSize bounds a single datablock pragma.
const maxDataBlockSize = 64 << 20

func (r *Runtime) defaultPragmaHandlers() []ports.PragmaHandler {
	return []ports.PragmaHandler{
		&globalVarHandler{store: r.globals},
		&dataBlockHandler{store: r.globals},
		&bindFuncHandler{rt: r},
	}
}

// handlePragma dispatches one pragma to its handler. It is the callback
// given to the preprocessor and the replay path of cached modules.
func (r *Runtime) handlePragma(tag, text string) error {
	h, ok := r.pragmas[tag]
	if !ok {
		r.logger.Warn("unknown pragma ignored", "pragma", tag, "text", text)
		return nil
	}
	if err := h.Handle(text, r.engine); err != nil {
		return fmt.Errorf("pragma %s %q: %w", tag, text, err)
	}
	return nil
}

var globalTypes = map[string]bool{
	"bool": true, "string": true, "float": true, "double": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "int": true,
	"uint8": true, "uint16": true, "uint32": true, "uint64": true, "uint": true,
}

// globalVarHandler handles "<type> <name> [= <literal>]".
type globalVarHandler struct {
	store *globalStore
}

func (h *globalVarHandler) Tag() string { return PragmaGlobalVar }

func (h *globalVarHandler) Handle(text string, engine ports.ScriptEngine) error {
	decl, literal, hasInit := strings.Cut(text, "=")
	fields := strings.Fields(decl)
	if len(fields) != 2 {
		return errors.New(`expected "<type> <name> [= <value>]"`)
	}
	typeName, name := fields[0], fields[1]
	if !globalTypes[typeName] {
		return fmt.Errorf("unsupported global type %s", typeName)
	}
	typ := entities.TypeRef{Name: typeName}
	value := zeroValue(typ)
	if hasInit {
		v, err := parseLiteral(strings.TrimSpace(literal), typ)
		if err != nil {
			return fmt.Errorf("global %s: %w", name, err)
		}
		value = v
	}
	normalized := typeName + " " + name
	if hasInit {
		normalized += " = " + strings.TrimSpace(literal)
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if existing, ok := h.store.globals[name]; ok {
		if existing.decl == normalized {
			return nil
		}
		return fmt.Errorf("global %s already declared as %q", name, existing.decl)
	}
	g := &sharedGlobal{name: name, decl: normalized, typ: typ, value: value}
	if err := engine.DefineGlobal(g); err != nil {
		return err
	}
	h.store.globals[name] = g
	return nil
}

func zeroValue(t entities.TypeRef) entities.Value {
	switch t.Kind() {
	case entities.KindBool:
		return entities.BoolValue(false)
	case entities.KindInt:
		return entities.IntValue(0)
	case entities.KindUint:
		return entities.UintValue(0)
	case entities.KindFloat:
		return entities.FloatValue(0)
	default:
		return entities.StringValue("")
	}
}

func parseLiteral(s string, t entities.TypeRef) (entities.Value, error) {
	switch t.Kind() {
	case entities.KindBool:
		b, err := strconv.ParseBool(s)
		return entities.BoolValue(b), err
	case entities.KindInt:
		i, err := strconv.ParseInt(s, 0, 64)
		return entities.IntValue(i), err
	case entities.KindUint:
		u, err := strconv.ParseUint(s, 0, 64)
		return entities.UintValue(u), err
	case entities.KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "f"), 64)
		return entities.FloatValue(f), err
	default:
		if unquoted, err := strconv.Unquote(s); err == nil {
			s = unquoted
		}
		return entities.StringValue(s), nil
	}
}

// dataBlockHandler handles "<name> <size>".
type dataBlockHandler struct {
	store *globalStore
}

func (h *dataBlockHandler) Tag() string { return PragmaDataBlock }

func (h *dataBlockHandler) Handle(text string, engine ports.ScriptEngine) error {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return errors.New(`expected "<name> <size>"`)
	}
	name := fields[0]
	size, err := strconv.Atoi(fields[1])
	if err != nil || size <= 0 || size > maxDataBlockSize {
		return fmt.Errorf("data block %s: invalid size %q", name, fields[1])
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if existing, ok := h.store.blocks[name]; ok {
		if len(existing) == size {
			return nil
		}
		return fmt.Errorf("data block %s already declared with size %d", name, len(existing))
	}
	block := make([]byte, size)
	if err := engine.DefineDataBlock(name, block); err != nil {
		return err
	}
	h.store.blocks[name] = block
	return nil
}

// bindFuncHandler handles "<declaration> -> <library> <symbol>".
type bindFuncHandler struct {
	rt *Runtime
}

func (h *bindFuncHandler) Tag() string { return PragmaBindFunc }

func (h *bindFuncHandler) Handle(text string, engine ports.ScriptEngine) error {
	declText, target, ok := strings.Cut(text, "->")
	fields := strings.Fields(target)
	if !ok || len(fields) != 2 {
		return errors.New(`expected "<declaration> -> <library> <symbol>"`)
	}
	decl, err := entities.ParseDeclaration(strings.TrimSpace(declText))
	if err != nil {
		return err
	}
	library, symbol := fields[0], fields[1]
	if !entities.IsNativeTarget(library) {
		return fmt.Errorf("%s is not a native library", library)
	}
	normalized := fmt.Sprintf("%s -> %s %s", decl, library, symbol)

	store := h.rt.globals
	if defined, err := store.nativeDefined(decl.Name, normalized); defined || err != nil {
		return err
	}
	// Resolve without the store lock: library init may read globals.
	call, err := h.rt.resolveNative(h.rt.ctx, library, symbol, decl)
	if err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if defined, err := store.nativeDefinedLocked(decl.Name, normalized); defined || err != nil {
		return err
	}
	nt := h.rt.nativeTarget(call.Address)
	if err := engine.DefineNative(decl, nt.call); err != nil {
		return err
	}
	store.natives[decl.Name] = normalized
	h.rt.logger.Debug("native function bound", "declaration", decl.String(), "library", library, "symbol", symbol)
	return nil
}

func (s *globalStore) nativeDefined(name, normalized string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nativeDefinedLocked(name, normalized)
}

// nativeDefinedLocked reports whether name is already bound. An identical
// definition is not an error.
func (s *globalStore) nativeDefinedLocked(name, normalized string) (bool, error) {
	existing, ok := s.natives[name]
	if !ok || existing == normalized {
		return ok, nil
	}
	return true, fmt.Errorf("function %s already bound as %q", name, existing)
}
