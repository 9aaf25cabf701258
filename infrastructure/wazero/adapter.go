package wazero

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// DefaultHostModule is the import module name native libraries link against.
const DefaultHostModule = "scripthost"

// DefaultMaxLogSize limits a single log_message payload read from guest memory.
const DefaultMaxLogSize = 64 * 1024

// AdapterConfig holds configuration for the host module.
type AdapterConfig struct {
	// Hooks serve shared globals, data blocks and log messages. Nil hooks
	// make every host import a no-op that reports failure.
	Hooks ports.NativeHooks

	// ModuleName is the host module name (default: "scripthost").
	ModuleName string

	// MaxLogSize limits the size of log payloads read from guest memory.
	MaxLogSize uint32

	// CustomHandlers adds further host imports.
	CustomHandlers []CustomHandler
}

// CustomHandler is an extra host import with its raw wazero signature.
type CustomHandler struct {
	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// Name is the exported function name.
	Name string

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// AdapterOption configures the host module.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "scripthost").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxLogSize sets the maximum log payload read from guest memory.
func WithMaxLogSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxLogSize = size
	}
}

// WithHooks sets the host services exposed to libraries.
func WithHooks(hooks ports.NativeHooks) AdapterOption {
	return func(c *AdapterConfig) {
		c.Hooks = hooks
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: DefaultHostModule,
		MaxLogSize: DefaultMaxLogSize,
	}
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

// RegisterHostModule instantiates the host module in runtime. Names are
// passed by guests as packed i64 pointer+length values:
//
//	log_message(msg i64)
//	global_get_i64(name i64) i64      global_set_i64(name i64, v i64)
//	global_get_f64(name i64) f64      global_set_f64(name i64, v f64)
//	data_size(name i64) i32
//	data_read(name i64, offset i32, dst i32, n i32) i32
//	data_write(name i64, offset i32, src i32, n i32) i32
//
// data_read and data_write return the number of bytes copied, or -1.
func RegisterHostModule(ctx context.Context, runtime wazero.Runtime, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &hostModule{cfg: cfg}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	export := func(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
		builder.NewFunctionBuilder().WithGoModuleFunction(fn, params, results).Export(name)
	}

	export("log_message", h.logMessage, []api.ValueType{i64}, nil)
	export("global_get_i64", h.globalGetI64, []api.ValueType{i64}, []api.ValueType{i64})
	export("global_set_i64", h.globalSetI64, []api.ValueType{i64, i64}, nil)
	export("global_get_f64", h.globalGetF64, []api.ValueType{i64}, []api.ValueType{f64})
	export("global_set_f64", h.globalSetF64, []api.ValueType{i64, f64}, nil)
	export("data_size", h.dataSize, []api.ValueType{i64}, []api.ValueType{i32})
	export("data_read", h.dataRead, []api.ValueType{i64, i32, i32, i32}, []api.ValueType{i32})
	export("data_write", h.dataWrite, []api.ValueType{i64, i32, i32, i32}, []api.ValueType{i32})

	for _, ch := range cfg.CustomHandlers {
		export(ch.Name, ch.Handler, ch.ParamTypes, ch.ResultTypes)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

type hostModule struct {
	cfg AdapterConfig
}

func (h *hostModule) readString(ctx context.Context, mod api.Module, packed uint64, limit uint32) (string, bool) {
	ptr, length := unpackPtrLen(packed)
	if limit > 0 && length > limit {
		slog.WarnContext(ctx, "wazero: guest payload too large", "library", GetLibraryName(ctx, mod), "size", length, "max", limit)
		return "", false
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		slog.ErrorContext(ctx, "wazero: failed to read guest memory", "library", GetLibraryName(ctx, mod), "ptr", ptr, "length", length)
		return "", false
	}
	return string(data), true
}

func (h *hostModule) global(ctx context.Context, mod api.Module, packed uint64) (ports.SharedGlobal, bool) {
	if h.cfg.Hooks == nil {
		return nil, false
	}
	name, ok := h.readString(ctx, mod, packed, 1024)
	if !ok {
		return nil, false
	}
	g, ok := h.cfg.Hooks.Global(name)
	if !ok {
		slog.WarnContext(ctx, "wazero: unknown shared global", "library", GetLibraryName(ctx, mod), "global", name)
	}
	return g, ok
}

func (h *hostModule) dataBlock(ctx context.Context, mod api.Module, packed uint64) ([]byte, bool) {
	if h.cfg.Hooks == nil {
		return nil, false
	}
	name, ok := h.readString(ctx, mod, packed, 1024)
	if !ok {
		return nil, false
	}
	block, ok := h.cfg.Hooks.DataBlock(name)
	if !ok {
		slog.WarnContext(ctx, "wazero: unknown data block", "library", GetLibraryName(ctx, mod), "block", name)
	}
	return block, ok
}

func (h *hostModule) logMessage(ctx context.Context, mod api.Module, stack []uint64) {
	if h.cfg.Hooks == nil {
		return
	}
	ptr, length := unpackPtrLen(stack[0])
	if length > h.cfg.MaxLogSize {
		slog.WarnContext(ctx, "wazero: log message too large", "library", GetLibraryName(ctx, mod), "size", length)
		return
	}
	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	h.cfg.Hooks.Log(ctx, GetLibraryName(ctx, mod), append([]byte(nil), payload...))
}

func (h *hostModule) globalGetI64(ctx context.Context, mod api.Module, stack []uint64) {
	g, ok := h.global(ctx, mod, stack[0])
	if !ok {
		stack[0] = 0
		return
	}
	stack[0] = uint64(g.Load().Int()) //nolint:gosec // G115: two's complement passes through i64
}

func (h *hostModule) globalSetI64(ctx context.Context, mod api.Module, stack []uint64) {
	g, ok := h.global(ctx, mod, stack[0])
	if !ok {
		return
	}
	v, err := entities.IntValue(int64(stack[1])).Coerce(g.Type()) //nolint:gosec // G115: two's complement passes through i64
	if err == nil {
		err = g.Store(v)
	}
	if err != nil {
		slog.WarnContext(ctx, "wazero: global store failed", "library", GetLibraryName(ctx, mod), "global", g.Name(), "error", err)
	}
}

func (h *hostModule) globalGetF64(ctx context.Context, mod api.Module, stack []uint64) {
	g, ok := h.global(ctx, mod, stack[0])
	if !ok {
		stack[0] = api.EncodeF64(0)
		return
	}
	stack[0] = api.EncodeF64(g.Load().Float())
}

func (h *hostModule) globalSetF64(ctx context.Context, mod api.Module, stack []uint64) {
	g, ok := h.global(ctx, mod, stack[0])
	if !ok {
		return
	}
	v, err := entities.FloatValue(api.DecodeF64(stack[1])).Coerce(g.Type())
	if err == nil {
		err = g.Store(v)
	}
	if err != nil {
		slog.WarnContext(ctx, "wazero: global store failed", "library", GetLibraryName(ctx, mod), "global", g.Name(), "error", err)
	}
}

func (h *hostModule) dataSize(ctx context.Context, mod api.Module, stack []uint64) {
	block, ok := h.dataBlock(ctx, mod, stack[0])
	if !ok {
		stack[0] = api.EncodeI32(-1)
		return
	}
	stack[0] = api.EncodeI32(int32(len(block))) //nolint:gosec // G115: blocks are sized by pragma
}

func (h *hostModule) dataRead(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(h.copyData(ctx, mod, stack, false))
}

func (h *hostModule) dataWrite(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(h.copyData(ctx, mod, stack, true))
}

func (h *hostModule) copyData(ctx context.Context, mod api.Module, stack []uint64, write bool) int32 {
	block, ok := h.dataBlock(ctx, mod, stack[0])
	if !ok {
		return -1
	}
	offset := api.DecodeU32(stack[1])
	guestPtr := api.DecodeU32(stack[2])
	n := api.DecodeU32(stack[3])
	if uint64(offset)+uint64(n) > uint64(len(block)) {
		return -1
	}
	guest, ok := mod.Memory().Read(guestPtr, n)
	if !ok {
		return -1
	}
	if write {
		copy(block[offset:offset+n], guest)
	} else {
		copy(guest, block[offset:offset+n])
	}
	return int32(n) //nolint:gosec // G115: bounded by block size
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
