// Package wazero loads native libraries compiled to WebAssembly and runs
// them with the wazero runtime.
//
// Every library links against the "scripthost" host module, which serves
// shared globals, data blocks and log messages through ports.NativeHooks.
// Strings cross the boundary as packed i64 values (pointer in the upper 32
// bits, length in the lower 32 bits).
//
// # Basic Usage
//
//	loader, err := wazero.NewLoader(ctx, os.DirFS(scriptsDir),
//	    wazero.WithNativeHooks(hooks),
//	    wazero.WithCompilationCacheDir(cacheDir),
//	)
//	if err != nil {
//	    return err
//	}
//	defer loader.Close(ctx)
//
//	lib, err := loader.Load(ctx, "physics.wasm")
//	fn, ok := lib.Resolve("step")
//	ret, err := fn.Call(ctx, []entities.Value{entities.FloatValue(0.016)})
//
// # Cancellation
//
// The runtime closes a library instance when the context of a running call
// is done. The next call instantiates the library again and re-runs its
// "scripthost_init" export, so library memory does not survive a
// cancelled call.
package wazero
