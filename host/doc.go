// Package host provides the script-host runtime: it loads compiled script
// modules, binds script and native functions into one handle table and
// dispatches calls across the boundary through pooled execution contexts.
//
// A Runtime is the application context. It owns the module list, the
// binding table, the shared global store, the timeout watchdog and the
// garbage-collection scheduler, each behind its own lock. Calls are issued
// from a Thread, which owns a fixed-depth pool of reusable contexts and must
// be driven from one goroutine at a time.
//
// Typical use:
//
//	rt, err := host.New(ctx, host.WithRuntimeOptions(entities.WithScriptsDir("scripts")))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	if err := rt.LoadScript(ctx, "combat"); err != nil {
//	    return err
//	}
//	attack := rt.Bind("combat", "Attack", "int Attack(uint,uint)", false)
//
//	th := rt.NewThread()
//	defer th.Close()
//	damage, err := th.Call(attack, "player attack", 5, 7)
//
// Native libraries are WebAssembly modules addressed by a ".wasm" target
// name; functions of the host function registry are addressed by "@host".
package host
