// Package goja adapts the goja ECMAScript VM to the ports.ScriptEngine
// contract.
//
// A compiled unit is the preprocessed JavaScript source. Compilation parses
// it once into a *goja.Program which is shared by every realm. Each realm
// owns one *goja.Runtime per module, created on first use, so a realm must
// only be driven from one goroutine at a time.
//
// Host definitions reach scripts as globals of every runtime created after
// they are made:
//
//   - shared globals become accessor properties backed by ports.SharedGlobal
//   - data blocks become ArrayBuffers over the host-owned byte slice
//   - natives become functions converting their arguments by declaration
//
// Suspension uses the runtime interrupt flag:
//
//	ctx.Prepare(id)
//	go func() { time.Sleep(d); ctx.Suspend() }()
//	state := ctx.Execute(context.Background()) // entities.StateSuspended
package goja
