// Package hostfuncs holds the Go functions an embedding application exposes
// to scripts and native binds under the reserved "@host" library.
//
// A HandlerRegistry is built once from declarations and handlers, wrapped in
// a middleware chain, and is immutable afterwards. CoreBundle provides the
// built-in Synchronize, Desynchronize, Resynchronize and Log functions.
package hostfuncs
