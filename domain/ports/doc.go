// Package ports defines the boundaries the script host consumes: the script
// engine, native libraries, the bytecode store, the preprocessor, the
// garbage collector and the configuration pipeline. Infrastructure adapters
// implement these interfaces.
package ports
