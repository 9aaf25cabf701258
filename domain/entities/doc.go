// Package entities provides the core domain types of the script host:
// handles and bound functions, parsed declarations, boundary values,
// module records, execution-context states and runtime configuration.
package entities
