// Package parser decodes runtime configuration documents.
//
// Both parsers decode over the configuration they are given, so a document
// only needs to name the settings it changes. Durations are written as
// strings such as "250ms" or "10s".
package parser
