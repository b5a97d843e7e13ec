// Package core defines the shared language of the pg workbench.
//
// This package contains:
//   - Domain entities (DatabaseProfile, SessionInfo, QueryLogEntry, SchemaGraph)
//   - Service interfaces (Adapter, ProfileStore, QueryLogStore)
//   - The error taxonomy surfaced to every shell (Error, ErrorKind)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
