// Package adapter provides the engine adapter plumbing shared by every
// concrete adapter: a database/sql base implementation, the factory registry
// and credential decoding.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
// The contract itself lives in pkg/core; the aliases below keep adapter
// implementations readable.
package adapter

import "github.com/A-SunsetMkt-Forks/pg/pkg/core"

type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.SchemaMetadata.
	Metadata = core.SchemaMetadata
)
