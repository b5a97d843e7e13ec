// Package sqlserver provides a Microsoft SQL Server engine adapter.
//
// This file registers the SQL Server adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/sqlserver"
package sqlserver

import (
	"log/slog"

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
)

func init() {
	adapter.Register("sqlserver", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
