// Package sqlite provides a SQLite engine adapter on the pure-Go modernc driver.
//
// This file registers the SQLite adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
)

func init() {
	adapter.Register("sqlite", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
