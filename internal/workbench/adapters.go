package workbench

// Engines available to profiles.
import (
	_ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/duckdb"
	_ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/mysql"
	_ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/postgres"
	_ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/sqlite"
	_ "github.com/A-SunsetMkt-Forks/pg/pkg/adapters/sqlserver"
)
