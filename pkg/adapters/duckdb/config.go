package duckdb

// Params holds DuckDB-specific configuration.
// Parsed from the extra keys of the profile credentials using mapstructure.
type Params struct {
	// Extensions to load after connecting (e.g., "json", "parquet")
	Extensions []string `mapstructure:"extensions"`

	// Settings applied globally after connecting (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}
