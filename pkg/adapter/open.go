package adapter

import (
	"context"
	"log/slog"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Open decodes the profile credentials, builds the registered adapter and
// connects it. Decoding and lookup failures are InvalidProfile errors and
// connect failures are Connection errors; only the latter are worth retrying.
func Open(ctx context.Context, p *core.DatabaseProfile, logger *slog.Logger) (core.Adapter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := DecodeCredentials(p.Credentials)
	if err != nil {
		return nil, core.WrapError(core.KindInvalidProfile, p.Name, err, "invalid credentials")
	}
	a, err := NewAdapter(cfg, logger.With(slog.String("adapter", cfg.Type)))
	if err != nil {
		return nil, core.WrapError(core.KindInvalidProfile, p.Name, err, "invalid credentials")
	}
	if err := a.Connect(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, core.WrapError(core.KindConnection, p.Name, err, "connect failed")
	}
	return a, nil
}
