package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// DecodeCredentials parses a profile's credentials blob into an adapter
// config. The blob is a JSON object; unknown keys land in Params.
func DecodeCredentials(blob []byte) (core.AdapterConfig, error) {
	var cfg core.AdapterConfig
	if len(blob) == 0 {
		return cfg, fmt.Errorf("credentials are empty")
	}

	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return cfg, fmt.Errorf("credentials are not a JSON object: %w", err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("credentials have no adapter type")
	}
	return cfg, nil
}

// EncodeCredentials serializes cfg into a credentials blob. Params are
// flattened back to the top level.
func EncodeCredentials(cfg core.AdapterConfig) ([]byte, error) {
	out := make(map[string]any, len(cfg.Params)+8)
	for k, v := range cfg.Params {
		out[k] = v
	}
	set := func(k string, v any, zero bool) {
		if !zero {
			out[k] = v
		}
	}
	set("type", cfg.Type, cfg.Type == "")
	set("path", cfg.Path, cfg.Path == "")
	set("host", cfg.Host, cfg.Host == "")
	set("port", cfg.Port, cfg.Port == 0)
	set("database", cfg.Database, cfg.Database == "")
	set("username", cfg.Username, cfg.Username == "")
	set("password", cfg.Password, cfg.Password == "")
	set("schema", cfg.Schema, cfg.Schema == "")
	set("options", cfg.Options, len(cfg.Options) == 0)
	return json.Marshal(out)
}

// ParseParams decodes cfg.Params into an adapter-specific struct.
func ParseParams(cfg core.AdapterConfig, out any) error {
	if len(cfg.Params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(cfg.Params)
}

// ValidateCredentials checks that blob decodes and names a registered adapter.
func ValidateCredentials(blob []byte) error {
	cfg, err := DecodeCredentials(blob)
	if err != nil {
		return core.WrapError(core.KindInvalidProfile, "", err, "invalid credentials")
	}
	if !IsRegistered(cfg.Type) {
		return core.WrapError(core.KindInvalidProfile, "", &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}, "invalid credentials")
	}
	return nil
}
