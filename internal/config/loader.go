package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts": {"google"},
	"stt": {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Datasets
	if cfg.Datasets.Dir == "" && cfg.Datasets.BaseURL == "" {
		errs = append(errs, errors.New("datasets: one of dir or base_url is required"))
	}
	if cfg.Datasets.Dir != "" && cfg.Datasets.BaseURL != "" {
		errs = append(errs, errors.New("datasets: dir and base_url are mutually exclusive"))
	}
	if len(cfg.Datasets.Keys) == 0 {
		errs = append(errs, errors.New("datasets.keys must list at least one dataset"))
	}
	keysSeen := make(map[string]int, len(cfg.Datasets.Keys))
	for i, key := range cfg.Datasets.Keys {
		if key == "" {
			errs = append(errs, fmt.Errorf("datasets.keys[%d] is empty", i))
			continue
		}
		if prev, ok := keysSeen[key]; ok {
			errs = append(errs, fmt.Errorf("datasets.keys[%d] %q is a duplicate of datasets.keys[%d]", i, key, prev))
		}
		keysSeen[key] = i
	}

	// Persistence
	if cfg.Persistence.CachePath == "" {
		errs = append(errs, errors.New("persistence.cache_path is required"))
	}
	if cfg.Persistence.OpTimeout < 0 {
		errs = append(errs, fmt.Errorf("persistence.op_timeout %s must not be negative", cfg.Persistence.OpTimeout))
	}
	if cfg.Persistence.PostgresDSN == "" {
		slog.Warn("persistence.postgres_dsn is empty; progress lives only in the local cache")
	}

	// Speech provider name validation — warn for unknown provider names.
	validateProviderName("tts", cfg.Speech.TTS.Name)
	validateProviderName("stt", cfg.Speech.STT.Name)

	if cfg.Speech.TTS.Name != "" && cfg.Speech.TTS.APIKey == "" {
		errs = append(errs, fmt.Errorf("speech.tts.api_key is required for provider %q", cfg.Speech.TTS.Name))
	}
	if cfg.Speech.STT.Name != "" && cfg.Speech.STT.APIKey == "" {
		errs = append(errs, fmt.Errorf("speech.stt.api_key is required for provider %q", cfg.Speech.STT.Name))
	}
	if cfg.Speech.TTS.Name == "" {
		slog.Warn("speech.tts is not configured; audio playback will be unavailable")
	}
	if cfg.Speech.STT.Name == "" {
		slog.Warn("speech.stt is not configured; pronunciation drills will be unavailable")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
