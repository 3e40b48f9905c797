package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged    bool
	NewLogLevel        LogLevel
	DatasetKeysChanged bool
	NewDatasetKeys     []string
	LocaleChanged      bool
	NewLocale          string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; server
// address, TLS, persistence, and speech provider changes require one.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Datasets.Keys, new.Datasets.Keys) {
		d.DatasetKeysChanged = true
		d.NewDatasetKeys = new.Datasets.Keys
	}

	if old.Datasets.Locale != new.Datasets.Locale {
		d.LocaleChanged = true
		d.NewLocale = new.Datasets.Locale
	}

	return d
}
