package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/config"
)

func TestValidate_MissingDatasetSource(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  keys: [frases]
persistence:
  cache_path: cache.db
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing dataset source, got nil")
	}
	if !strings.Contains(err.Error(), "dir or base_url") {
		t.Errorf("error should mention dir or base_url, got: %v", err)
	}
}

func TestValidate_DatasetSourcesConflict(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  dir: ./datasets
  base_url: https://cdn.example.com/datasets
  keys: [frases]
persistence:
  cache_path: cache.db
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for conflicting dataset sources, got nil")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("error should mention mutually exclusive, got: %v", err)
	}
}

func TestValidate_EmptyDatasetKeys(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  dir: ./datasets
persistence:
  cache_path: cache.db
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing dataset keys, got nil")
	}
	if !strings.Contains(err.Error(), "at least one dataset") {
		t.Errorf("error should mention dataset keys, got: %v", err)
	}
}

func TestValidate_DuplicateDatasetKeys(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  dir: ./datasets
  keys:
    - frases
    - palavras
    - frases
persistence:
  cache_path: cache.db
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate dataset keys, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_MissingCachePath(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  dir: ./datasets
  keys: [frases]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing cache_path, got nil")
	}
	if !strings.Contains(err.Error(), "cache_path") {
		t.Errorf("error should mention cache_path, got: %v", err)
	}
}

func TestValidate_NegativeOpTimeout(t *testing.T) {
	t.Parallel()
	yaml := `
datasets:
  dir: ./datasets
  keys: [frases]
persistence:
  cache_path: cache.db
  op_timeout: -1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative op_timeout, got nil")
	}
	if !strings.Contains(err.Error(), "op_timeout") {
		t.Errorf("error should mention op_timeout, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
datasets:
  keys: []
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "cache_path") {
		t.Errorf("error should mention cache_path, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	if !slices.Contains(config.ValidProviderNames["tts"], "google") {
		t.Error("ValidProviderNames[\"tts\"] should contain \"google\"")
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "deepgram") {
		t.Error("ValidProviderNames[\"stt\"] should contain \"deepgram\"")
	}
}
