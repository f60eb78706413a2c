package config_test

import (
	"encoding/json"
	"testing"

	"github.com/rtolen/vairify-guard/internal/config"
)

func TestPrintServiceEnv(t *testing.T) {
	config := config.DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestGuardDefaults(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()

	if cfg.Guard.CheckInExtension.Minutes() != 30 {
		t.Errorf("unexpected check-in extension: %s", cfg.Guard.CheckInExtension)
	}
	if cfg.Guard.HoldThreshold.Seconds() != 3 {
		t.Errorf("unexpected hold threshold: %s", cfg.Guard.HoldThreshold)
	}
	if cfg.Guard.NotifyMaxAttempts != 3 {
		t.Errorf("unexpected notify attempts: %d", cfg.Guard.NotifyMaxAttempts)
	}
}
