// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/privacy"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("FEDLEARN_INSTANCE_ID", "node-1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "node-1" {
		t.Errorf("InstanceID = %q, want node-1", cfg.InstanceID)
	}
	if cfg.FederationEnabled {
		t.Error("FederationEnabled default should be false")
	}
	if cfg.PrivacyLevel != privacy.Moderate {
		t.Errorf("PrivacyLevel = %v, want moderate default", cfg.PrivacyLevel)
	}
	if cfg.AggregationStrategy != types.FedAvg {
		t.Errorf("AggregationStrategy = %v, want fedavg default", cfg.AggregationStrategy)
	}
	if cfg.MaxParticipants != 10 || cfg.MinimumParticipants != 2 {
		t.Errorf("participant bounds = [%d,%d], want [2,10]", cfg.MinimumParticipants, cfg.MaxParticipants)
	}
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("FEDLEARN_INSTANCE_ID", "node-2")
	t.Setenv("FEDLEARN_FEDERATION_ENABLED", "true")
	t.Setenv("FEDLEARN_PRIVACY_LEVEL", "strict")
	t.Setenv("FEDLEARN_AGGREGATION_STRATEGY", "secure_agg")
	t.Setenv("FEDLEARN_MAX_PARTICIPANTS", "5")
	t.Setenv("FEDLEARN_MINIMUM_PARTICIPANTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.FederationEnabled {
		t.Error("FederationEnabled should be true")
	}
	if cfg.PrivacyLevel != privacy.Strict {
		t.Errorf("PrivacyLevel = %v, want strict", cfg.PrivacyLevel)
	}
	if cfg.AggregationStrategy != types.SecureAgg {
		t.Errorf("AggregationStrategy = %v, want secure_agg", cfg.AggregationStrategy)
	}
	if cfg.MaxParticipants != 5 || cfg.MinimumParticipants != 3 {
		t.Errorf("participant bounds = [%d,%d], want [3,5]", cfg.MinimumParticipants, cfg.MaxParticipants)
	}
}

func TestLoadRejectsUnknownPrivacyLevel(t *testing.T) {
	t.Setenv("FEDLEARN_INSTANCE_ID", "node-1")
	t.Setenv("FEDLEARN_PRIVACY_LEVEL", "bogus")
	_, err := Load()
	if kind, ok := errs.KindOf(err); !ok || kind != errs.ConfigInvalid {
		t.Fatalf("Load kind = %v (ok=%v), want ConfigInvalid", kind, ok)
	}
}

func TestValidateRejectsMissingInstanceID(t *testing.T) {
	cfg := validConfig()
	cfg.InstanceID = ""
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsMinimumAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.MaxParticipants = 3
	cfg.MinimumParticipants = 4
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsNonPositiveEpsilon(t *testing.T) {
	cfg := validConfig()
	cfg.PrivacyBudget.EpsilonTotal = 0
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsDeltaOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.PrivacyBudget.Delta = 1.5
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsConsumedAboveTotal(t *testing.T) {
	cfg := validConfig()
	cfg.PrivacyBudget.EpsilonConsumed = cfg.PrivacyBudget.EpsilonTotal + 1
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsLearningRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.ModelConfig.LearningRate = 1.5
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateRejectsZeroHiddenLayerWidth(t *testing.T) {
	cfg := validConfig()
	cfg.ModelConfig.HiddenLayers = []int{64, 0}
	assertConfigInvalid(t, Validate(cfg))
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate(valid) = %v, want nil", err)
	}
}

func TestLoadFileOverridesEnvDefaults(t *testing.T) {
	t.Setenv("FEDLEARN_INSTANCE_ID", "node-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
instance_id: node-from-file
federation_enabled: true
privacy_level: relaxed
max_participants: 20
minimum_participants: 4
round_timeout_ms: 60000
aggregation_strategy: differential_private
delta: 0.00001
budget_total: 5.0
budget_consumed: 1.0
input_dims: 32
hidden_layers: [16, 8]
output_dims: 4
learning_rate: 0.05
epochs: 10
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.InstanceID != "node-from-file" {
		t.Errorf("InstanceID = %q, want node-from-file", cfg.InstanceID)
	}
	if cfg.PrivacyLevel != privacy.Relaxed {
		t.Errorf("PrivacyLevel = %v, want relaxed", cfg.PrivacyLevel)
	}
	if cfg.AggregationStrategy != types.DPFedAvg {
		t.Errorf("AggregationStrategy = %v, want differential_private", cfg.AggregationStrategy)
	}
	if cfg.ModelConfig.InputDims != 32 || len(cfg.ModelConfig.HiddenLayers) != 2 {
		t.Errorf("ModelConfig = %+v, want input_dims=32 and 2 hidden layers", cfg.ModelConfig)
	}
}

func TestLoadFileMissingPathIsConfigInvalid(t *testing.T) {
	t.Setenv("FEDLEARN_INSTANCE_ID", "node-1")
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assertConfigInvalid(t, err)
}

func validConfig() Config {
	return Config{
		InstanceID:          "node-1",
		FederationEnabled:   true,
		PrivacyLevel:        privacy.Moderate,
		MaxParticipants:     10,
		MinimumParticipants: 2,
		RoundTimeout:        300_000_000_000,
		AggregationStrategy: types.FedAvg,
		PrivacyBudget: types.PrivacyBudget{
			EpsilonTotal:    10.0,
			EpsilonConsumed: 0,
			Delta:           1e-5,
		},
		ModelConfig: types.ModelConfig{
			InputDims:    128,
			HiddenLayers: []int{64},
			OutputDims:   10,
			LearningRate: 0.01,
			Epochs:       5,
		},
	}
}

func assertConfigInvalid(t *testing.T, err error) {
	t.Helper()
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.ConfigInvalid {
		t.Fatalf("kind = %v (ok=%v), want ConfigInvalid", kind, ok)
	}
}
