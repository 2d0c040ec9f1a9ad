// Copyright 2026 Sovereign-Mohawk Core Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the Federation Service's configuration surface
// (spec §6): instance identity, federation toggle, privacy level,
// participation bounds, round timeout, aggregation strategy, privacy
// budget and model architecture. Grounded on the teacher's env-var
// Load/getEnv* pattern, extended with an optional YAML file layer
// (go.yaml.in/yaml/v2, already a teacher dependency) and validation
// producing ConfigInvalid errors.
package config

import (
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/privacy"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// Config is the Federation Service's full configuration surface.
type Config struct {
	InstanceID          string
	FederationEnabled   bool
	PrivacyLevel        privacy.Level
	MaxParticipants     int
	MinimumParticipants int
	RoundTimeout        time.Duration
	AggregationStrategy types.AggregationStrategy
	PrivacyBudget       types.PrivacyBudget
	ModelConfig         types.ModelConfig
}

// fileConfig is the YAML-file shape; enum fields are plain strings,
// parsed the same way Load parses its env vars.
type fileConfig struct {
	InstanceID          string  `yaml:"instance_id"`
	FederationEnabled   bool    `yaml:"federation_enabled"`
	PrivacyLevel        string  `yaml:"privacy_level"`
	MaxParticipants     int     `yaml:"max_participants"`
	MinimumParticipants int     `yaml:"minimum_participants"`
	RoundTimeoutMs      int     `yaml:"round_timeout_ms"`
	AggregationStrategy string  `yaml:"aggregation_strategy"`
	Delta               float64 `yaml:"delta"`
	BudgetTotal         float64 `yaml:"budget_total"`
	BudgetConsumed      float64 `yaml:"budget_consumed"`
	InputDims           int     `yaml:"input_dims"`
	HiddenLayers        []int   `yaml:"hidden_layers"`
	OutputDims          int     `yaml:"output_dims"`
	LearningRate        float64 `yaml:"learning_rate"`
	Epochs              int     `yaml:"epochs"`
}

// Load reads configuration from environment variables, applying the
// spec's documented defaults.
func Load() (Config, error) {
	level, ok := privacy.ParseLevel(getEnv("FEDLEARN_PRIVACY_LEVEL", "moderate"))
	if !ok {
		return Config{}, errs.New(errs.ConfigInvalid, "config.Load", nil)
	}
	strategy, ok := types.ParseAggregationStrategy(getEnv("FEDLEARN_AGGREGATION_STRATEGY", "fedavg"))
	if !ok {
		return Config{}, errs.New(errs.ConfigInvalid, "config.Load", nil)
	}

	cfg := Config{
		InstanceID:          getEnv("FEDLEARN_INSTANCE_ID", ""),
		FederationEnabled:   getEnvBool("FEDLEARN_FEDERATION_ENABLED", false),
		PrivacyLevel:        level,
		MaxParticipants:     getEnvInt("FEDLEARN_MAX_PARTICIPANTS", 10),
		MinimumParticipants: getEnvInt("FEDLEARN_MINIMUM_PARTICIPANTS", 2),
		RoundTimeout:        getEnvDuration("FEDLEARN_ROUND_TIMEOUT", 300*time.Second),
		AggregationStrategy: strategy,
		PrivacyBudget: types.PrivacyBudget{
			EpsilonTotal:    getEnvFloat("FEDLEARN_PRIVACY_BUDGET_TOTAL", 10.0),
			EpsilonConsumed: getEnvFloat("FEDLEARN_PRIVACY_BUDGET_CONSUMED", 0.0),
			Delta:           getEnvFloat("FEDLEARN_PRIVACY_DELTA", 1e-5),
		},
		ModelConfig: types.ModelConfig{
			InputDims:    getEnvInt("FEDLEARN_MODEL_INPUT_DIMS", 128),
			HiddenLayers: []int{getEnvInt("FEDLEARN_MODEL_HIDDEN_DIMS", 64)},
			OutputDims:   getEnvInt("FEDLEARN_MODEL_OUTPUT_DIMS", 10),
			LearningRate: getEnvFloat("FEDLEARN_MODEL_LEARNING_RATE", 0.01),
			Epochs:       getEnvInt("FEDLEARN_MODEL_EPOCHS", 5),
		},
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads configuration from a YAML file at path, using Load's
// env-var result as the default for any field the file omits.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.New(errs.ConfigInvalid, "config.LoadFile", err)
	}
	base, err := Load()
	if err != nil {
		return Config{}, err
	}
	fc := fileConfig{
		InstanceID:          base.InstanceID,
		FederationEnabled:   base.FederationEnabled,
		PrivacyLevel:        base.PrivacyLevel.String(),
		MaxParticipants:     base.MaxParticipants,
		MinimumParticipants: base.MinimumParticipants,
		RoundTimeoutMs:      int(base.RoundTimeout / time.Millisecond),
		AggregationStrategy: base.AggregationStrategy.String(),
		Delta:               base.PrivacyBudget.Delta,
		BudgetTotal:         base.PrivacyBudget.EpsilonTotal,
		BudgetConsumed:      base.PrivacyBudget.EpsilonConsumed,
		InputDims:           base.ModelConfig.InputDims,
		HiddenLayers:        base.ModelConfig.HiddenLayers,
		OutputDims:          base.ModelConfig.OutputDims,
		LearningRate:        base.ModelConfig.LearningRate,
		Epochs:              base.ModelConfig.Epochs,
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, errs.New(errs.ConfigInvalid, "config.LoadFile", err)
	}

	level, ok := privacy.ParseLevel(fc.PrivacyLevel)
	if !ok {
		return Config{}, errs.New(errs.ConfigInvalid, "config.LoadFile", nil)
	}
	strategy, ok := types.ParseAggregationStrategy(fc.AggregationStrategy)
	if !ok {
		return Config{}, errs.New(errs.ConfigInvalid, "config.LoadFile", nil)
	}

	cfg := Config{
		InstanceID:          fc.InstanceID,
		FederationEnabled:   fc.FederationEnabled,
		PrivacyLevel:        level,
		MaxParticipants:     fc.MaxParticipants,
		MinimumParticipants: fc.MinimumParticipants,
		RoundTimeout:        time.Duration(fc.RoundTimeoutMs) * time.Millisecond,
		AggregationStrategy: strategy,
		PrivacyBudget: types.PrivacyBudget{
			EpsilonTotal:    fc.BudgetTotal,
			EpsilonConsumed: fc.BudgetConsumed,
			Delta:           fc.Delta,
		},
		ModelConfig: types.ModelConfig{
			InputDims:    fc.InputDims,
			HiddenLayers: fc.HiddenLayers,
			OutputDims:   fc.OutputDims,
			LearningRate: fc.LearningRate,
			Epochs:       fc.Epochs,
		},
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every invariant spec §6 names for the configuration
// surface, returning a ConfigInvalid error on the first violation
// found.
func Validate(cfg Config) error {
	if cfg.InstanceID == "" {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if cfg.MaxParticipants < 2 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if cfg.MinimumParticipants < 1 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if cfg.MinimumParticipants > cfg.MaxParticipants {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}

	b := cfg.PrivacyBudget
	if b.EpsilonTotal <= 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if b.Delta <= 0 || b.Delta >= 1 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if b.EpsilonConsumed < 0 || b.EpsilonConsumed > b.EpsilonTotal {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}

	m := cfg.ModelConfig
	if m.InputDims <= 0 || m.OutputDims <= 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if len(m.HiddenLayers) == 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	for _, h := range m.HiddenLayers {
		if h < 1 {
			return errs.New(errs.ConfigInvalid, "config.Validate", nil)
		}
	}
	if m.LearningRate <= 0 || m.LearningRate > 1 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	if m.Epochs <= 0 {
		return errs.New(errs.ConfigInvalid, "config.Validate", nil)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
