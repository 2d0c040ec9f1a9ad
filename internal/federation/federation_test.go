// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package federation

import (
	"context"
	"testing"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/config"
	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/fabric"
	"github.com/sovereign-mohawk/fedlearn-core/internal/privacy"
	"github.com/sovereign-mohawk/fedlearn-core/internal/store"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

func testConfig() config.Config {
	return config.Config{
		InstanceID:          "node-a",
		FederationEnabled:   true,
		PrivacyLevel:        privacy.Moderate,
		MaxParticipants:     3,
		MinimumParticipants: 1,
		RoundTimeout:        time.Minute,
		AggregationStrategy: types.FedAvg,
		PrivacyBudget: types.PrivacyBudget{
			EpsilonTotal:    10.0,
			EpsilonConsumed: 0,
			Delta:           1e-5,
		},
		ModelConfig: types.ModelConfig{
			InputDims:    4,
			HiddenLayers: []int{2},
			OutputDims:   1,
			LearningRate: 0.01,
			Epochs:       1,
		},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	hub := fabric.NewInMemoryHub()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	svc, err := New(testConfig(), hub.Endpoint("node-a"), st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func onePattern() []LocalPattern {
	return []LocalPattern{{
		Weights:     types.WeightTensor{Layers: []types.Layer{{1, 2, 3}}},
		SampleCount: 10,
		Accuracy:    0.9,
	}}
}

func TestStartRoundNoOpWhenFederationDisabled(t *testing.T) {
	svc := newTestService(t)
	svc.OptOut()
	_, err := svc.StartRound(context.Background(), onePattern())
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.InvalidInput {
		t.Fatalf("StartRound kind = %v (ok=%v), want InvalidInput", kind, ok)
	}
}

func TestStartRoundProducesApprovedResultAndAdvancesGlobalModel(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.StartRound(context.Background(), onePattern())
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if result.Round != 1 {
		t.Errorf("Round = %d, want 1", result.Round)
	}
	if result.ParticipantCount != 1 {
		t.Errorf("ParticipantCount = %d, want 1", result.ParticipantCount)
	}

	status := svc.Status()
	if status.GlobalModelRound != 1 {
		t.Errorf("GlobalModelRound = %d, want 1", status.GlobalModelRound)
	}
}

func TestStartRoundFailsWhenQuorumShort(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.MinimumParticipants = 5
	_, err := svc.StartRound(context.Background(), onePattern())
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.QuorumShort {
		t.Fatalf("StartRound kind = %v (ok=%v), want QuorumShort", kind, ok)
	}
}

func TestOptOutThenOptInRestoresParticipation(t *testing.T) {
	svc := newTestService(t)
	svc.OptOut()
	if svc.Status().FederationEnabled {
		t.Fatal("expected FederationEnabled=false after OptOut")
	}
	svc.OptIn()
	if !svc.Status().FederationEnabled {
		t.Fatal("expected FederationEnabled=true after OptIn")
	}
	if _, err := svc.StartRound(context.Background(), onePattern()); err != nil {
		t.Fatalf("StartRound after OptIn: %v", err)
	}
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.StartRound(context.Background(), onePattern()); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if _, err := svc.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	hub := fabric.NewInMemoryHub()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	restored, err := New(testConfig(), hub.Endpoint("node-a"), st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Copy the first service's persisted snapshot file into the second's
	// store directory by re-saving through its own Store handle.
	data, err := svc.store.Load("snapshot")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := restored.store.Save("snapshot", data); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Status().GlobalModelRound != 1 {
		t.Errorf("GlobalModelRound after Restore = %d, want 1", restored.Status().GlobalModelRound)
	}
}

func TestAnalyticsReflectsCompletedRound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.StartRound(context.Background(), onePattern()); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	report := svc.Analytics()
	if len(report.Trends) != 1 {
		t.Fatalf("Trends = %d entries, want 1", len(report.Trends))
	}
	if report.Trends[0].Round != 1 {
		t.Errorf("Trends[0].Round = %d, want 1", report.Trends[0].Round)
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	svc := newTestService(t)
	bad := testConfig()
	bad.MaxParticipants = 0
	err := svc.UpdateConfig(bad)
	kind, ok := errs.KindOf(err)
	if !ok || kind != errs.ConfigInvalid {
		t.Fatalf("UpdateConfig kind = %v (ok=%v), want ConfigInvalid", kind, ok)
	}
}
