// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package privacy

import (
	"errors"
	"testing"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClipLeavesUnderThresholdUntouched(t *testing.T) {
	layers := []types.Layer{{0.1, 0.1, 0.1}}
	out := Clip(layers, 10.0)
	for i, v := range out[0] {
		if v != layers[0][i] {
			t.Errorf("layer mutated when under threshold: got %v want %v", v, layers[0][i])
		}
	}
}

func TestClipScalesOverThreshold(t *testing.T) {
	layers := []types.Layer{{3, 4}} // norm = 5
	out := Clip(layers, 1.0)
	norm := l2Norm(out[0])
	if norm > 1.0+1e-9 {
		t.Errorf("clipped norm = %v, want <= 1.0", norm)
	}
}

func TestClipIsIdempotent(t *testing.T) {
	layers := []types.Layer{{3, 4, 5}}
	once := Clip(layers, 2.0)
	twice := Clip(once, 2.0)
	for i := range once[0] {
		if once[0][i] != twice[0][i] {
			t.Errorf("clip not idempotent at %d: %v vs %v", i, once[0][i], twice[0][i])
		}
	}
}

func TestCanParticipateBoundary(t *testing.T) {
	// Strict: epsilon = 1.0, epsilon_min = 0.05.
	budget := types.PrivacyBudget{EpsilonTotal: 1.0, EpsilonConsumed: 0.94}
	acc := New(Strict, budget)
	if !acc.CanParticipate() {
		t.Error("expected participation allowed with 0.06 remaining >= 0.05 epsilon_min")
	}
	acc2 := New(Strict, types.PrivacyBudget{EpsilonTotal: 1.0, EpsilonConsumed: 0.96})
	if acc2.CanParticipate() {
		t.Error("expected participation denied with 0.04 remaining < 0.05 epsilon_min")
	}
}

func TestPrivatizeBudgetExhaustedScenario(t *testing.T) {
	// total=1.0, consumed=0.9, moderate level epsilon_op=0.3 -> tentative 1.2 > 1.0.
	budget := types.PrivacyBudget{EpsilonTotal: 1.0, EpsilonConsumed: 0.9, Delta: 1e-4}
	acc := New(Moderate, budget, WithClock(fixedClock(time.Unix(1700000000, 0))))
	layers := []types.Layer{{1, 2, 3}}
	_, err := acc.Privatize(layers, 1.0, "fedavg-update", Gaussian, nil)
	if err == nil {
		t.Fatal("expected BudgetExhausted error")
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.BudgetExhausted {
		t.Fatalf("expected BudgetExhausted, got %v", err)
	}
	log := acc.AuditLog()
	if len(log) != 1 {
		t.Fatalf("expected 1 audit entry even on failure, got %d", len(log))
	}
	if log[0].EpsilonSpent != 0 {
		t.Errorf("expected epsilon_spent=0 on failed privatize, got %v", log[0].EpsilonSpent)
	}
	if acc.Budget().EpsilonConsumed != 0.9 {
		t.Errorf("budget must not move on failure, got %v", acc.Budget().EpsilonConsumed)
	}
}

func TestPrivatizeSpendsBudgetAndNoisesLayers(t *testing.T) {
	budget := types.PrivacyBudget{EpsilonTotal: 10.0, Delta: 1e-4}
	acc := New(Moderate, budget)
	layers := []types.Layer{{1, 2, 3}, {4, 5}}
	out, err := acc.Privatize(layers, 1.0, "fedavg-update", Gaussian, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(layers) {
		t.Fatalf("expected %d layers out, got %d", len(layers), len(out))
	}
	expectedSpend := Params(Moderate).Epsilon * defaultOpFraction
	if got := acc.Budget().EpsilonConsumed; got != expectedSpend {
		t.Errorf("epsilon consumed = %v, want %v", got, expectedSpend)
	}
	log := acc.AuditLog()
	if len(log) != 1 || log[0].EpsilonSpent != expectedSpend {
		t.Fatalf("unexpected audit log: %+v", log)
	}
}

func TestPrivatizeEpsilonOverride(t *testing.T) {
	budget := types.PrivacyBudget{EpsilonTotal: 10.0, Delta: 1e-4}
	acc := New(Strict, budget)
	override := 0.5
	_, err := acc.Privatize([]types.Layer{{1}}, 1.0, "override-op", Laplace, &override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Budget().EpsilonConsumed != 0.5 {
		t.Errorf("expected override spend of 0.5, got %v", acc.Budget().EpsilonConsumed)
	}
}

func TestAnalyzeDoesNotSpend(t *testing.T) {
	budget := types.PrivacyBudget{EpsilonTotal: 1.0, EpsilonConsumed: 0.5}
	acc := New(Moderate, budget)
	result := acc.Analyze("projected-op", 100, 1.0)
	if !result.Feasible {
		t.Error("expected feasible projection")
	}
	if acc.Budget().EpsilonConsumed != 0.5 {
		t.Error("Analyze must not mutate consumed budget")
	}
}

func TestResetIsAudited(t *testing.T) {
	budget := types.PrivacyBudget{EpsilonTotal: 1.0, EpsilonConsumed: 0.99}
	acc := New(Strict, budget)
	acc.Reset(5.0, "quarterly budget renewal")
	if acc.Budget().EpsilonTotal != 5.0 || acc.Budget().EpsilonConsumed != 0 {
		t.Fatalf("unexpected budget after reset: %+v", acc.Budget())
	}
	log := acc.AuditLog()
	last := log[len(log)-1]
	if last.Operation != "reset" || last.Justification != "quarterly budget renewal" {
		t.Errorf("reset not properly audited: %+v", last)
	}
}

func TestReplayAuditMatchesLiveConsumption(t *testing.T) {
	budget := types.PrivacyBudget{EpsilonTotal: 100.0, Delta: 1e-4}
	acc := New(Moderate, budget)
	for i := 0; i < 5; i++ {
		if _, err := acc.Privatize([]types.Layer{{1, 2}}, 1.0, "op", Gaussian, nil); err != nil {
			t.Fatalf("privatize %d: %v", i, err)
		}
	}
	acc.Reset(50.0, "mid-series reset")
	if _, err := acc.Privatize([]types.Layer{{1}}, 1.0, "op-after-reset", Gaussian, nil); err != nil {
		t.Fatalf("privatize after reset: %v", err)
	}
	replayed := ReplayAudit(acc.AuditLog())
	if replayed != acc.Budget().EpsilonConsumed {
		t.Errorf("replay = %v, live = %v", replayed, acc.Budget().EpsilonConsumed)
	}
}
