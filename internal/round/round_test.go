// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package round

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

func baseConfig() Config {
	return Config{
		MaxParticipants: 3,
		MinParticipants: 2,
		MinSamples:      5,
		MinAccuracy:     0.5,
		Deadline:        time.Minute,
		Strategy:        types.FedAvg,
	}
}

func TestHappyFedAvgRound(t *testing.T) {
	c := New("coord-1", baseConfig())
	roundID := c.StartRound(1, types.GlobalModel{})

	updates := []types.LocalUpdate{
		{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1, 1}}}, SampleCount: 10, Accuracy: 0.8},
		{Round: 1, InstanceID: "p2", Weights: types.WeightTensor{Layers: []types.Layer{{2, 2}}}, SampleCount: 30, Accuracy: 0.9},
		{Round: 1, InstanceID: "p3", Weights: types.WeightTensor{Layers: []types.Layer{{3, 3}}}, SampleCount: 60, Accuracy: 0.95},
	}
	for _, u := range updates {
		if err := c.Submit(u); err != nil {
			t.Fatalf("Submit(%s): %v", u.InstanceID, err)
		}
	}

	status, ok := c.Status(roundID)
	if !ok || status.State != types.RoundCompleting {
		t.Fatalf("expected COMPLETING after max participants reached, got %+v", status)
	}

	result, err := c.Complete(context.Background(), roundID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	wantAcc := 0.1*0.8 + 0.3*0.9 + 0.6*0.95
	if math.Abs(result.Accuracy-wantAcc) > 1e-9 {
		t.Errorf("accuracy = %v, want %v", result.Accuracy, wantAcc)
	}
	wantW0 := float32(0.1*1 + 0.3*2 + 0.6*3)
	if math.Abs(float64(result.Weights.Layers[0][0]-wantW0)) > 1e-5 {
		t.Errorf("weight[0][0] = %v, want %v", result.Weights.Layers[0][0], wantW0)
	}
	if result.ParticipantCount != 3 {
		t.Errorf("participant count = %d, want 3", result.ParticipantCount)
	}

	final, _ := c.Status(roundID)
	if final.State != types.RoundDone {
		t.Errorf("final state = %v, want DONE", final.State)
	}
}

func TestMinimumParticipantsTimeout(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start
	clock := func() time.Time { return now }

	cfg := baseConfig()
	cfg.MaxParticipants = 5
	cfg.MinParticipants = 3
	cfg.Deadline = 10 * time.Second
	c := New("coord-1", cfg, WithClock(clock))

	roundID := c.StartRound(1, types.GlobalModel{})
	updates := []types.LocalUpdate{
		{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.8},
		{Round: 1, InstanceID: "p2", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.8},
	}
	for _, u := range updates {
		if err := c.Submit(u); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	now = start.Add(11 * time.Second)
	c.CheckDeadline(roundID)

	status, _ := c.Status(roundID)
	if status.State != types.RoundCancelled {
		t.Fatalf("expected CANCELLED, got %v", status.State)
	}
	if status.CancelledReason != "insufficient_participants" {
		t.Errorf("cancelled reason = %q, want insufficient_participants", status.CancelledReason)
	}
}

func TestSubmitRejectsBelowMinSamplesAndAccuracy(t *testing.T) {
	c := New("coord-1", baseConfig())
	roundID := c.StartRound(1, types.GlobalModel{})
	_ = roundID

	tooFewSamples := types.LocalUpdate{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 4, Accuracy: 0.9}
	err := c.Submit(tooFewSamples)
	if got, ok := errs.KindOf(err); !ok || got != errs.InvalidUpdate {
		t.Fatalf("expected InvalidUpdate for sample_count below min, got %v", err)
	}

	okSamples := types.LocalUpdate{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 5, Accuracy: 0.49}
	err = c.Submit(okSamples)
	if got, ok := errs.KindOf(err); !ok || got != errs.InvalidUpdate {
		t.Fatalf("expected InvalidUpdate for accuracy below min, got %v", err)
	}

	boundary := types.LocalUpdate{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 5, Accuracy: 0.5}
	if err := c.Submit(boundary); err != nil {
		t.Fatalf("expected boundary values (min_samples, min_accuracy) accepted, got %v", err)
	}
}

func TestSubmitRejectsDuplicateInstance(t *testing.T) {
	c := New("coord-1", baseConfig())
	c.StartRound(1, types.GlobalModel{})
	u := types.LocalUpdate{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.9}
	if err := c.Submit(u); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := c.Submit(u)
	if got, ok := errs.KindOf(err); !ok || got != errs.InvalidUpdate {
		t.Fatalf("expected InvalidUpdate for duplicate (round, instance), got %v", err)
	}
}

func TestSubmitShapeMismatchCancelsRound(t *testing.T) {
	c := New("coord-1", baseConfig())
	baseline := types.GlobalModel{Weights: types.WeightTensor{Layers: []types.Layer{{0, 0}}}}
	roundID := c.StartRound(1, baseline)

	bad := types.LocalUpdate{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.9}
	err := c.Submit(bad)
	if got, ok := errs.KindOf(err); !ok || got != errs.ShapeMismatch {
		t.Fatalf("expected ShapeMismatch, got %v", err)
	}
	status, _ := c.Status(roundID)
	if status.State != types.RoundCancelled {
		t.Errorf("expected round cancelled on shape mismatch, got %v", status.State)
	}
}

func TestSelectParticipantsScoringAndTieBreak(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxParticipants = 2
	cfg.MinSamples = 0
	cfg.MinAccuracy = 0
	c := New("coord-1", cfg)

	updates := map[string]types.LocalUpdate{
		"b": {InstanceID: "b", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.5},
		"a": {InstanceID: "a", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 10, Accuracy: 0.5}, // same score as b, tie-break by ID
		"c": {InstanceID: "c", Weights: types.WeightTensor{Layers: []types.Layer{{1}}}, SampleCount: 1000, Accuracy: 0.99},
	}
	selected := c.selectParticipants(updates)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].InstanceID != "c" {
		t.Errorf("expected highest score (c) selected first, got %s", selected[0].InstanceID)
	}
	if selected[1].InstanceID != "a" {
		t.Errorf("expected tie broken by lexicographic ID (a before b), got %s", selected[1].InstanceID)
	}
}

func TestSecureAggRoundRecoversWeightedlessMean(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy = types.SecureAgg
	cfg.MaxParticipants = 5
	cfg.MinSamples = 0
	c := New("coord-1", cfg)
	roundID := c.StartRound(1, types.GlobalModel{})

	updates := []types.LocalUpdate{
		{Round: 1, InstanceID: "p1", Weights: types.WeightTensor{Layers: []types.Layer{{2.0, -1.0}}}, SampleCount: 10, Accuracy: 0.8},
		{Round: 1, InstanceID: "p2", Weights: types.WeightTensor{Layers: []types.Layer{{4.0, 1.0}}}, SampleCount: 10, Accuracy: 0.9},
		{Round: 1, InstanceID: "p3", Weights: types.WeightTensor{Layers: []types.Layer{{0.0, 3.0}}}, SampleCount: 10, Accuracy: 0.95},
		{Round: 1, InstanceID: "p4", Weights: types.WeightTensor{Layers: []types.Layer{{1.0, 0.0}}}, SampleCount: 10, Accuracy: 0.85},
		{Round: 1, InstanceID: "p5", Weights: types.WeightTensor{Layers: []types.Layer{{3.0, 2.0}}}, SampleCount: 10, Accuracy: 0.7},
	}
	for _, u := range updates {
		if err := c.Submit(u); err != nil {
			t.Fatalf("Submit(%s): %v", u.InstanceID, err)
		}
	}

	result, err := c.Complete(context.Background(), roundID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	wantMean := float32((2.0 + 4.0 + 0.0 + 1.0 + 3.0) / 5.0)
	if math.Abs(float64(result.Weights.Layers[0][0]-wantMean)) > 1e-3 {
		t.Errorf("secure_agg mean = %v, want %v", result.Weights.Layers[0][0], wantMean)
	}
}
