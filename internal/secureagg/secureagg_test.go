// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package secureagg

import (
	"math"
	"testing"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

func TestThresholdFormula(t *testing.T) {
	cases := map[int]int{3: 3, 4: 3, 5: 4, 7: 5, 9: 7, 10: 7}
	for n, want := range cases {
		if got := Threshold(n); got != want {
			t.Errorf("Threshold(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSplitReconstructRoundTrip(t *testing.T) {
	n, tt := 7, Threshold(7)
	secret := int64(-1234567)
	shares, err := SplitSecret(secret, n, tt)
	if err != nil {
		t.Fatalf("SplitSecret: %v", err)
	}
	got, err := ReconstructSecret(shares[:tt], tt)
	if err != nil {
		t.Fatalf("ReconstructSecret: %v", err)
	}
	if got != secret {
		t.Errorf("reconstructed %d, want %d", got, secret)
	}
}

func TestReconstructSecretQuorumShort(t *testing.T) {
	n, tt := 7, Threshold(7)
	shares, err := SplitSecret(42, n, tt)
	if err != nil {
		t.Fatalf("SplitSecret: %v", err)
	}
	_, err = ReconstructSecret(shares[:tt-1], tt)
	if got, ok := errs.KindOf(err); !ok || got != errs.QuorumShort {
		t.Fatalf("expected QuorumShort, got %v", err)
	}
}

func TestShareWeightsVerifyShare(t *testing.T) {
	weights := types.WeightTensor{Layers: []types.Layer{{1.5, -2.25}, {0.1, 0.2, 0.3}}}
	n := 5
	shares, err := ShareWeights("node-a", weights, n)
	if err != nil {
		t.Fatalf("ShareWeights: %v", err)
	}
	if len(shares) != n {
		t.Fatalf("expected %d shares, got %d", n, len(shares))
	}
	for _, s := range shares {
		if !VerifyShare(s) {
			t.Errorf("share for participant %d failed verification", s.ParticipantIndex)
		}
	}
}

func TestVerifyShareDetectsTampering(t *testing.T) {
	weights := types.WeightTensor{Layers: []types.Layer{{1, 2, 3}}}
	shares, err := ShareWeights("node-a", weights, 5)
	if err != nil {
		t.Fatalf("ShareWeights: %v", err)
	}
	tampered := shares[0]
	tampered.LayerShares[0][0] ^= 0xFF
	if VerifyShare(tampered) {
		t.Error("expected tampered share to fail verification")
	}
}

func TestSumAndReconstructRecoversAggregateWeights(t *testing.T) {
	n := 5
	contributors := []types.WeightTensor{
		{Layers: []types.Layer{{1.0, 2.0}, {0.5}}},
		{Layers: []types.Layer{{3.0, -1.0}, {0.25}}},
		{Layers: []types.Layer{{-0.5, 0.5}, {0.25}}},
	}

	perContributorShares := make([][]types.SecureShare, len(contributors))
	for i, w := range contributors {
		shares, err := ShareWeights("contributor", w, n)
		if err != nil {
			t.Fatalf("ShareWeights %d: %v", i, err)
		}
		perContributorShares[i] = shares
	}

	summedByIndex := make([]types.SecureShare, n)
	for idx := 0; idx < n; idx++ {
		perIndex := make([]types.SecureShare, len(contributors))
		for c := range contributors {
			perIndex[c] = perContributorShares[c][idx]
		}
		summed, err := SumContributions(perIndex)
		if err != nil {
			t.Fatalf("SumContributions at index %d: %v", idx, err)
		}
		summedByIndex[idx] = summed
	}

	tt := Threshold(n)
	result, err := Reconstruct(summedByIndex[:tt], n)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	wantLayer0 := []float32{1.0 + 3.0 - 0.5, 2.0 - 1.0 + 0.5}
	for i, want := range wantLayer0 {
		if math.Abs(float64(result.Layers[0][i]-want)) > 1e-3 {
			t.Errorf("layer0[%d] = %v, want %v", i, result.Layers[0][i], want)
		}
	}
	wantLayer1 := float32(0.5 + 0.25 + 0.25)
	if math.Abs(float64(result.Layers[1][0]-wantLayer1)) > 1e-3 {
		t.Errorf("layer1[0] = %v, want %v", result.Layers[1][0], wantLayer1)
	}
}

func TestReconstructQuorumShort(t *testing.T) {
	n := 5
	w := types.WeightTensor{Layers: []types.Layer{{1, 2}}}
	shares, err := ShareWeights("node-a", w, n)
	if err != nil {
		t.Fatalf("ShareWeights: %v", err)
	}
	tt := Threshold(n)
	_, err = Reconstruct(shares[:tt-1], n)
	if got, ok := errs.KindOf(err); !ok || got != errs.QuorumShort {
		t.Fatalf("expected QuorumShort, got %v", err)
	}
}
