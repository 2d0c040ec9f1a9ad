// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package secureagg

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// ShareWeights splits a participant's weight tensor into n Shamir
// shares (x = 1..n), one types.SecureShare per recipient, committing
// each recipient's share bytes under SHA-256 (spec §4.B). sourceID
// identifies the contributing participant, not the recipient.
func ShareWeights(sourceID string, weights types.WeightTensor, n int) ([]types.SecureShare, error) {
	t := Threshold(n)
	shapes := weights.Shape()

	perParticipant := make([][]Share, n)
	for p := 0; p < n; p++ {
		perParticipant[p] = make([]Share, 0, totalElements(shapes))
	}

	for _, layer := range weights.Layers {
		for _, v := range layer {
			shares, err := SplitSecret(quantize(v), n, t)
			if err != nil {
				return nil, errs.New(errs.InvalidInput, "secureagg.ShareWeights", err)
			}
			for p, s := range shares {
				perParticipant[p] = append(perParticipant[p], s)
			}
		}
	}

	out := make([]types.SecureShare, n)
	for p := 0; p < n; p++ {
		layerShares := splitByShape(perParticipant[p], shapes)
		commitment := commitLayerShares(sourceID, p+1, layerShares)
		out[p] = types.SecureShare{
			ParticipantID:    sourceID,
			ParticipantIndex: p + 1,
			LayerShares:      layerShares,
			LayerShapes:      shapes,
			Commitment:       commitment,
			Proof:            proveReveal(commitment, p+1),
		}
	}
	return out, nil
}

// VerifyShare recomputes a SecureShare's commitment and reveal proof,
// reporting whether they match what the share claims (spec §4.B: "each
// recipient can verify a revealed share against its prior commitment").
func VerifyShare(s types.SecureShare) bool {
	want := commitLayerShares(s.ParticipantID, s.ParticipantIndex, s.LayerShares)
	if want != s.Commitment {
		return false
	}
	return proveReveal(s.Commitment, s.ParticipantIndex) == s.Proof
}

// SumContributions adds, layer by layer, the shares contributed by
// multiple source participants to the same recipient index x, relying
// on Shamir's additive homomorphism so the eventual reconstruction
// yields Σ weights rather than any individual contributor's weights.
func SumContributions(contributions []types.SecureShare) (types.SecureShare, error) {
	if len(contributions) == 0 {
		return types.SecureShare{}, errs.New(errs.InvalidInput, "secureagg.SumContributions", nil)
	}
	index := contributions[0].ParticipantIndex
	shapes := contributions[0].LayerShapes
	groups := make([][]Share, len(contributions))
	for i, c := range contributions {
		if c.ParticipantIndex != index {
			return types.SecureShare{}, errs.New(errs.ShapeMismatch, "secureagg.SumContributions", nil)
		}
		groups[i] = flattenLayerShares(c.LayerShares, c.ParticipantIndex)
	}
	summed, err := sumShares(groups)
	if err != nil {
		return types.SecureShare{}, err
	}
	layerShares := splitByShape(summed, shapes)
	return types.SecureShare{
		ParticipantID:    "aggregate",
		ParticipantIndex: index,
		LayerShares:      layerShares,
		LayerShapes:      shapes,
	}, nil
}

// Reconstruct recovers the summed WeightTensor from t or more
// per-recipient summed shares (one per distinct participant index),
// returning errs.QuorumShort if fewer than t are supplied (spec §4.B).
func Reconstruct(summedShares []types.SecureShare, n int) (types.WeightTensor, error) {
	t := Threshold(n)
	if len(summedShares) < t {
		return types.WeightTensor{}, errs.New(errs.QuorumShort, "secureagg.Reconstruct", nil)
	}
	shapes := summedShares[0].LayerShapes
	elemCount := totalElements(shapes)

	perElement := make([][]Share, elemCount)
	for i := range perElement {
		perElement[i] = make([]Share, 0, len(summedShares))
	}
	for _, s := range summedShares {
		flat := flattenLayerShares(s.LayerShares, s.ParticipantIndex)
		if len(flat) != elemCount {
			return types.WeightTensor{}, errs.New(errs.ShapeMismatch, "secureagg.Reconstruct", nil)
		}
		for i, share := range flat {
			perElement[i] = append(perElement[i], share)
		}
	}

	flatOut := make([]int64, elemCount)
	for i, shares := range perElement {
		v, err := ReconstructSecret(shares, t)
		if err != nil {
			return types.WeightTensor{}, err
		}
		flatOut[i] = v
	}

	return unflatten(flatOut, shapes), nil
}

func totalElements(shapes []int) int {
	total := 0
	for _, s := range shapes {
		total += s
	}
	return total
}

func unflatten(flat []int64, shapes []int) types.WeightTensor {
	layers := make([]types.Layer, len(shapes))
	pos := 0
	for i, n := range shapes {
		layer := make(types.Layer, n)
		for j := 0; j < n; j++ {
			layer[j] = dequantize(flat[pos])
			pos++
		}
		layers[i] = layer
	}
	return types.WeightTensor{Layers: layers}
}

// splitByShape serializes a flat sequence of field-element shares into
// one 32-byte-per-element blob per layer, matching shapes.
func splitByShape(flat []Share, shapes []int) [][]byte {
	out := make([][]byte, len(shapes))
	pos := 0
	for i, n := range shapes {
		buf := make([]byte, 0, n*fr.Bytes)
		for j := 0; j < n; j++ {
			b := flat[pos].Y.Bytes()
			buf = append(buf, b[:]...)
			pos++
		}
		out[i] = buf
	}
	return out
}

// flattenLayerShares is splitByShape's inverse, re-attaching the shared
// x-coordinate to each recovered field element.
func flattenLayerShares(layerShares [][]byte, x int) []Share {
	var out []Share
	for _, buf := range layerShares {
		for off := 0; off+fr.Bytes <= len(buf); off += fr.Bytes {
			var e fr.Element
			e.SetBytes(buf[off : off+fr.Bytes])
			out = append(out, Share{X: x, Y: e})
		}
	}
	return out
}

// commitLayerShares hashes a participant's share bytes together with
// its identity and index, so a revealed share can be checked against a
// commitment made before reconstruction began.
func commitLayerShares(participantID string, index int, layerShares [][]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(participantID))
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], uint64(index))
	h.Write(idxBuf[:])
	for _, buf := range layerShares {
		h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// proveReveal is a lightweight, non-interactive reveal proof: a hash
// binding the commitment to the revealing index. This is a research-
// grade substitute for a Feldman/Pedersen verifiable-secret-sharing
// proof — it lets a recipient detect a mismatched reveal but does not,
// on its own, prevent a dealer from sending inconsistent shares to
// different recipients before any commitment is published.
func proveReveal(commitment [32]byte, index int) [32]byte {
	h := sha256.New()
	h.Write(commitment[:])
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], uint64(index))
	h.Write(idxBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
