// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package secureagg implements the Secure Aggregation component (spec
// §4.B): Shamir secret sharing of quantized model weights over the
// BN254 scalar field, SHA-256 share commitments, and Lagrange
// reconstruction at x=0. Grounded in shape on the DeDiS vss.go dealer/
// verifier/threshold protocol (other_examples), rebuilt on
// github.com/consensys/gnark-crypto's bn254/fr field instead of a
// discrete-log group since no signature/VSS library ships in the
// teacher's own dependency stack.
package secureagg

import (
	"math"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// scale fixes the quantization grid for float32 weights: a weight v is
// shared as round(v * scale), recovered as quantized / scale. 1e6 gives
// six decimal digits of precision, comfortably inside float32's ~7
// significant digits.
const scale = 1e6

// quantize maps a float32 weight onto the Shamir sharing domain.
func quantize(v float32) int64 {
	return int64(math.Round(float64(v) * scale))
}

// dequantize is quantize's inverse.
func dequantize(q int64) float32 {
	return float32(float64(q) / scale)
}

// elementFromInt64 embeds a signed integer into the BN254 scalar field.
func elementFromInt64(v int64) fr.Element {
	var e fr.Element
	e.SetInt64(v)
	return e
}

// halfModulus caches p/2 for signed recovery; computed once since
// fr.Modulus() returns the same pointer for the lifetime of the process.
var halfModulus = new(big.Int).Rsh(fr.Modulus(), 1)

// int64FromElement recovers a signed integer previously embedded with
// elementFromInt64, interpreting field values past the modulus midpoint
// as negative residues of p.
func int64FromElement(e fr.Element) int64 {
	var asBig big.Int
	e.BigInt(&asBig)
	if asBig.Cmp(halfModulus) > 0 {
		asBig.Sub(&asBig, fr.Modulus())
	}
	return asBig.Int64()
}

// elementFromIndex embeds a Shamir x-coordinate (always small and
// positive) into the field.
func elementFromIndex(x int) fr.Element {
	var e fr.Element
	e.SetUint64(uint64(x))
	return e
}
