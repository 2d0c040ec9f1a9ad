// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package secureagg

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
)

// Share is one point (x, f(x)) of a degree-(t-1) polynomial whose
// constant term is the shared secret.
type Share struct {
	X int
	Y fr.Element
}

// Threshold returns t = ⌊2n/3⌋+1 for n shareholders (spec §4.B).
func Threshold(n int) int {
	return (2*n)/3 + 1
}

// splitScalar shares a single field element secret among n participants
// (x = 1..n) using a random degree-(t-1) polynomial, per the classic
// Shamir construction the DeDiS vss.go Dealer implements over a
// discrete-log group — here evaluated directly over BN254's scalar
// field since no verifiable commitment group is wired.
func splitScalar(secret fr.Element, n, t int) ([]Share, error) {
	if t < 1 || t > n {
		return nil, errs.New(errs.InvalidInput, "secureagg.splitScalar", nil)
	}
	coeffs := make([]fr.Element, t)
	coeffs[0] = secret
	for i := 1; i < t; i++ {
		var c fr.Element
		if _, err := c.SetRandom(); err != nil {
			return nil, errs.New(errs.InvalidInput, "secureagg.splitScalar", err)
		}
		coeffs[i] = c
	}

	shares := make([]Share, n)
	for x := 1; x <= n; x++ {
		shares[x-1] = Share{X: x, Y: evalPolynomial(coeffs, x)}
	}
	return shares, nil
}

// evalPolynomial evaluates Σ coeffs[i]·x^i via Horner's method.
func evalPolynomial(coeffs []fr.Element, x int) fr.Element {
	xElem := elementFromIndex(x)
	var acc fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc.Mul(&acc, &xElem)
		acc.Add(&acc, &coeffs[i])
	}
	return acc
}

// lagrangeAtZero reconstructs f(0) from t or more points (x_i, y_i) via
// Lagrange interpolation: f(0) = Σ y_i · Π_{j≠i} (-x_j)/(x_i - x_j).
func lagrangeAtZero(shares []Share, t int) (fr.Element, error) {
	if len(shares) < t {
		return fr.Element{}, errs.New(errs.QuorumShort, "secureagg.lagrangeAtZero", nil)
	}
	pts := shares[:t]

	var result fr.Element
	for i, pi := range pts {
		xi := elementFromIndex(pi.X)
		var num, den fr.Element
		num.SetOne()
		den.SetOne()
		for j, pj := range pts {
			if i == j {
				continue
			}
			xj := elementFromIndex(pj.X)

			var negXj fr.Element
			negXj.Neg(&xj)
			num.Mul(&num, &negXj)

			var diff fr.Element
			diff.Sub(&xi, &xj)
			den.Mul(&den, &diff)
		}
		var denInv, coeff, term fr.Element
		denInv.Inverse(&den)
		coeff.Mul(&num, &denInv)
		term.Mul(&coeff, &pi.Y)
		result.Add(&result, &term)
	}
	return result, nil
}

// SplitSecret shares a signed, quantized integer secret among n
// participants, returning a random-fresh-polynomial Shamir split.
func SplitSecret(secret int64, n, t int) ([]Share, error) {
	return splitScalar(elementFromInt64(secret), n, t)
}

// ReconstructSecret recovers the original signed integer secret from at
// least t shares; it returns errs.QuorumShort if fewer than t are given.
func ReconstructSecret(shares []Share, t int) (int64, error) {
	e, err := lagrangeAtZero(shares, t)
	if err != nil {
		return 0, err
	}
	return int64FromElement(e), nil
}

// sumShares adds corresponding shares (same X) element-for-element. The
// additive homomorphism of Shamir sharing over a fixed evaluation point
// set means Σ shares at x reconstructs to Σ secrets — the mechanism
// Round uses to aggregate many participants' weights without any
// participant learning another's values (spec §4.C secure_agg
// strategy).
func sumShares(groups [][]Share) ([]Share, error) {
	if len(groups) == 0 {
		return nil, errs.New(errs.InvalidInput, "secureagg.sumShares", nil)
	}
	n := len(groups[0])
	summed := make([]Share, n)
	for i := 0; i < n; i++ {
		summed[i] = Share{X: groups[0][i].X}
	}
	for _, g := range groups {
		if len(g) != n {
			return nil, errs.New(errs.ShapeMismatch, "secureagg.sumShares", nil)
		}
		for i, s := range g {
			if s.X != summed[i].X {
				return nil, errs.New(errs.ShapeMismatch, "secureagg.sumShares", nil)
			}
			summed[i].Y.Add(&summed[i].Y, &s.Y)
		}
	}
	return summed, nil
}
