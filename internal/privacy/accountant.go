// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package privacy implements the DP Accountant (spec §4.A): gradient
// clipping, calibrated Gaussian/Laplace noise, and ε/δ budget tracking
// with an append-only audit log. Adapted from internal/privacy/dp.go's
// noise formulas and budget bookkeeping, generalized from a single fixed
// "SGP-001" configuration to the three-level (strict/moderate/relaxed)
// scheme spec.md names, and from a single global budget counter to the
// full PrivacyBudget/AuditEntry data model.
package privacy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// defaultOpFraction is the heuristic per-operation spend level.ε / 10
// (spec §4.A, configurable per the Open Question in §9).
const defaultOpFraction = 0.10

// Accountant is the DP Accountant. All access is serialized — spec §5
// requires the privacy budget to have a single-writer invariant.
type Accountant struct {
	mu         sync.Mutex
	level      Level
	budget     types.PrivacyBudget
	opFraction float64
	audit      []types.AuditEntry
	now        func() time.Time
}

// Option configures an Accountant at construction.
type Option func(*Accountant)

// WithOpFraction overrides the default level.ε/10 heuristic.
func WithOpFraction(f float64) Option {
	return func(a *Accountant) { a.opFraction = f }
}

// WithClock overrides the time source (for deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// New creates an Accountant at the given privacy level with an initial
// budget.
func New(level Level, budget types.PrivacyBudget, opts ...Option) *Accountant {
	a := &Accountant{
		level:      level,
		budget:     budget,
		opFraction: defaultOpFraction,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Budget returns a snapshot of the current privacy budget.
func (a *Accountant) Budget() types.PrivacyBudget {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.budget
}

// AuditLog returns a copy of the append-only audit log.
func (a *Accountant) AuditLog() []types.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.AuditEntry, len(a.audit))
	copy(out, a.audit)
	return out
}

// Clip scales each layer whose L2 norm exceeds threshold by
// threshold/‖layer‖₂, leaving layers already within bound untouched
// (spec §4.A). Clip is idempotent: Clip(Clip(L, τ), τ) == Clip(L, τ).
func Clip(layers []types.Layer, threshold float64) []types.Layer {
	out := make([]types.Layer, len(layers))
	for i, layer := range layers {
		out[i] = clipLayer(layer, threshold)
	}
	return out
}

func clipLayer(layer types.Layer, threshold float64) types.Layer {
	norm := l2Norm(layer)
	if norm <= threshold || norm == 0 {
		cp := make(types.Layer, len(layer))
		copy(cp, layer)
		return cp
	}
	scale := threshold / norm
	out := make(types.Layer, len(layer))
	for {
		for i, v := range layer {
			out[i] = float32(float64(v) * scale)
		}
		// Rounding to float32 can leave the norm just above threshold;
		// step the scale down until the result is within bound, so a
		// second Clip leaves it untouched.
		if l2Norm(out) <= threshold || scale <= 0 {
			return out
		}
		scale = float64(math.Nextafter32(float32(scale), 0))
	}
}

func l2Norm(layer types.Layer) float64 {
	sum := 0.0
	for _, v := range layer {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CanParticipate reports whether at least epsilon_min = level.ε/20 of
// budget remains (spec §4.A).
func (a *Accountant) CanParticipate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canParticipateLocked()
}

func (a *Accountant) canParticipateLocked() bool {
	epsilonMin := Params(a.level).Epsilon / 20
	return a.budget.Remaining() >= epsilonMin
}

// Analysis is the pure, non-spending projection analyze() returns.
type Analysis struct {
	EpsilonCost float64
	Feasible    bool
}

// Analyze projects the ε cost of an operation without spending budget
// (spec §4.A — "pure, does not spend").
func (a *Accountant) Analyze(op string, dataSize int, sensitivity float64) Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	cost := Params(a.level).Epsilon * a.opFraction
	return Analysis{
		EpsilonCost: cost,
		Feasible:    a.budget.EpsilonConsumed+cost <= a.budget.EpsilonTotal,
	}
}

// Mechanism selects which noise mechanism Privatize uses.
type Mechanism int

const (
	Gaussian Mechanism = iota
	Laplace
)

// Privatize adds calibrated noise to layers and spends the privacy
// budget. The tentative spend is level.ε/10 unless epsilonOverride is
// supplied (spec §9 Open Question: "the public privatize contract should
// accept an explicit ε parameter"). Every call — success or failure —
// appends an AuditEntry; on BudgetExhausted the entry records
// epsilon_spent = 0 (spec §4.A).
func (a *Accountant) Privatize(layers []types.Layer, sensitivity float64, operationTag string, mechanism Mechanism, epsilonOverride *float64) ([]types.Layer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	params := Params(a.level)
	epsilonOp := params.Epsilon * a.opFraction
	if epsilonOverride != nil {
		epsilonOp = *epsilonOverride
	}

	if a.budget.EpsilonConsumed+epsilonOp > a.budget.EpsilonTotal {
		a.appendAuditLocked(operationTag, 0, 0)
		return nil, errs.New(errs.BudgetExhausted, "privacy.Privatize", nil)
	}

	out := make([]types.Layer, len(layers))
	for i, layer := range layers {
		noised, err := a.addNoise(layer, sensitivity, epsilonOp, params.Delta, mechanism)
		if err != nil {
			// Budget is not spent and the failure is still audited with
			// zero spend, matching the BudgetExhausted accounting rule.
			a.appendAuditLocked(operationTag, 0, 0)
			return nil, errs.New(errs.InvalidInput, "privacy.Privatize", err)
		}
		out[i] = noised
	}

	a.budget.EpsilonConsumed += epsilonOp
	a.appendAuditLocked(operationTag, epsilonOp, params.Delta)

	return out, nil
}

func (a *Accountant) appendAuditLocked(op string, epsilonSpent, deltaSpent float64) {
	a.audit = append(a.audit, types.AuditEntry{
		Operation:     op,
		Timestamp:     a.now(),
		EpsilonSpent:  epsilonSpent,
		DeltaSpent:    deltaSpent,
		BudgetAfter:   a.budget.EpsilonConsumed,
		Justification: "",
	})
}

func (a *Accountant) addNoise(layer types.Layer, sensitivity, epsilon, delta float64, mechanism Mechanism) (types.Layer, error) {
	out := make(types.Layer, len(layer))
	switch mechanism {
	case Laplace:
		scale := sensitivity / epsilon
		for i, v := range layer {
			n, err := laplaceNoise(scale)
			if err != nil {
				return nil, err
			}
			out[i] = v + float32(n)
		}
	default: // Gaussian
		sigma := gaussianSigma(sensitivity, epsilon, delta)
		for i, v := range layer {
			n, err := gaussianNoise(0, sigma)
			if err != nil {
				return nil, err
			}
			out[i] = v + float32(n)
		}
	}
	return out, nil
}

// gaussianSigma computes σ = Δ·√(2·ln(1.25/δ)) / ε (spec §4.A).
func gaussianSigma(sensitivity, epsilon, delta float64) float64 {
	return sensitivity * math.Sqrt(2.0*math.Log(1.25/delta)) / epsilon
}

// Reset performs an explicitly audited reset of the total budget (spec
// §3: "monotonically non-decreasing in epsilon_consumed except via an
// explicitly audited reset").
func (a *Accountant) Reset(newTotal float64, justification string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.budget.EpsilonTotal = newTotal
	a.budget.EpsilonConsumed = 0
	a.audit = append(a.audit, types.AuditEntry{
		Operation:     "reset",
		Timestamp:     a.now(),
		EpsilonSpent:  0,
		DeltaSpent:    0,
		BudgetAfter:   0,
		Justification: justification,
	})
}

// ReplayAudit recomputes epsilon_consumed by folding the audit log from
// scratch, honoring resets as the zero point (spec §8: "Budget replay:
// replaying an audit log yields the same epsilon_consumed").
func ReplayAudit(entries []types.AuditEntry) float64 {
	consumed := 0.0
	for _, e := range entries {
		if e.Operation == "reset" {
			consumed = 0
			continue
		}
		consumed += e.EpsilonSpent
	}
	return consumed
}

// gaussianNoise samples N(mean, stddev²) via the Box-Muller transform,
// using crypto/rand for the underlying uniform draws (adapted from
// internal/privacy/dp.go's gaussianNoise).
func gaussianNoise(mean, stddev float64) (float64, error) {
	u1, err := uniform01()
	if err != nil {
		return 0, err
	}
	u2, err := uniform01()
	if err != nil {
		return 0, err
	}
	// Avoid log(0).
	if u1 <= 0 {
		u1 = 1e-300
	}
	z0 := math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
	return mean + z0*stddev, nil
}

// laplaceNoise samples Laplace(0, scale) (adapted from
// internal/privacy/dp.go's laplaceNoise).
func laplaceNoise(scale float64) (float64, error) {
	u, err := uniform01()
	if err != nil {
		return 0, err
	}
	u -= 0.5
	if u == 0 {
		return 0, nil
	}
	return -scale * math.Copysign(1.0, u) * math.Log(1.0-2.0*math.Abs(u)), nil
}

func uniform01() (float64, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint64(buf)) / float64(math.MaxUint64), nil
}
