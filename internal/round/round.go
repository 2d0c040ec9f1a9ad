// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package round implements the Round Coordinator (spec §4.C): the
// per-round state machine, local-update validation, deterministic
// participant selection, and the three aggregation strategies
// (fedavg, secure_agg, differential_private). Grounded in shape on
// internal/consensus/coordinator.go's state/proposal/vote bookkeeping
// and internal/consensus/aggregator.go's round-number/metrics
// lifecycle, generalized from byte-slice models to typed weight
// tensors and from a single aggregation strategy to the spec's three.
package round

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/privacy"
	"github.com/sovereign-mohawk/fedlearn-core/internal/secureagg"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// ReputationProvider supplies a participant's current reputation for
// selection scoring; instances absent from the provider default to 1.0.
type ReputationProvider interface {
	Reputation(instanceID string) float64
}

// SharePenalizer is notified when a secure-aggregation share fails
// structural verification, so the caller (Consensus, via the
// Federation Service) can apply a reputation penalty without Round
// importing Consensus directly (spec §9 "break cycles with interface
// boundaries").
type SharePenalizer interface {
	PenalizeMalformedShare(instanceID string)
}

// Accountant is the subset of privacy.Accountant the differential_private
// strategy needs.
type Accountant interface {
	Privatize(layers []types.Layer, sensitivity float64, operationTag string, mechanism privacy.Mechanism, epsilonOverride *float64) ([]types.Layer, error)
}

// Config parameterizes a Coordinator (spec §4.C, §6 configuration surface).
type Config struct {
	MaxParticipants int
	MinParticipants int
	MinSamples      int
	MinAccuracy     float64
	Deadline        time.Duration
	Strategy        types.AggregationStrategy
	Sensitivity     float64 // L2 sensitivity passed to the Accountant for differential_private
}

// Coordinator owns zero or more concurrently open rounds. Each round
// holds a deadline (acted on only when CheckDeadline is called; there is
// no timer) and an update table. Entries stay in the Coordinator after
// reaching a terminal state; nothing releases them.
type Coordinator struct {
	mu          sync.Mutex
	id          string
	cfg         Config
	rounds      map[string]*roundEntry
	reputations ReputationProvider
	penalizer   SharePenalizer
	accountant  Accountant
	now         func() time.Time
}

type roundEntry struct {
	id          string
	state       types.RoundState
	roundNumber int
	deadline    time.Time
	updates     map[string]types.LocalUpdate // keyed by instance ID
	baseline    types.GlobalModel
	cancelledReason string
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

func WithReputationProvider(r ReputationProvider) Option {
	return func(c *Coordinator) { c.reputations = r }
}

func WithSharePenalizer(p SharePenalizer) Option {
	return func(c *Coordinator) { c.penalizer = p }
}

func WithAccountant(a Accountant) Option {
	return func(c *Coordinator) { c.accountant = a }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator. id identifies this node for round-ID
// generation.
func New(id string, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:     id,
		cfg:    cfg,
		rounds: make(map[string]*roundEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartRound opens a new round against roundNumber (the federation's
// monotonic round counter) and baseline, the current global model
// before this round's contributions.
func (c *Coordinator) StartRound(roundNumber int, baseline types.GlobalModel) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := types.NewRoundID(c.id, c.now().UnixMilli())
	c.rounds[id] = &roundEntry{
		id:          id,
		state:       types.RoundOpen,
		roundNumber: roundNumber,
		deadline:    c.now().Add(c.cfg.Deadline),
		updates:     make(map[string]types.LocalUpdate),
		baseline:    baseline,
	}
	return id
}

// Submit validates and records a participant's local update (spec
// §4.C). Validation order: round match, duplicate-instance, shape
// (against the round's baseline, ShapeMismatch is fatal to the round),
// sample_count, accuracy.
func (c *Coordinator) Submit(update types.LocalUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[roundKeyFor(c.rounds, update.Round)]
	if !ok {
		return errs.New(errs.InvalidInput, "round.Submit", nil)
	}
	if r.state != types.RoundOpen {
		return errs.New(errs.InvalidUpdate, "round.Submit", nil)
	}
	if update.Round != r.roundNumber {
		return errs.New(errs.InvalidUpdate, "round.Submit", nil)
	}
	if _, seen := r.updates[update.InstanceID]; seen {
		return errs.New(errs.InvalidUpdate, "round.Submit", nil)
	}
	if len(r.baseline.Weights.Layers) > 0 && !update.Weights.SameShape(r.baseline.Weights) {
		r.state = types.RoundCancelled
		r.cancelledReason = "shape_mismatch"
		return errs.New(errs.ShapeMismatch, "round.Submit", nil)
	}
	if update.SampleCount < c.cfg.MinSamples {
		return errs.New(errs.InvalidUpdate, "round.Submit", nil)
	}
	if update.Accuracy < c.cfg.MinAccuracy {
		return errs.New(errs.InvalidUpdate, "round.Submit", nil)
	}

	r.updates[update.InstanceID] = update

	if len(r.updates) >= c.cfg.MaxParticipants {
		r.state = types.RoundCompleting
	}
	return nil
}

// roundKeyFor resolves a round by roundNumber to its map key; rounds
// are keyed by their generated ID, not their number, since a single
// Coordinator instance advances one numbered round at a time but keeps
// historical entries addressable by ID for Status/ActiveRounds.
func roundKeyFor(rounds map[string]*roundEntry, roundNumber int) string {
	for id, r := range rounds {
		if r.roundNumber == roundNumber && (r.state == types.RoundOpen || r.state == types.RoundCompleting) {
			return id
		}
	}
	return ""
}

// CheckDeadline transitions a round on deadline expiry: COMPLETING if
// at least MinParticipants updates arrived, else CANCELLED with reason
// insufficient_participants (spec §4.C state machine, boundary
// behavior: deadline exactly at arrival is treated inclusive/OPEN).
func (c *Coordinator) CheckDeadline(roundID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rounds[roundID]
	if !ok || r.state != types.RoundOpen {
		return
	}
	if c.now().Before(r.deadline) || c.now().Equal(r.deadline) {
		return
	}
	if len(r.updates) >= c.cfg.MinParticipants {
		r.state = types.RoundCompleting
	} else {
		r.state = types.RoundCancelled
		r.cancelledReason = "insufficient_participants"
	}
}

// Status reports a round's current state and participant count (spec
// §4.C EXPANSION).
type Status struct {
	State            types.RoundState
	ParticipantCount int
	CancelledReason  string
}

func (c *Coordinator) Status(roundID string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[roundID]
	if !ok {
		return Status{}, false
	}
	return Status{State: r.state, ParticipantCount: len(r.updates), CancelledReason: r.cancelledReason}, true
}

// ActiveRounds lists IDs of rounds not yet in a terminal state (spec
// §4.C EXPANSION).
func (c *Coordinator) ActiveRounds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, r := range c.rounds {
		if r.state == types.RoundOpen || r.state == types.RoundCompleting {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// selected is an update paired with the score it was ranked by.
type selected struct {
	update types.LocalUpdate
	score  float64
}

// selectParticipants ranks updates by accuracy·ln(sample_count+1)·reputation
// descending, ties broken by instance_id ascending, and returns the top
// maxParticipants (spec §4.C).
func (c *Coordinator) selectParticipants(updates map[string]types.LocalUpdate) []types.LocalUpdate {
	pool := make([]selected, 0, len(updates))
	for id, u := range updates {
		rep := 1.0
		if c.reputations != nil {
			rep = c.reputations.Reputation(id)
		}
		score := u.Accuracy * math.Log(float64(u.SampleCount)+1) * rep
		pool = append(pool, selected{update: u, score: score})
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].update.InstanceID < pool[j].update.InstanceID
	})
	if len(pool) > c.cfg.MaxParticipants {
		pool = pool[:c.cfg.MaxParticipants]
	}
	out := make([]types.LocalUpdate, len(pool))
	for i, s := range pool {
		out[i] = s.update
	}
	return out
}

// Complete aggregates a COMPLETING round's selected participants and
// produces an AggregationResult (spec §4.C). On aggregation failure the
// round is cancelled and the global model is left unchanged.
func (c *Coordinator) Complete(ctx context.Context, roundID string) (types.AggregationResult, error) {
	c.mu.Lock()
	r, ok := c.rounds[roundID]
	if !ok {
		c.mu.Unlock()
		return types.AggregationResult{}, errs.New(errs.InvalidInput, "round.Complete", nil)
	}
	if r.state != types.RoundCompleting {
		c.mu.Unlock()
		return types.AggregationResult{}, errs.New(errs.InvalidInput, "round.Complete", nil)
	}
	participants := c.selectParticipants(r.updates)
	baseline := r.baseline
	roundNumber := r.roundNumber
	strategy := c.cfg.Strategy
	sensitivity := c.cfg.Sensitivity
	c.mu.Unlock()

	weights, accuracy, err := c.aggregate(ctx, strategy, participants, sensitivity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		r.state = types.RoundCancelled
		r.cancelledReason = "aggregation_failed"
		return types.AggregationResult{}, err
	}

	metrics := convergenceMetrics(baseline.Weights, weights, baseline.Accuracy, accuracy)
	r.state = types.RoundDone

	return types.AggregationResult{
		Round:              roundNumber,
		Weights:            weights,
		ParticipantCount:   len(participants),
		Accuracy:           accuracy,
		ConvergenceMetrics: metrics,
	}, nil
}

func (c *Coordinator) aggregate(ctx context.Context, strategy types.AggregationStrategy, updates []types.LocalUpdate, sensitivity float64) (types.WeightTensor, float64, error) {
	switch strategy {
	case types.SecureAgg:
		return c.secureAggregate(updates)
	case types.DPFedAvg:
		weights, accuracy, err := fedAvg(updates)
		if err != nil {
			return types.WeightTensor{}, 0, err
		}
		if c.accountant == nil {
			return types.WeightTensor{}, 0, errs.New(errs.ConfigInvalid, "round.aggregate", nil)
		}
		noised, err := c.accountant.Privatize(weights.Layers, sensitivity, "round_aggregate", privacy.Gaussian, nil)
		if err != nil {
			return types.WeightTensor{}, 0, err
		}
		return types.WeightTensor{Layers: noised}, accuracy, nil
	default:
		return fedAvg(updates)
	}
}

// fedAvg implements the fedavg strategy: sample-weighted average of
// weights and accuracy (spec §4.C, invariant 7).
func fedAvg(updates []types.LocalUpdate) (types.WeightTensor, float64, error) {
	if len(updates) == 0 {
		return types.WeightTensor{}, 0, errs.New(errs.InvalidInput, "round.fedAvg", nil)
	}
	totalSamples := 0
	for _, u := range updates {
		totalSamples += u.SampleCount
	}
	if totalSamples == 0 {
		return types.WeightTensor{}, 0, errs.New(errs.InvalidInput, "round.fedAvg", nil)
	}

	shape := updates[0].Weights.Shape()
	out := make([]types.Layer, len(shape))
	for i, n := range shape {
		out[i] = make(types.Layer, n)
	}

	accuracy := 0.0
	for _, u := range updates {
		w := float64(u.SampleCount) / float64(totalSamples)
		accuracy += w * u.Accuracy
		for li, layer := range u.Weights.Layers {
			for ei, v := range layer {
				out[li][ei] += float32(w) * v
			}
		}
	}
	return types.WeightTensor{Layers: out}, accuracy, nil
}

// secureAggregate implements the secure_agg strategy by delegating to
// package secureagg (spec §4.B), then dividing by contributor count.
// Accuracy is the sample-weighted mean of each participant's
// self-reported accuracy, not secret-shared (spec §9 Open Question,
// resolved in SPEC_FULL.md §4.B).
func (c *Coordinator) secureAggregate(updates []types.LocalUpdate) (types.WeightTensor, float64, error) {
	n := len(updates)
	if n == 0 {
		return types.WeightTensor{}, 0, errs.New(errs.InvalidInput, "round.secureAggregate", nil)
	}

	allShares := make([][]types.SecureShare, n)
	for i, u := range updates {
		shares, err := secureagg.ShareWeights(u.InstanceID, u.Weights, n)
		if err != nil {
			return types.WeightTensor{}, 0, err
		}
		allShares[i] = shares
	}

	threshold := secureagg.Threshold(n)
	summed := make([]types.SecureShare, 0, n)
	for idx := 0; idx < n; idx++ {
		contributions := make([]types.SecureShare, 0, n)
		for i := range updates {
			s := allShares[i][idx]
			if !secureagg.VerifyShare(s) {
				if c.penalizer != nil {
					c.penalizer.PenalizeMalformedShare(updates[i].InstanceID)
				}
				continue
			}
			contributions = append(contributions, s)
		}
		if len(contributions) == 0 {
			continue
		}
		combined, err := secureagg.SumContributions(contributions)
		if err != nil {
			return types.WeightTensor{}, 0, err
		}
		summed = append(summed, combined)
	}

	if len(summed) < threshold {
		return types.WeightTensor{}, 0, errs.New(errs.QuorumShort, "round.secureAggregate", nil)
	}

	total, err := secureagg.Reconstruct(summed, n)
	if err != nil {
		return types.WeightTensor{}, 0, err
	}

	divided := make([]types.Layer, len(total.Layers))
	for i, layer := range total.Layers {
		divided[i] = make(types.Layer, len(layer))
		for j, v := range layer {
			divided[i][j] = v / float32(n)
		}
	}

	totalSamples := 0
	accSum := 0.0
	for _, u := range updates {
		totalSamples += u.SampleCount
	}
	for _, u := range updates {
		w := float64(u.SampleCount) / float64(totalSamples)
		accSum += w * u.Accuracy
	}

	return types.WeightTensor{Layers: divided}, accSum, nil
}

// convergenceMetrics computes loss, improvement and stability (spec §4.C).
func convergenceMetrics(oldWeights, newWeights types.WeightTensor, oldAcc, newAcc float64) types.ConvergenceMetrics {
	sumSq := 0.0
	for li, layer := range newWeights.Layers {
		for ei, v := range layer {
			var old float32
			if li < len(oldWeights.Layers) && ei < len(oldWeights.Layers[li]) {
				old = oldWeights.Layers[li][ei]
			}
			d := float64(v - old)
			sumSq += d * d
		}
	}
	loss := math.Sqrt(sumSq)
	improvement := newAcc - oldAcc
	stability := math.Max(0, 1-loss/10)
	return types.ConvergenceMetrics{Loss: loss, Improvement: improvement, Stability: stability}
}
