// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package federation implements the Federation Service (spec §4.G): the
// top-level orchestrator that wires the DP Accountant, Secure
// Aggregation, Round Coordinator, Consensus Engine, Communication
// Fabric and Analytics into one running instance, and exposes the
// public operations: initialize, join, start_round, update_config,
// opt_out/opt_in, status, analytics, shutdown. Grounded in shape on
// cmd/node-agent/main.go's construction/wiring sequence (config →
// component → run loop → graceful shutdown), generalized from a single
// Wasm proof-verifier demo to wiring all six components.
package federation

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/analytics"
	"github.com/sovereign-mohawk/fedlearn-core/internal/config"
	"github.com/sovereign-mohawk/fedlearn-core/internal/consensus"
	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/fabric"
	"github.com/sovereign-mohawk/fedlearn-core/internal/privacy"
	"github.com/sovereign-mohawk/fedlearn-core/internal/round"
	"github.com/sovereign-mohawk/fedlearn-core/internal/store"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// LocalPattern is one training pass's contribution before it is wired
// into a types.LocalUpdate by start_round: the caller's trainer hands
// over weights, sample count and self-reported accuracy; the Federation
// Service stamps round number, instance ID and timestamp.
type LocalPattern struct {
	Weights     types.WeightTensor
	SampleCount int
	Accuracy    float64
}

// Status is the snapshot the status() operation returns (spec §4.G).
type Status struct {
	InstanceID        string
	FederationEnabled bool
	GlobalModelRound  int
	GlobalAccuracy    float64
	PeerCount         int
	PrivacyBudget     types.PrivacyBudget
	CanParticipate    bool
}

// Service is the Federation Service. It owns the Round Coordinator, DP
// Accountant, Secure Aggregation (reached through round.Coordinator),
// Consensus Engine, Analytics and the local Communication Fabric
// instance, per spec §3's ownership summary.
type Service struct {
	mu                sync.Mutex
	cfg               config.Config
	identity          *fabric.Identity
	fabric            *fabric.Fabric
	coordinator       *round.Coordinator
	accountant        *privacy.Accountant
	engine            *consensus.Engine
	collector         *analytics.Collector
	store             store.Store
	globalModel       types.GlobalModel
	currentRoundID    string
	lastSnapshotHash  string
	log               *log.Logger
	now               func() time.Time
	cancel            context.CancelFunc
}

// New constructs a Service wiring every component per cfg. transport is
// the Fabric's wire capability (an in-memory fake or a real adapter
// from internal/fabric/transport); fabricMetrics may be nil.
func New(cfg config.Config, transport fabric.Transport, st store.Store, fabricMetrics *fabric.Metrics, opts ...Option) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	identity, err := fabric.NewIdentity()
	if err != nil {
		return nil, errs.New(errs.ConfigInvalid, "federation.New", err)
	}

	s := &Service{
		cfg:      cfg,
		identity: identity,
		store:    st,
		log:      log.New(os.Stderr, "component=federation ", log.LstdFlags),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.fabric = fabric.New(cfg.InstanceID, identity, transport, fabricMetrics, fabric.WithClock(s.now))
	s.accountant = privacy.New(cfg.PrivacyLevel, cfg.PrivacyBudget, privacy.WithClock(s.now))
	s.engine = consensus.New(consensus.WithClock(s.now))
	s.engine.RegisterVoter(cfg.InstanceID, 1.0)
	s.collector = analytics.New(cfg.MaxParticipants*4, analytics.WithClock(s.now))
	s.coordinator = round.New(cfg.InstanceID, round.Config{
		MaxParticipants: cfg.MaxParticipants,
		MinParticipants: cfg.MinimumParticipants,
		MinSamples:      1,
		MinAccuracy:     0,
		Deadline:        cfg.RoundTimeout,
		Strategy:        cfg.AggregationStrategy,
		Sensitivity:     privacy.Params(cfg.PrivacyLevel).Clip,
	},
		round.WithReputationProvider(s.engine),
		round.WithSharePenalizer(shareVoterAdapter{s.engine}),
		round.WithAccountant(s.accountant),
		round.WithClock(s.now),
	)

	s.fabric.OnMessage(types.MessageModelUpdate, s.handleRemoteUpdate)
	return s, nil
}

// Option configures a Service at construction.
type Option func(*Service)

// WithClock overrides the time source (for deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.log = l }
}

// shareVoterAdapter lets round.Coordinator notify Consensus of a
// malformed share without either package importing the other directly
// (spec §9 "break cycles with interface boundaries" — [EXPANSION 4.D]).
type shareVoterAdapter struct{ e *consensus.Engine }

func (a shareVoterAdapter) PenalizeMalformedShare(instanceID string) {
	a.e.PenalizeMalformedShare(instanceID)
}

// Initialize brings the Service's Fabric run loop online. Call once
// before Join.
func (s *Service) Initialize(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.fabric.Run(runCtx)
	s.log.Printf("initialized instance=%s", s.cfg.InstanceID)
}

// Join announces this instance to networkID via the given discovery
// bootstrap endpoints (spec §4.G `join(network, discovery_nodes)`).
func (s *Service) Join(networkID string, discoveryNodes []string) error {
	if err := s.fabric.Register(networkID, discoveryNodes); err != nil {
		return err
	}
	return s.fabric.Announce([]string{s.cfg.AggregationStrategy.String()})
}

// StartRound begins a new round from the caller's local training
// patterns (spec §4.G `start_round(local_patterns)`). It is a no-op
// returning InvalidInput while federation is disabled, and
// BudgetExhausted while the Accountant cannot participate.
func (s *Service) StartRound(ctx context.Context, patterns []LocalPattern) (types.AggregationResult, error) {
	s.mu.Lock()
	enabled := s.cfg.FederationEnabled
	baseline := s.globalModel
	s.mu.Unlock()

	if !enabled {
		return types.AggregationResult{}, errs.New(errs.InvalidInput, "federation.StartRound", nil)
	}
	if !s.accountant.CanParticipate() {
		return types.AggregationResult{}, errs.New(errs.BudgetExhausted, "federation.StartRound", nil)
	}

	roundID := s.coordinator.StartRound(baseline.Round+1, baseline)
	s.mu.Lock()
	s.currentRoundID = roundID
	s.mu.Unlock()

	now := s.now()
	for _, p := range patterns {
		update := types.LocalUpdate{
			Round:       baseline.Round + 1,
			InstanceID:  s.cfg.InstanceID,
			Weights:     p.Weights,
			SampleCount: p.SampleCount,
			Accuracy:    p.Accuracy,
			Timestamp:   now,
		}
		if err := s.coordinator.Submit(update); err != nil {
			s.log.Printf("submit rejected instance=%s err=%v", s.cfg.InstanceID, err)
			continue
		}
	}

	s.coordinator.CheckDeadline(roundID)
	status, _ := s.coordinator.Status(roundID)
	if status.State != types.RoundCompleting {
		return types.AggregationResult{}, errs.New(errs.QuorumShort, "federation.StartRound", nil)
	}

	result, err := s.coordinator.Complete(ctx, roundID)
	if err != nil {
		return types.AggregationResult{}, err
	}
	s.commitRound(result)
	return result, nil
}

// commitRound proposes the aggregated model to Consensus and, on
// approval, replaces the global model and broadcasts it (spec §2 data
// flow: "D collects votes through E → on approval, G broadcasts new
// global model; F records everything").
func (s *Service) commitRound(result types.AggregationResult) {
	proposalID := s.engine.Propose(types.ProposalModelUpdate, s.cfg.InstanceID, encodeResult(result))
	if err := s.engine.CastVote(proposalID, s.cfg.InstanceID, types.VoteApprove); err != nil {
		s.log.Printf("self-vote failed proposal=%s err=%v", proposalID, err)
	}

	approved, err := s.waitForDecision(proposalID)
	if err != nil {
		s.log.Printf("consensus error proposal=%s err=%v", proposalID, err)
		return
	}

	s.collector.RecordRound(result.Round, result.ParticipantCount, result.Accuracy,
		result.ConvergenceMetrics.Loss, result.ConvergenceMetrics.Stability)

	if !approved {
		s.log.Printf("round rejected round=%d proposal=%s", result.Round, proposalID)
		return
	}

	s.mu.Lock()
	s.globalModel = types.GlobalModel{
		Round:       result.Round,
		Weights:     result.Weights,
		Accuracy:    result.Accuracy,
		LastUpdated: s.now(),
	}
	model := s.globalModel
	s.mu.Unlock()

	s.broadcastGlobalModel(model)
}

// waitForDecision reads the Consensus Engine's state for proposalID once,
// without waiting; a single-node federation finalizes on the proposer's
// own vote, matching tryFinalizeLocked's immediate-evaluation behavior.
func (s *Service) waitForDecision(proposalID string) (bool, error) {
	state, ok := s.engine.State(proposalID)
	if !ok {
		return false, errs.New(errs.InvalidInput, "federation.waitForDecision", nil)
	}
	return state == types.ProposalApproved, nil
}

func (s *Service) broadcastGlobalModel(model types.GlobalModel) {
	payload, err := encodeGlobalModel(model)
	if err != nil {
		s.log.Printf("encode global model failed: %v", err)
		return
	}
	now := s.now()
	msg := types.NetworkMessage{
		ID:        types.NewMessageID(s.cfg.InstanceID, now.UnixMilli()),
		Type:      types.MessageModelUpdate,
		Sender:    s.cfg.InstanceID,
		Payload:   payload,
		Timestamp: now,
		Nonce:     types.NewMessageID(s.cfg.InstanceID, now.UnixMilli()),
	}
	if err := s.fabric.Broadcast(msg); err != nil {
		s.log.Printf("broadcast global model failed: %v", err)
	}
}

// handleRemoteUpdate is the Fabric's inbound handler for model_update
// messages from peers that are not this instance's own broadcast (it
// is also invoked for this instance's own broadcasts via loopback
// transports, which is harmless: decodeGlobalModel round-trips the same
// value that was just assigned).
func (s *Service) handleRemoteUpdate(msg types.NetworkMessage) {
	model, err := decodeGlobalModel(msg.Payload)
	if err != nil {
		s.log.Printf("discarding malformed model_update from=%s: %v", msg.Sender, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if model.Round <= s.globalModel.Round {
		return
	}
	s.globalModel = model
}

// UpdateConfig replaces the Service's runtime configuration (spec §4.G
// `update_config`). federation_enabled takes effect on the next
// StartRound. The Round Coordinator, Accountant, Consensus Engine and
// Fabric keep the values they were built with in New, so changes to
// instance_id, max/min_participants, aggregation_strategy and
// privacy_level do not reach them.
func (s *Service) UpdateConfig(cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// OptOut disables federation participation (spec §4.G `opt_out`):
// start_round becomes a no-op until OptIn.
func (s *Service) OptOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FederationEnabled = false
}

// OptIn re-enables federation participation (spec §4.G `opt_in`).
func (s *Service) OptIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FederationEnabled = true
}

// Status reports the Service's current standing (spec §4.G `status`).
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		InstanceID:        s.cfg.InstanceID,
		FederationEnabled: s.cfg.FederationEnabled,
		GlobalModelRound:  s.globalModel.Round,
		GlobalAccuracy:    s.globalModel.Accuracy,
		PeerCount:         len(s.fabric.Peers()),
		PrivacyBudget:     s.accountant.Budget(),
		CanParticipate:    s.accountant.CanParticipate(),
	}
}

// Analytics reports the current analytics rollup (spec §4.G
// `analytics`).
func (s *Service) Analytics() analytics.Report {
	return s.collector.Report()
}

// Snapshot builds and persists a tamper-evident restart payload
// (spec §4.G EXPANSION: `snapshot()`/`restore(snapshot)`).
func (s *Service) Snapshot() (store.Snapshot, error) {
	s.mu.Lock()
	model := s.globalModel
	budget := s.accountant.Budget()
	auditLog := s.accountant.AuditLog()
	roundNumber := model.Round
	previousHash := s.lastSnapshotHash
	s.mu.Unlock()

	peers := make([]store.PeerSnapshot, 0)
	for _, p := range s.fabric.Peers() {
		peers = append(peers, store.PeerSnapshot{
			ID:           p.ID,
			Endpoint:     p.Endpoint,
			PublicKeyDER: fabric.EncodePublicKey(p.PublicKey),
			Capabilities: p.Capabilities,
			Reputation:   p.Reputation,
			State:        int(p.State),
			LastSeen:     p.LastSeen,
		})
	}

	snap, err := store.BuildSnapshot(roundNumber, model, budget, auditLog, peers, nil, previousHash, s.now())
	if err != nil {
		return store.Snapshot{}, err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return store.Snapshot{}, err
	}
	if err := s.store.Save("snapshot", data); err != nil {
		return store.Snapshot{}, err
	}
	s.mu.Lock()
	s.lastSnapshotHash = snap.Hash
	s.mu.Unlock()
	return snap, nil
}

// Restore reloads the last persisted snapshot and re-seats the global
// model and peer table (spec §4.G EXPANSION `restore`). The snapshot's
// privacy budget and audit log are not loaded back into the Accountant.
func (s *Service) Restore() error {
	data, err := s.store.Load("snapshot")
	if err != nil {
		return err
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	ok, err := store.VerifyChain(snap)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.InvalidInput, "federation.Restore", nil)
	}

	for _, p := range snap.Peers {
		pub, err := fabric.DecodePublicKey(p.PublicKeyDER)
		if err != nil {
			continue
		}
		s.fabric.RegisterPeer(&fabric.PeerRecord{
			ID:           p.ID,
			Endpoint:     p.Endpoint,
			PublicKey:    pub,
			Capabilities: p.Capabilities,
			Reputation:   p.Reputation,
			State:        fabric.PeerState(p.State),
			LastSeen:     p.LastSeen,
		})
	}

	s.mu.Lock()
	s.globalModel = snap.GlobalModel
	s.lastSnapshotHash = snap.Hash
	s.mu.Unlock()
	return nil
}

// Shutdown cancels the Fabric run loop started by Initialize and returns
// without waiting. A StartRound in progress runs on its caller's context
// and is neither interrupted nor awaited.
func (s *Service) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.log.Printf("shutdown instance=%s", s.cfg.InstanceID)
}
