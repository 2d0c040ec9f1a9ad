// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package types holds the canonical data model shared by every component:
// instances, weight tensors, local updates, rounds, the global model, the
// privacy budget, audit entries, proposals, votes, secure shares, network
// messages and participant history (spec §3).
package types

import "time"

// Layer is an immutable flat array of IEEE-754 32-bit floats: one layer of
// a weight tensor.
type Layer []float32

// WeightTensor is an ordered sequence of layers. Shape (layer count and
// per-layer length) must be identical across all participants of a round.
type WeightTensor struct {
	Layers []Layer
}

// Shape returns the per-layer lengths, used for shape-mismatch checks.
func (t WeightTensor) Shape() []int {
	shape := make([]int, len(t.Layers))
	for i, l := range t.Layers {
		shape[i] = len(l)
	}
	return shape
}

// SameShape reports whether t and other have identical layer counts and
// per-layer lengths.
func (t WeightTensor) SameShape(other WeightTensor) bool {
	if len(t.Layers) != len(other.Layers) {
		return false
	}
	for i := range t.Layers {
		if len(t.Layers[i]) != len(other.Layers[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, so callers can mutate the result without
// aliasing the original tensor (the global model is replaced atomically
// via copy-on-replace per spec §5).
func (t WeightTensor) Clone() WeightTensor {
	out := WeightTensor{Layers: make([]Layer, len(t.Layers))}
	for i, l := range t.Layers {
		cp := make(Layer, len(l))
		copy(cp, l)
		out.Layers[i] = cp
	}
	return out
}

// Instance is a participating node. Key is ID. Never shared — one instance
// owns its identity.
type Instance struct {
	ID           string
	Endpoint     string
	PublicKey    []byte
	Capabilities []string
	Reputation   float64 // in [0, 2]
	Eligible     bool
	LastSeen     time.Time
}

// LocalUpdate is one participant's contribution to a round.
type LocalUpdate struct {
	Round       int
	InstanceID  string
	Weights     WeightTensor
	SampleCount int
	Accuracy    float64
	Timestamp   time.Time
}

// RoundState is the Round Coordinator's per-round lifecycle state (spec §4.C).
type RoundState int

const (
	RoundOpen RoundState = iota
	RoundCompleting
	RoundDone
	RoundCancelled
	RoundTimedOut
)

func (s RoundState) String() string {
	switch s {
	case RoundOpen:
		return "OPEN"
	case RoundCompleting:
		return "COMPLETING"
	case RoundDone:
		return "DONE"
	case RoundCancelled:
		return "CANCELLED"
	case RoundTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// AggregationStrategy is the tagged variant of spec §4.C/§9 ("Polymorphism
// over aggregation strategies → tagged variant").
type AggregationStrategy int

const (
	FedAvg AggregationStrategy = iota
	SecureAgg
	DPFedAvg
)

func ParseAggregationStrategy(s string) (AggregationStrategy, bool) {
	switch s {
	case "fedavg":
		return FedAvg, true
	case "secure_agg":
		return SecureAgg, true
	case "differential_private":
		return DPFedAvg, true
	default:
		return 0, false
	}
}

func (a AggregationStrategy) String() string {
	switch a {
	case FedAvg:
		return "fedavg"
	case SecureAgg:
		return "secure_agg"
	case DPFedAvg:
		return "differential_private"
	default:
		return "unknown"
	}
}

// ConvergenceMetrics accompanies an AggregationResult (spec §4.C).
type ConvergenceMetrics struct {
	Loss        float64
	Improvement float64
	Stability   float64
}

// AggregationResult is what Round.complete() produces.
type AggregationResult struct {
	Round              int
	Weights            WeightTensor
	ParticipantCount   int
	Accuracy           float64
	ConvergenceMetrics ConvergenceMetrics
}

// GlobalModel is the federation's singleton current model.
type GlobalModel struct {
	Round       int
	Weights     WeightTensor
	Accuracy    float64
	LastUpdated time.Time
}

// PrivacyBudget tracks ε/δ spend for the DP Accountant.
type PrivacyBudget struct {
	EpsilonTotal    float64
	EpsilonConsumed float64
	Delta           float64
}

// Remaining returns the unspent epsilon budget.
func (b PrivacyBudget) Remaining() float64 {
	return b.EpsilonTotal - b.EpsilonConsumed
}

// ModelConfig describes the model architecture a Federation Service
// instance trains (spec §6 configuration surface).
type ModelConfig struct {
	InputDims    int
	HiddenLayers []int
	OutputDims   int
	LearningRate float64
	Epochs       int
}

// AuditEntry is one append-only record of a privacy-budget operation.
type AuditEntry struct {
	Operation     string
	Timestamp     time.Time
	EpsilonSpent  float64
	DeltaSpent    float64
	BudgetAfter   float64
	Justification string
}

// ProposalType enumerates what a Proposal is about (spec §3).
type ProposalType int

const (
	ProposalModelUpdate ProposalType = iota
	ProposalParameterChange
	ProposalParticipantAdmission
	ProposalProtocolUpgrade
	ProposalParticipantExclusion
)

func (t ProposalType) String() string {
	switch t {
	case ProposalModelUpdate:
		return "model_update"
	case ProposalParameterChange:
		return "parameter_change"
	case ProposalParticipantAdmission:
		return "participant_admission"
	case ProposalProtocolUpgrade:
		return "protocol_upgrade"
	case ProposalParticipantExclusion:
		return "participant_exclusion"
	default:
		return "unknown"
	}
}

// ProposalState is the consensus lifecycle state (spec §3/§4.D).
type ProposalState int

const (
	ProposalActive ProposalState = iota
	ProposalApproved
	ProposalRejected
	ProposalExpired
)

func (s ProposalState) String() string {
	switch s {
	case ProposalActive:
		return "ACTIVE"
	case ProposalApproved:
		return "APPROVED"
	case ProposalRejected:
		return "REJECTED"
	case ProposalExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Proposal is a unit of consensus (spec §3).
type Proposal struct {
	ID            string
	Type          ProposalType
	Proposer      string
	Content       []byte
	RequiredVotes int
	Timestamp     time.Time
	Deadline      time.Time
	State         ProposalState
}

// VoteDecision is a voter's choice on a Proposal.
type VoteDecision int

const (
	VoteApprove VoteDecision = iota
	VoteReject
	VoteAbstain
)

func (d VoteDecision) String() string {
	switch d {
	case VoteApprove:
		return "approve"
	case VoteReject:
		return "reject"
	case VoteAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Vote is one voter's ballot on a Proposal (spec §3). At most one per
// (proposal, voter).
type Vote struct {
	ProposalID string
	Voter      string
	Decision   VoteDecision
	Timestamp  time.Time
	Signature  []byte
}

// SecureShare is one participant's Shamir share of a round's weights
// (spec §4.B). Each layer's shares are serialized BN254 scalar field
// elements (32 bytes each, big-endian), one per quantized weight, so
// shares do not lose precision the way a float32 re-encoding would.
type SecureShare struct {
	ParticipantID    string
	ParticipantIndex int // Shamir x-coordinate, 1..n
	LayerShares      [][]byte
	LayerShapes      []int // element count per layer, for deserialization
	Commitment       [32]byte
	Proof            [32]byte
}

// MessageType enumerates Network Message kinds (spec §3).
type MessageType int

const (
	MessageAnnouncement MessageType = iota
	MessageTrainingRound
	MessageModelUpdate
	MessageHeartbeat
	MessageDiscovery
)

func (t MessageType) String() string {
	switch t {
	case MessageAnnouncement:
		return "announcement"
	case MessageTrainingRound:
		return "training_round"
	case MessageModelUpdate:
		return "model_update"
	case MessageHeartbeat:
		return "heartbeat"
	case MessageDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// NetworkMessage is the Fabric's signed wire type (spec §3/§6). Signature
// covers the canonical serialization of every other field.
type NetworkMessage struct {
	ID         string
	Type       MessageType
	Sender     string
	Recipients []string // optional: nil/empty means broadcast
	Payload    []byte
	Timestamp  time.Time
	Nonce      string
	Signature  []byte
}

// ParticipantHistory is per-instance accumulated standing (spec §3).
type ParticipantHistory struct {
	InstanceID        string
	RoundsParticipated int
	AvgAccuracy       float64
	Reliability       float64 // in [0, 1]
	LastSeen          time.Time
}
