// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package consensus implements the Consensus Engine (spec §4.D):
// weighted Byzantine fault-tolerant voting over proposals, reputation
// bookkeeping, and Byzantine-evidence handling. Grounded in shape on
// coordinator.go's Proposing/Voting/Committed/Aborted state machine and
// quorum-by-count voting, generalized from unweighted majority counting
// to reputation-weighted thresholds and from a single aggregation
// proposal kind to the five kinds spec.md §3 names.
package consensus

import (
	"sync"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// Severity is Byzantine evidence severity (spec §4.D).
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func severityPenalty(s Severity) float64 {
	switch s {
	case SeverityMedium:
		return 0.3
	case SeverityHigh:
		return 0.5
	default:
		return 0.1
	}
}

const (
	minParticipation          = 2.0 / 3.0
	minParticipationExclusion = 3.0 / 4.0
	approvalThreshold         = 2.0 / 3.0
	eligibilityFloor          = 0.5
	exclusionReputationFloor  = 0.2
)

type voter struct {
	weight     float64
	reputation float64
}

type proposalEntry struct {
	proposal   types.Proposal
	votes      map[string]types.Vote // voter ID -> vote
	deadline   time.Time
	confidence float64
}

// Engine is the consensus engine. One Engine instance tracks every
// registered voter's weight and reputation and every open proposal.
type Engine struct {
	mu        sync.Mutex
	voters    map[string]*voter
	proposals map[string]*proposalEntry
	timeout   time.Duration
	now       func() time.Time
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. The default proposal timeout is 5 minutes
// (spec §4.D).
func New(opts ...Option) *Engine {
	e := &Engine{
		voters:    make(map[string]*voter),
		proposals: make(map[string]*proposalEntry),
		timeout:   5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterVoter adds or updates a voter's base weight, starting
// reputation at 1.0 if new.
func (e *Engine) RegisterVoter(id string, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.voters[id]; ok {
		v.weight = weight
		return
	}
	e.voters[id] = &voter{weight: weight, reputation: 1.0}
}

// Reputation implements round.ReputationProvider, giving the Round
// Coordinator's participant-selection scoring access to the same
// reputation values Consensus maintains.
func (e *Engine) Reputation(id string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.voters[id]; ok {
		return v.reputation
	}
	return 1.0
}

// Propose opens a new proposal and installs its deadline (spec §4.D).
func (e *Engine) Propose(proposalType types.ProposalType, proposer string, content []byte) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := types.NewProposalID(proposer, e.now().UnixMilli())
	deadline := e.now().Add(e.timeout)
	e.proposals[id] = &proposalEntry{
		proposal: types.Proposal{
			ID:        id,
			Type:      proposalType,
			Proposer:  proposer,
			Content:   content,
			Timestamp: e.now(),
			Deadline:  deadline,
			State:     types.ProposalActive,
		},
		votes:    make(map[string]types.Vote),
		deadline: deadline,
	}
	return id
}

// CastVote records voter's decision on proposalID, then re-checks
// finalization thresholds. Duplicate votes fail with AlreadyVoted
// (spec §4.D).
func (e *Engine) CastVote(proposalID, voterID string, decision types.VoteDecision) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.proposals[proposalID]
	if !ok {
		return errs.New(errs.InvalidInput, "consensus.CastVote", nil)
	}
	if entry.proposal.State != types.ProposalActive {
		return errs.New(errs.InvalidInput, "consensus.CastVote", nil)
	}
	if _, seen := entry.votes[voterID]; seen {
		return errs.New(errs.AlreadyVoted, "consensus.CastVote", nil)
	}
	entry.votes[voterID] = types.Vote{
		ProposalID: proposalID,
		Voter:      voterID,
		Decision:   decision,
		Timestamp:  e.now(),
	}

	e.tryFinalizeLocked(entry)
	return nil
}

// eligible reports whether a registered voter meets the reputation
// floor required to count toward eligible weight.
func (e *Engine) eligible(v *voter) bool {
	return v.reputation >= eligibilityFloor
}

func (e *Engine) eligibleWeight(id string) float64 {
	v, ok := e.voters[id]
	if !ok || !e.eligible(v) {
		return 0
	}
	return v.weight * v.reputation
}

func (e *Engine) tryFinalizeLocked(entry *proposalEntry) {
	totalEligible := 0.0
	for id, v := range e.voters {
		if e.eligible(v) {
			totalEligible += e.eligibleWeight(id)
		}
	}
	if totalEligible == 0 {
		return
	}

	votedWeight, approveWeight, rejectWeight := 0.0, 0.0, 0.0
	for voterID, vote := range entry.votes {
		w := e.eligibleWeight(voterID)
		votedWeight += w
		switch vote.Decision {
		case types.VoteApprove:
			approveWeight += w
		case types.VoteReject:
			rejectWeight += w
		}
	}

	participation := votedWeight / totalEligible
	minPart := minParticipation
	if entry.proposal.Type == types.ProposalParticipantExclusion {
		minPart = minParticipationExclusion
	}
	if participation < minPart {
		return
	}
	if votedWeight == 0 {
		return
	}

	switch {
	case approveWeight >= approvalThreshold*votedWeight:
		entry.proposal.State = types.ProposalApproved
	case rejectWeight >= approvalThreshold*votedWeight:
		entry.proposal.State = types.ProposalRejected
	default:
		return // decided neither way yet; still pending
	}

	// Confidence = (participation + max(approve, reject)/voted) / 2 +
	// participation_bonus, clamped to [0,1] (spec §4.D).
	maxSide := approveWeight
	if rejectWeight > maxSide {
		maxSide = rejectWeight
	}
	participationBonus := 0.01
	confidence := (participation+maxSide/votedWeight)/2 + participationBonus
	entry.confidence = clampUnit(confidence)

	e.applyReputationUpdatesLocked(entry)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Confidence returns the finalize-time confidence score for a decided
// proposal (spec §4.D), or 0 if the proposal has not finalized.
func (e *Engine) Confidence(proposalID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.proposals[proposalID]
	if !ok {
		return 0
	}
	return entry.confidence
}

// applyReputationUpdatesLocked applies the finalize-time reputation
// deltas (spec §4.D). Called with e.mu held.
func (e *Engine) applyReputationUpdatesLocked(entry *proposalEntry) {
	winningDecision := types.VoteApprove
	if entry.proposal.State == types.ProposalRejected {
		winningDecision = types.VoteReject
	}

	for id, v := range e.voters {
		vote, voted := entry.votes[id]
		switch {
		case !voted:
			v.reputation -= 0.03
		case vote.Decision == types.VoteAbstain:
			v.reputation += 0.01
		case vote.Decision == winningDecision:
			v.reputation += 0.05 + 0.01
		default:
			v.reputation += -0.02 + 0.01
		}
		v.reputation = clampReputation(v.reputation)
	}
}

func clampReputation(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 2 {
		return 2
	}
	return r
}

// ExpireStale finalizes any active proposal past its deadline as
// EXPIRED without applying reputation changes (spec §4.D: "on timeout
// without finalization -> EXPIRED").
func (e *Engine) ExpireStale() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []string
	now := e.now()
	for id, entry := range e.proposals {
		if entry.proposal.State == types.ProposalActive && now.After(entry.deadline) {
			entry.proposal.State = types.ProposalExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// State returns a proposal's current lifecycle state.
func (e *Engine) State(proposalID string) (types.ProposalState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.proposals[proposalID]
	if !ok {
		return 0, false
	}
	return entry.proposal.State, true
}

// ReportByzantineEvidence applies a reputation penalty for detected
// misbehavior and auto-proposes exclusion once reputation drops below
// 0.2 (spec §4.D).
func (e *Engine) ReportByzantineEvidence(instanceID string, severity Severity) {
	e.mu.Lock()
	v, ok := e.voters[instanceID]
	if !ok {
		e.mu.Unlock()
		return
	}
	v.reputation = clampReputation(v.reputation - severityPenalty(severity))
	shouldExclude := v.reputation < exclusionReputationFloor
	e.mu.Unlock()

	if shouldExclude {
		e.Propose(types.ProposalParticipantExclusion, "system", []byte(instanceID))
	}
}

// PenalizeMalformedShare implements round.SharePenalizer: a structurally
// invalid secure-aggregation share costs the sender the same penalty as
// low-severity Byzantine evidence (spec §4.B: "malformed shares are
// rejected and their sender's reputation decreases" — no separate
// penalty table is given, so the low-severity value is reused).
func (e *Engine) PenalizeMalformedShare(instanceID string) {
	e.ReportByzantineEvidence(instanceID, SeverityLow)
}
