// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package store implements the Store persistence capability (spec §6:
// "a `Store` capability with `load`/`save` by key; format is
// implementation-defined but MUST be versioned") and the Federation
// Service's restart payload. Grounded on internal/island/recovery.go's
// PersistState/RecoverState (os.WriteFile/os.ReadFile) and
// internal/island/state.go's hash-chained StateSnapshot, generalized
// from island-mode-only caching to the full restart surface spec.md §6
// names: peer table, privacy budget + audit log, consensus history,
// last known global model.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// CurrentVersion is the on-disk snapshot format version.
const CurrentVersion = 1

// Store is the external persistence capability (spec §6).
type Store interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
}

// PeerSnapshot is one Fabric peer table entry's persisted form; the
// ECDSA public key is carried as PKIX/DER since json cannot marshal
// *ecdsa.PublicKey directly.
type PeerSnapshot struct {
	ID           string    `json:"id"`
	Endpoint     string    `json:"endpoint"`
	PublicKeyDER []byte    `json:"public_key_der"`
	Capabilities []string  `json:"capabilities"`
	Reputation   float64   `json:"reputation"`
	State        int       `json:"state"`
	LastSeen     time.Time `json:"last_seen"`
}

// ProposalSnapshot is one Consensus proposal's persisted form.
type ProposalSnapshot struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Proposer string `json:"proposer"`
	State    int    `json:"state"`
}

// Snapshot is the Federation Service's full restart payload (spec §6,
// EXPANSION 4.G), hash-chained like the teacher's StateSnapshot
// (`{version, round, global_model_hash, budget, previous_hash, hash}`).
type Snapshot struct {
	Version           int                `json:"version"`
	Timestamp         time.Time          `json:"timestamp"`
	Round             int                `json:"round"`
	GlobalModelHash   string             `json:"global_model_hash"`
	GlobalModel       types.GlobalModel  `json:"global_model"`
	Budget            types.PrivacyBudget `json:"budget"`
	AuditLog          []types.AuditEntry `json:"audit_log"`
	Peers             []PeerSnapshot     `json:"peers"`
	ConsensusHistory  []ProposalSnapshot `json:"consensus_history"`
	PreviousHash      string             `json:"previous_hash"`
	Hash              string             `json:"hash"`
}

// BuildSnapshot assembles and hash-chains a new Snapshot; previousHash
// should be the Hash of the last persisted snapshot, or "" for the
// first one.
func BuildSnapshot(round int, globalModel types.GlobalModel, budget types.PrivacyBudget, auditLog []types.AuditEntry, peers []PeerSnapshot, history []ProposalSnapshot, previousHash string, now time.Time) (Snapshot, error) {
	modelHash, err := hashGlobalModel(globalModel)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Version:          CurrentVersion,
		Timestamp:        now,
		Round:            round,
		GlobalModelHash:  modelHash,
		GlobalModel:      globalModel,
		Budget:           budget,
		AuditLog:         auditLog,
		Peers:            peers,
		ConsensusHistory: history,
		PreviousHash:     previousHash,
	}
	hash, err := hashSnapshot(snap)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Hash = hash
	return snap, nil
}

// VerifyChain checks that snap's own Hash matches its recomputed
// content hash (spec §3 EXPANSION: "tamper-evident snapshot chain").
func VerifyChain(snap Snapshot) (bool, error) {
	want := snap.Hash
	snap.Hash = ""
	got, err := hashSnapshot(snap)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func hashGlobalModel(m types.GlobalModel) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", errs.New(errs.InvalidInput, "store.hashGlobalModel", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func hashSnapshot(snap Snapshot) (string, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return "", errs.New(errs.InvalidInput, "store.hashSnapshot", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
