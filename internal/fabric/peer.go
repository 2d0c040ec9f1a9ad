// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package fabric implements the Communication Fabric (spec §4.E):
// signed peer-to-peer messaging, peer lifecycle tracking, heartbeats,
// discovery, and retried delivery over an external Transport. Grounded
// in shape on internal/p2p/verifier.go's peer registry and
// internal/crypto/secure_comm.go's ECDSA key handling, generalized from
// "verification network" to the full Fabric contract spec.md §4.E
// names.
package fabric

import (
	"crypto/ecdsa"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PeerState is a peer's lifecycle state (spec §4.E).
type PeerState int

const (
	PeerActive PeerState = iota
	PeerInactive
	PeerRemoved
)

func (s PeerState) String() string {
	switch s {
	case PeerActive:
		return "active"
	case PeerInactive:
		return "inactive"
	case PeerRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// PeerRecord is one entry of the Fabric's peer table.
type PeerRecord struct {
	ID           string
	Endpoint     string
	PublicKey    *ecdsa.PublicKey
	Capabilities []string
	Reputation   float64
	State        PeerState
	LastSeen     time.Time
}

// peerRegistry is a bounded, thread-unsafe (guarded by Fabric.mu) table
// of known peers. Capacity is enforced via an LRU so a churning network
// cannot grow the peer table unboundedly; explicit heartbeat-driven
// state transitions (active/inactive/removed) are layered on top and
// are the ones spec.md §4.E actually specifies — the LRU bound is a
// resource safety net, not the liveness mechanism.
type peerRegistry struct {
	cache *lru.Cache[string, *PeerRecord]
}

func newPeerRegistry(capacity int) *peerRegistry {
	cache, err := lru.New[string, *PeerRecord](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; callers always pass a
		// positive, configuration-validated capacity.
		cache, _ = lru.New[string, *PeerRecord](1)
	}
	return &peerRegistry{cache: cache}
}

func (r *peerRegistry) upsert(p *PeerRecord) {
	r.cache.Add(p.ID, p)
}

func (r *peerRegistry) get(id string) (*PeerRecord, bool) {
	return r.cache.Get(id)
}

func (r *peerRegistry) remove(id string) {
	r.cache.Remove(id)
}

func (r *peerRegistry) all() []*PeerRecord {
	return r.cache.Values()
}
