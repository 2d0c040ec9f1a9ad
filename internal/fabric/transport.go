// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package fabric

import (
	"context"
	"sync"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
)

// Transport is the external wire capability the Fabric is built
// against (spec §4.E: "wire is provided by an external Transport
// capability... the Fabric does not specify TCP/UDP/WebRTC — but it
// MUST preserve message boundaries"). A concrete libp2p adapter lives
// in internal/fabric/transport; the core is tested against InMemory
// below.
type Transport interface {
	Send(ctx context.Context, peerEndpoint string, payload []byte) error
	Subscribe(handler func(payload []byte))
}

// inMemoryHub is the shared routing table behind a set of InMemory
// transport handles, letting Fabric's core logic be exercised without
// a real network (spec §8: "the core is tested against an in-memory
// Transport fake").
type inMemoryHub struct {
	mu      sync.Mutex
	inboxes map[string]func(payload []byte)
}

// NewInMemoryHub creates a shared routing table; call Endpoint for each
// participating instance to obtain its Transport handle.
func NewInMemoryHub() *inMemoryHub {
	return &inMemoryHub{inboxes: make(map[string]func(payload []byte))}
}

// Endpoint returns a Transport bound to addr within this hub.
func (h *inMemoryHub) Endpoint(addr string) *InMemory {
	return &InMemory{hub: h, selfAddr: addr}
}

// InMemory is one instance's Transport handle onto a shared hub.
type InMemory struct {
	hub      *inMemoryHub
	selfAddr string
}

func (t *InMemory) Send(_ context.Context, peerEndpoint string, payload []byte) error {
	t.hub.mu.Lock()
	handler, ok := t.hub.inboxes[peerEndpoint]
	t.hub.mu.Unlock()
	if !ok {
		return errs.New(errs.TransportError, "fabric.InMemory.Send", nil)
	}
	handler(payload)
	return nil
}

func (t *InMemory) Subscribe(handler func(payload []byte)) {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	t.hub.inboxes[t.selfAddr] = handler
}
