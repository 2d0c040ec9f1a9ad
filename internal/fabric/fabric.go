// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package fabric

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

const (
	heartbeatInterval = 30 * time.Second
	inactiveAfter     = 90 * time.Second
	removedAfter      = 300 * time.Second
	messageTimeout    = 10 * time.Second
	maxRetries        = 3
	discoveryInterval = 60 * time.Second
	defaultCapacity   = 4096
)

// retryItem is one pending redelivery (spec §4.E retries).
type retryItem struct {
	peerID      string
	endpoint    string
	msg         types.NetworkMessage
	retryCount  int
	nextAttempt time.Time
}

// Fabric is the Communication Fabric (spec §4.E).
type Fabric struct {
	mu           sync.Mutex
	id           string
	networkID    string
	identity     *Identity
	transport    Transport
	peers        *peerRegistry
	handlers     map[types.MessageType][]func(types.NetworkMessage)
	retryQueue   []retryItem
	metrics      *Metrics
	now          func() time.Time
	capabilities []string
}

// Option configures a Fabric at construction.
type Option func(*Fabric)

func WithClock(now func() time.Time) Option {
	return func(f *Fabric) { f.now = now }
}

func WithCapacity(n int) Option {
	return func(f *Fabric) { f.peers = newPeerRegistry(n) }
}

// New creates a Fabric bound to id's identity and transport.
func New(id string, identity *Identity, transport Transport, metrics *Metrics, opts ...Option) *Fabric {
	f := &Fabric{
		id:        id,
		identity:  identity,
		transport: transport,
		peers:     newPeerRegistry(defaultCapacity),
		handlers:  make(map[types.MessageType][]func(types.NetworkMessage)),
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.transport.Subscribe(f.handleRaw)
	f.OnMessage(types.MessageAnnouncement, f.handleAnnouncement)
	return f
}

// handleAnnouncement learns or refreshes a peer from an inbound
// announcement (spec §4.E: "New peers are added with reputation 1.0").
// The sender's transport endpoint is taken to be its instance ID — the
// same convention the InMemory hub and any real adapter must honor.
func (f *Fabric) handleAnnouncement(msg types.NetworkMessage) {
	var body announcementBody
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		return
	}
	pub, err := decodePublicKey(body.PublicKey)
	if err != nil {
		return
	}
	f.mu.Lock()
	existing, ok := f.peers.get(msg.Sender)
	reputation := 1.0
	if ok {
		reputation = existing.Reputation
	}
	f.peers.upsert(&PeerRecord{
		ID:           msg.Sender,
		Endpoint:     msg.Sender,
		PublicKey:    pub,
		Capabilities: body.Capabilities,
		Reputation:   reputation,
		State:        PeerActive,
		LastSeen:     f.now(),
	})
	f.mu.Unlock()
}

// Register joins network_id and sends a discovery broadcast to the
// given bootstrap endpoints (spec §4.E).
func (f *Fabric) Register(networkID string, discoveryNodes []string) error {
	f.mu.Lock()
	f.networkID = networkID
	f.mu.Unlock()

	msg, err := f.buildMessage(types.MessageDiscovery, nil, nil)
	if err != nil {
		return err
	}
	for _, endpoint := range discoveryNodes {
		if err := f.transport.Send(context.Background(), endpoint, mustEncode(msg)); err != nil {
			if f.metrics != nil {
				f.metrics.FailedConnections.Inc()
			}
		}
	}
	return nil
}

// announcementBody is an Announcement message's payload shape: the
// sender's capabilities and the public key a receiver that does not
// yet know this peer can verify the enclosing signature against.
type announcementBody struct {
	Capabilities []string `json:"capabilities"`
	PublicKey    []byte   `json:"public_key"`
}

func announcementPayload(capabilities []string, pub *ecdsa.PublicKey) ([]byte, error) {
	b, err := json.Marshal(announcementBody{Capabilities: capabilities, PublicKey: encodePublicKey(pub)})
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "fabric.announcementPayload", err)
	}
	return b, nil
}

// Announce broadcasts this instance's capabilities and public key
// (spec §4.E).
func (f *Fabric) Announce(capabilities []string) error {
	f.mu.Lock()
	f.capabilities = capabilities
	f.mu.Unlock()

	payload, err := announcementPayload(capabilities, f.identity.PublicKey())
	if err != nil {
		return err
	}
	msg, err := f.buildMessage(types.MessageAnnouncement, nil, payload)
	if err != nil {
		return err
	}
	return f.Broadcast(msg)
}

// Broadcast signs msg and delivers it to every active peer (spec §4.E).
func (f *Fabric) Broadcast(msg types.NetworkMessage) error {
	signed, err := f.identity.Sign(msg)
	if err != nil {
		return err
	}
	f.mu.Lock()
	peers := f.peers.all()
	f.mu.Unlock()

	var lastErr error
	for _, p := range peers {
		if p.State == PeerRemoved {
			continue
		}
		if err := f.deliver(p.ID, p.Endpoint, signed); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Send signs msg and delivers it to one peer, enqueueing a retry on
// transport failure (spec §4.E).
func (f *Fabric) Send(peerID string, msg types.NetworkMessage) error {
	f.mu.Lock()
	p, ok := f.peers.get(peerID)
	f.mu.Unlock()
	if !ok {
		return errs.New(errs.UnknownPeer, "fabric.Send", nil)
	}
	signed, err := f.identity.Sign(msg)
	if err != nil {
		return err
	}
	return f.deliver(p.ID, p.Endpoint, signed)
}

func (f *Fabric) deliver(peerID, endpoint string, signed types.NetworkMessage) error {
	err := f.transport.Send(context.Background(), endpoint, mustEncode(signed))
	if err != nil {
		if f.metrics != nil {
			f.metrics.FailedConnections.Inc()
		}
		f.mu.Lock()
		f.retryQueue = append(f.retryQueue, retryItem{
			peerID:      peerID,
			endpoint:    endpoint,
			msg:         signed,
			retryCount:  0,
			nextAttempt: f.now().Add(messageTimeout),
		})
		f.mu.Unlock()
		return errs.New(errs.TransportError, "fabric.deliver", err)
	}
	if f.metrics != nil {
		f.metrics.MessagesSent.Inc()
	}
	return nil
}

// DrainRetries attempts every due retry once; called from the retry
// loop or directly in tests (spec §4.E: retry after MESSAGE_TIMEOUT up
// to MAX_RETRIES), then drops the message and counts it in MessagesFailed.
func (f *Fabric) DrainRetries() {
	f.mu.Lock()
	due := make([]retryItem, 0, len(f.retryQueue))
	remaining := f.retryQueue[:0]
	now := f.now()
	for _, item := range f.retryQueue {
		if now.Before(item.nextAttempt) {
			remaining = append(remaining, item)
			continue
		}
		due = append(due, item)
	}
	f.retryQueue = remaining
	f.mu.Unlock()

	for _, item := range due {
		err := f.transport.Send(context.Background(), item.endpoint, mustEncode(item.msg))
		if err == nil {
			if f.metrics != nil {
				f.metrics.MessagesSent.Inc()
			}
			continue
		}
		item.retryCount++
		if item.retryCount >= maxRetries {
			if f.metrics != nil {
				f.metrics.MessagesFailed.Inc()
			}
			continue
		}
		item.nextAttempt = f.now().Add(messageTimeout)
		f.mu.Lock()
		f.retryQueue = append(f.retryQueue, item)
		f.mu.Unlock()
	}
}

// OnMessage registers a handler for inbound messages of msgType (spec
// §4.E "dispatch inbound messages by type after signature
// verification").
func (f *Fabric) OnMessage(msgType types.MessageType, handler func(types.NetworkMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[msgType] = append(f.handlers[msgType], handler)
}

// handleRaw is the Transport inbound callback.
func (f *Fabric) handleRaw(payload []byte) {
	msg, err := decode(payload)
	if err != nil {
		return
	}
	_ = f.HandleInbound(msg)
}

// HandleInbound verifies and dispatches one inbound message (spec
// §4.E). Unknown senders are dropped (UnknownPeer) unless the message
// is a self-signed Announcement, the one case where the peer is, by
// construction, still unknown — it carries its own public key and is
// verified against that instead, then handed to handleAnnouncement to
// be registered. Bad signatures are always dropped (SignatureInvalid).
// Both drops are returned as errors and never replied to; handleRaw,
// the Transport callback, discards the error without logging it.
func (f *Fabric) HandleInbound(msg types.NetworkMessage) error {
	f.mu.Lock()
	peer, ok := f.peers.get(msg.Sender)
	f.mu.Unlock()

	var verifyKey *ecdsa.PublicKey
	switch {
	case ok:
		verifyKey = peer.PublicKey
	case msg.Type == types.MessageAnnouncement:
		var body announcementBody
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			return errs.New(errs.InvalidInput, "fabric.HandleInbound", err)
		}
		pub, err := decodePublicKey(body.PublicKey)
		if err != nil {
			return err
		}
		verifyKey = pub
	default:
		return errs.New(errs.UnknownPeer, "fabric.HandleInbound", nil)
	}

	if !Verify(msg, verifyKey) {
		return errs.New(errs.SignatureInvalid, "fabric.HandleInbound", nil)
	}

	if ok {
		f.mu.Lock()
		peer.LastSeen = f.now()
		peer.State = PeerActive
		f.mu.Unlock()
	}

	f.mu.Lock()
	handlers := append([]func(types.NetworkMessage){}, f.handlers[msg.Type]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// RegisterPeer inserts or refreshes a peer record directly (used on
// announcement receipt and by tests); new peers start at reputation 1.0
// and state active (spec §4.E: "New peers are added with reputation
// 1.0").
func (f *Fabric) RegisterPeer(p *PeerRecord) {
	if p.Reputation == 0 {
		p.Reputation = 1.0
	}
	p.LastSeen = f.now()
	p.State = PeerActive
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers.upsert(p)
}

// RemovePeer immediately removes a peer (spec §4.E: "on opted_out or
// departing announcements: immediate removal").
func (f *Fabric) RemovePeer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers.remove(id)
}

// Peers returns a snapshot of the current peer table, for Consensus's
// per-proposal read and the Store's restart payload (spec §5: "Peer
// table is owned by the Fabric; Consensus reads a consistent snapshot
// per proposal").
func (f *Fabric) Peers() []PeerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.peers.all()
	out := make([]PeerRecord, len(all))
	for i, p := range all {
		out[i] = *p
	}
	return out
}

// SweepLiveness transitions peers by silence duration: inactive after
// 90s, removed after 300s (spec §4.E).
func (f *Fabric) SweepLiveness() (removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for _, p := range f.peers.all() {
		silence := now.Sub(p.LastSeen)
		switch {
		case silence >= removedAfter:
			f.peers.remove(p.ID)
			removed = append(removed, p.ID)
		case silence >= inactiveAfter:
			p.State = PeerInactive
		}
	}
	sort.Strings(removed)
	if f.metrics != nil {
		active := 0
		for _, p := range f.peers.all() {
			if p.State == PeerActive {
				active++
			}
		}
		f.metrics.PeersActive.Set(float64(active))
	}
	return removed
}

// Heartbeat broadcasts a liveness signal (spec §4.E: "Heartbeat every
// 30s").
func (f *Fabric) Heartbeat() error {
	msg, err := f.buildMessage(types.MessageHeartbeat, nil, nil)
	if err != nil {
		return err
	}
	return f.Broadcast(msg)
}

// Run drives the Fabric's timed work (heartbeat, discovery, retry
// drain, liveness sweep) from one select loop over four tickers on the
// calling goroutine, following the teacher's
// island.Manager.monitorConnectivity ticker+ctx.Done() select shape
// (spec §5 EXPANSION), until ctx is cancelled.
func (f *Fabric) Run(ctx context.Context) {
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	discoveryTicker := time.NewTicker(discoveryInterval)
	retryTicker := time.NewTicker(messageTimeout)
	livenessTicker := time.NewTicker(inactiveAfter / 3)
	defer heartbeatTicker.Stop()
	defer discoveryTicker.Stop()
	defer retryTicker.Stop()
	defer livenessTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			f.Heartbeat()
		case <-discoveryTicker.C:
			f.runDiscovery()
		case <-retryTicker.C:
			f.DrainRetries()
		case <-livenessTicker.C:
			f.SweepLiveness()
		}
	}
}

func (f *Fabric) runDiscovery() {
	msg, err := f.buildMessage(types.MessageDiscovery, nil, nil)
	if err != nil {
		return
	}
	f.Broadcast(msg)
}

func (f *Fabric) buildMessage(msgType types.MessageType, recipients []string, payload []byte) (types.NetworkMessage, error) {
	now := f.now()
	msg := types.NetworkMessage{
		ID:         types.NewMessageID(f.id, now.UnixMilli()),
		Type:       msgType,
		Sender:     f.id,
		Recipients: recipients,
		Payload:    payload,
		Timestamp:  now,
		Nonce:      types.NewMessageID(f.id, now.UnixMilli()),
	}
	return msg, nil
}

func mustEncode(msg types.NetworkMessage) []byte {
	b, _ := json.Marshal(wireForm{
		ID:         msg.ID,
		Type:       int(msg.Type),
		Sender:     msg.Sender,
		Recipients: msg.Recipients,
		Payload:    msg.Payload,
		Timestamp:  msg.Timestamp,
		Nonce:      msg.Nonce,
		Signature:  msg.Signature,
	})
	return b
}

func decode(raw []byte) (types.NetworkMessage, error) {
	var w wireForm
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.NetworkMessage{}, errs.New(errs.InvalidInput, "fabric.decode", err)
	}
	return types.NetworkMessage{
		ID:         w.ID,
		Type:       types.MessageType(w.Type),
		Sender:     w.Sender,
		Recipients: w.Recipients,
		Payload:    w.Payload,
		Timestamp:  w.Timestamp,
		Nonce:      w.Nonce,
		Signature:  w.Signature,
	}, nil
}

// wireForm is the over-the-wire JSON envelope. Unlike
// NetworkMessage.SignableBytes (sorted-key, signature excluded, used
// only to compute the signed digest), this is the full message
// including the signature, transported as-is by Transport.Send.
type wireForm struct {
	ID         string    `json:"id"`
	Type       int       `json:"type"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients,omitempty"`
	Payload    []byte    `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
	Nonce      string    `json:"nonce"`
	Signature  []byte    `json:"signature"`
}
