// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package transport provides a concrete libp2p-backed implementation of
// the fabric.Transport contract (spec §4.E: "wire is provided by an
// external Transport capability... MUST preserve message boundaries").
// It is exercised only by integration wiring, never by the Fabric core's
// unit tests — those run against fabric.InMemory (spec §8).
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
)

const protocolID = protocol.ID("/fedlearn/fabric/1.0.0")

// maxFrameSize bounds one message's wire size; spec §4.E leaves framing
// to the Transport, so this adapter length-prefixes frames itself.
const maxFrameSize = 16 << 20

// Libp2p is a Transport backed by a libp2p host: direct length-prefixed
// streams for unicast Send, and a gossipsub topic (one per network_id)
// peers can additionally publish discovery/heartbeat traffic to.
type Libp2p struct {
	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	mu      sync.Mutex
	handler func(payload []byte)
}

// New starts a libp2p host listening on listenAddrs, joins the
// gossipsub topic for networkID, and registers the Fabric's stream
// protocol handler.
func New(ctx context.Context, networkID string, listenAddrs []string) (*Libp2p, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddrs...))
	if err != nil {
		return nil, errs.New(errs.TransportError, "transport.New", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, errs.New(errs.TransportError, "transport.New", err)
	}
	topic, err := ps.Join("fedlearn/" + networkID)
	if err != nil {
		h.Close()
		return nil, errs.New(errs.TransportError, "transport.New", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		return nil, errs.New(errs.TransportError, "transport.New", err)
	}

	t := &Libp2p{host: h, topic: topic, sub: sub}
	h.SetStreamHandler(protocolID, t.handleStream)
	go t.readTopic(ctx)
	return t, nil
}

// Host exposes the underlying libp2p host, e.g. for printing this
// instance's dialable multiaddrs at startup.
func (t *Libp2p) Host() host.Host { return t.host }

// Send dials peerEndpoint (a full "/ip4/.../p2p/<id>" multiaddr) and
// writes one length-prefixed frame over a dedicated stream.
func (t *Libp2p) Send(ctx context.Context, peerEndpoint string, payload []byte) error {
	addr, err := multiaddr.NewMultiaddr(peerEndpoint)
	if err != nil {
		return errs.New(errs.InvalidInput, "transport.Send", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return errs.New(errs.InvalidInput, "transport.Send", err)
	}
	if err := t.host.Connect(ctx, *info); err != nil {
		return errs.New(errs.TransportError, "transport.Send", err)
	}
	stream, err := t.host.NewStream(ctx, info.ID, protocolID)
	if err != nil {
		return errs.New(errs.TransportError, "transport.Send", err)
	}
	defer stream.Close()
	if err := writeFrame(stream, payload); err != nil {
		stream.Reset()
		return errs.New(errs.TransportError, "transport.Send", err)
	}
	return nil
}

// Broadcast publishes payload to this network's gossipsub topic, for
// callers that want fan-out without a per-peer Send loop.
func (t *Libp2p) Broadcast(ctx context.Context, payload []byte) error {
	if err := t.topic.Publish(ctx, payload); err != nil {
		return errs.New(errs.TransportError, "transport.Broadcast", err)
	}
	return nil
}

// Subscribe registers the single handler invoked for every inbound
// frame, whether received over a direct stream or the gossipsub topic.
func (t *Libp2p) Subscribe(handler func(payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *Libp2p) handleStream(s network.Stream) {
	defer s.Close()
	payload, err := readFrame(s)
	if err != nil {
		s.Reset()
		return
	}
	t.dispatch(payload)
}

func (t *Libp2p) readTopic(ctx context.Context) {
	for {
		msg, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}
		t.dispatch(msg.Data)
	}
}

func (t *Libp2p) dispatch(payload []byte) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds max %d", len(payload), maxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts down the host and releases the topic subscription.
func (t *Libp2p) Close() error {
	t.sub.Cancel()
	if err := t.topic.Close(); err != nil {
		return err
	}
	return t.host.Close()
}
