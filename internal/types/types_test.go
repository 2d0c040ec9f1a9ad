// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package types

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessageIDGrammar(t *testing.T) {
	id := NewMessageID("node-1", 1700000000000)
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("expected 3 underscore-separated parts, got %d: %q", len(parts), id)
	}
	if parts[0] != "node-1" {
		t.Errorf("sender segment = %q, want node-1", parts[0])
	}
	if parts[1] != "1700000000000" {
		t.Errorf("timestamp segment = %q, want 1700000000000", parts[1])
	}
	if len(parts[2]) != 9 {
		t.Errorf("random segment length = %d, want 9", len(parts[2]))
	}
}

func TestNewProposalIDGrammar(t *testing.T) {
	id := NewProposalID("node-1", 1700000000000)
	if !strings.HasPrefix(id, "proposal_node-1_1700000000000_") {
		t.Fatalf("unexpected proposal id shape: %q", id)
	}
	suffix := strings.TrimPrefix(id, "proposal_node-1_1700000000000_")
	if len(suffix) != 9 {
		t.Errorf("random segment length = %d, want 9", len(suffix))
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID("n", int64(i))
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestWeightTensorSameShape(t *testing.T) {
	a := WeightTensor{Layers: []Layer{{1, 2}, {3, 4, 5}}}
	b := WeightTensor{Layers: []Layer{{9, 9}, {0, 0, 0}}}
	if !a.SameShape(b) {
		t.Error("expected identical shapes to match")
	}
	c := WeightTensor{Layers: []Layer{{1, 2}, {3, 4}}}
	if a.SameShape(c) {
		t.Error("expected differing single-scalar layer length to mismatch")
	}
}

func TestWeightTensorCloneIsDeep(t *testing.T) {
	a := WeightTensor{Layers: []Layer{{1, 2, 3}}}
	b := a.Clone()
	b.Layers[0][0] = 99
	if a.Layers[0][0] == 99 {
		t.Fatal("Clone aliased the original layer")
	}
}

func TestSignableBytesSortsKeysAndExcludesSignature(t *testing.T) {
	msg := NetworkMessage{
		ID:        "sender_123_abcdefghi",
		Type:      MessageHeartbeat,
		Sender:    "sender",
		Payload:   []byte("hi"),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Nonce:     "nonce-1",
		Signature: []byte("should-not-appear"),
	}
	b, err := msg.SignableBytes()
	if err != nil {
		t.Fatalf("SignableBytes: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "should-not-appear") {
		t.Error("SignableBytes leaked the signature field")
	}
	// Keys must appear in lexicographic order.
	idIdx := strings.Index(s, `"id"`)
	nonceIdx := strings.Index(s, `"nonce"`)
	payloadIdx := strings.Index(s, `"payload"`)
	senderIdx := strings.Index(s, `"sender"`)
	timestampIdx := strings.Index(s, `"timestamp"`)
	typeIdx := strings.Index(s, `"type"`)
	if !(idIdx < nonceIdx && nonceIdx < payloadIdx && payloadIdx < senderIdx &&
		senderIdx < timestampIdx && timestampIdx < typeIdx) {
		t.Errorf("keys not in sorted order: %s", s)
	}
}

func TestSignableBytesDeterministic(t *testing.T) {
	msg := NetworkMessage{
		ID:        "a_1_bcdefghij",
		Type:      MessageAnnouncement,
		Sender:    "a",
		Payload:   []byte{1, 2, 3},
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Nonce:     "n",
	}
	b1, _ := msg.SignableBytes()
	b2, _ := msg.SignableBytes()
	if string(b1) != string(b2) {
		t.Error("SignableBytes is not deterministic across calls")
	}
}

func TestParseAggregationStrategy(t *testing.T) {
	cases := map[string]AggregationStrategy{
		"fedavg":               FedAvg,
		"secure_agg":           SecureAgg,
		"differential_private": DPFedAvg,
	}
	for in, want := range cases {
		got, ok := ParseAggregationStrategy(in)
		if !ok || got != want {
			t.Errorf("ParseAggregationStrategy(%q) = %v, %v; want %v, true", in, got, ok, want)
		}
	}
	if _, ok := ParseAggregationStrategy("bogus"); ok {
		t.Error("expected bogus strategy to fail parsing")
	}
}
