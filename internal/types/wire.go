// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package types

import (
	"encoding/base64"
	"encoding/json"
	"sort"
)

// wireMessage is the canonical, key-sorted JSON shape of a NetworkMessage
// minus its signature (spec §6: "signature is ECDSA-P256 over the
// serialization minus the signature field"). Go's encoding/json already
// marshals struct fields in declaration order, not alphabetical key order,
// so SignableBytes builds the object through a sorted map instead of
// marshaling the struct directly.
type wireMessage struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients,omitempty"`
	Payload    string   `json:"payload"`
	Timestamp  string   `json:"timestamp"`
	Nonce      string   `json:"nonce"`
}

// SignableBytes returns the canonical serialization of m with all fields
// except Signature, sorted by key, UTF-8, ISO-8601 UTC timestamp — the
// exact bytes a sender signs and a receiver verifies against (spec §6,
// invariant 6).
func (m NetworkMessage) SignableBytes() ([]byte, error) {
	fields := map[string]any{
		"id":        m.ID,
		"type":      m.Type.String(),
		"sender":    m.Sender,
		"payload":   base64.StdEncoding.EncodeToString(m.Payload),
		"timestamp": m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"nonce":     m.Nonce,
	}
	if len(m.Recipients) > 0 {
		fields["recipients"] = m.Recipients
	}
	return marshalSortedKeys(fields)
}

// marshalSortedKeys renders m as a JSON object with keys in lexicographic
// order, matching spec §6's "JSON object sorted by key".
func marshalSortedKeys(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
