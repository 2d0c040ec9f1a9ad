// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package types

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomBase36 returns an n-character random string drawn uniformly from
// the base-36 alphabet, per the message/proposal ID grammar (spec §6).
func randomBase36(n int) string {
	out := make([]byte, n)
	alphabetLen := big.NewInt(int64(len(base36Alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand failing is unrecoverable; panic mirrors the
			// stdlib's own behavior for crypto/rand exhaustion.
			panic(fmt.Sprintf("types: crypto/rand unavailable: %v", err))
		}
		out[i] = base36Alphabet[idx.Int64()]
	}
	return string(out)
}

// NewMessageID builds a message ID: <sender_id>_<unix_millis>_<9-char-base36-random>.
func NewMessageID(senderID string, unixMillis int64) string {
	return fmt.Sprintf("%s_%d_%s", senderID, unixMillis, randomBase36(9))
}

// NewProposalID builds a proposal ID: proposal_<proposer>_<unix_millis>_<9-char-base36-random>.
func NewProposalID(proposer string, unixMillis int64) string {
	return fmt.Sprintf("proposal_%s_%d_%s", proposer, unixMillis, randomBase36(9))
}

// NewRoundID builds a round ID: round_<coordinator>_<unix_millis>_<9-char-base36-random>.
func NewRoundID(coordinatorID string, unixMillis int64) string {
	return fmt.Sprintf("round_%s_%d_%s", coordinatorID, unixMillis, randomBase36(9))
}
