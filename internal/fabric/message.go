// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package fabric

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"math/big"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// Identity is an instance's ECDSA-P256 key pair, generated once at
// startup (spec §4.E: "Each instance owns one ECDSA-P256 key pair
// generated at startup"). Grounded on internal/crypto/secure_comm.go's
// NewSecureChannel key generation.
type Identity struct {
	Private *ecdsa.PrivateKey
}

// NewIdentity generates a fresh P-256 key pair.
func NewIdentity() (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "fabric.NewIdentity", err)
	}
	return &Identity{Private: priv}, nil
}

// PublicKey returns the identity's public key.
func (id *Identity) PublicKey() *ecdsa.PublicKey {
	return &id.Private.PublicKey
}

type ecdsaSignature struct {
	R, S *big.Int
}

// Sign produces an ECDSA-P256 signature over msg's canonical
// serialization (spec §4.E / §6 invariant 6), writing it into
// msg.Signature and returning the signed message.
func (id *Identity) Sign(msg types.NetworkMessage) (types.NetworkMessage, error) {
	digest, err := signableDigest(msg)
	if err != nil {
		return msg, err
	}
	r, s, err := ecdsa.Sign(rand.Reader, id.Private, digest)
	if err != nil {
		return msg, errs.New(errs.InvalidInput, "fabric.Sign", err)
	}
	sig, err := asn1MarshalSignature(r, s)
	if err != nil {
		return msg, errs.New(errs.InvalidInput, "fabric.Sign", err)
	}
	msg.Signature = sig
	return msg, nil
}

// Verify checks msg.Signature against pub over msg's canonical
// serialization minus the signature field (spec §6 invariant 6).
func Verify(msg types.NetworkMessage, pub *ecdsa.PublicKey) bool {
	digest, err := signableDigest(msg)
	if err != nil {
		return false
	}
	r, s, err := asn1UnmarshalSignature(msg.Signature)
	if err != nil {
		return false
	}
	return ecdsa.Verify(pub, digest, r, s)
}

func signableDigest(msg types.NetworkMessage) ([]byte, error) {
	b, err := msg.SignableBytes()
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "fabric.signableDigest", err)
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

func asn1MarshalSignature(r, s *big.Int) ([]byte, error) {
	return asn1.Marshal(ecdsaSignature{R: r, S: s})
}

func asn1UnmarshalSignature(b []byte) (*big.Int, *big.Int, error) {
	var sig ecdsaSignature
	if _, err := asn1.Unmarshal(b, &sig); err != nil {
		return nil, nil, err
	}
	return sig.R, sig.S, nil
}

// EncodePublicKey marshals pub to PKIX/DER, e.g. for inclusion in an
// announcement payload or a persisted peer-table snapshot (spec §4.E).
// Grounded on internal/crypto/secure_comm.go's x509.MarshalPKIXPublicKey
// usage.
func EncodePublicKey(pub *ecdsa.PublicKey) []byte {
	b, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil
	}
	return b
}

func encodePublicKey(pub *ecdsa.PublicKey) []byte { return EncodePublicKey(pub) }

// DecodePublicKey parses a PKIX/DER-encoded public key.
func DecodePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "fabric.DecodePublicKey", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errs.New(errs.InvalidInput, "fabric.decodePublicKey", nil)
	}
	return ecdsaPub, nil
}

func decodePublicKey(der []byte) (*ecdsa.PublicKey, error) { return DecodePublicKey(der) }
