// Copyright 2026 Sovereign-Mohawk Core Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the core's error kinds. Every failure mode a caller
// needs to branch on is represented as a Kind rather than a string message.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds of the error handling design (spec §7).
type Kind int

const (
	_ Kind = iota
	InvalidInput
	InvalidUpdate
	ShapeMismatch
	BudgetExhausted
	QuorumShort
	AlreadyVoted
	SignatureInvalid
	UnknownPeer
	TransportError
	Timeout
	ConfigInvalid
	Shutdown
	NotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case InvalidUpdate:
		return "InvalidUpdate"
	case ShapeMismatch:
		return "ShapeMismatch"
	case BudgetExhausted:
		return "BudgetExhausted"
	case QuorumShort:
		return "QuorumShort"
	case AlreadyVoted:
		return "AlreadyVoted"
	case SignatureInvalid:
		return "SignatureInvalid"
	case UnknownPeer:
		return "UnknownPeer"
	case TransportError:
		return "TransportError"
	case Timeout:
		return "Timeout"
	case ConfigInvalid:
		return "ConfigInvalid"
	case Shutdown:
		return "Shutdown"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the core's error type. Op names the operation that failed
// (e.g. "round.Submit"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, errs.ErrBudgetExhausted) matches any error of that kind
// through the sentinel values below; KindOf is the non-sentinel form.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an *Error for op with the given kind and cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind carried by err, if any, and reports whether one
// was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Sentinels of each kind, for errors.Is(err, errs.ErrBudgetExhausted).
var (
	ErrInvalidInput     = &Error{Kind: InvalidInput, Op: "*"}
	ErrInvalidUpdate    = &Error{Kind: InvalidUpdate, Op: "*"}
	ErrShapeMismatch    = &Error{Kind: ShapeMismatch, Op: "*"}
	ErrBudgetExhausted  = &Error{Kind: BudgetExhausted, Op: "*"}
	ErrQuorumShort      = &Error{Kind: QuorumShort, Op: "*"}
	ErrAlreadyVoted     = &Error{Kind: AlreadyVoted, Op: "*"}
	ErrSignatureInvalid = &Error{Kind: SignatureInvalid, Op: "*"}
	ErrUnknownPeer      = &Error{Kind: UnknownPeer, Op: "*"}
	ErrTransportError   = &Error{Kind: TransportError, Op: "*"}
	ErrTimeout          = &Error{Kind: Timeout, Op: "*"}
	ErrConfigInvalid    = &Error{Kind: ConfigInvalid, Op: "*"}
	ErrShutdown         = &Error{Kind: Shutdown, Op: "*"}
	ErrNotFound         = &Error{Kind: NotFound, Op: "*"}
)
