package ledger

import (
	"errors"
	"fmt"
)

// Error classes. Every operation failure wraps exactly one of these so the
// transport layer can map it to a status code with errors.Is. Role checks
// (oracle-only, admin-only) happen at the transport boundary, not here.
var (
	// ErrValidation: caller mistake, retryable with corrected input.
	ErrValidation = errors.New("validation")
	// ErrState: the operation is illegal in the current phase or round
	// state. Routine, not exceptional.
	ErrState = errors.New("state")
	// ErrNotFound: unknown player or round.
	ErrNotFound = errors.New("not found")
	// ErrInternal: persistence or arithmetic failure; nothing was mutated.
	ErrInternal = errors.New("internal")
)

// Validation errors.
var (
	ErrInvalidBunker  = fmt.Errorf("%w: invalid bunker id", ErrValidation)
	ErrBelowMinimum   = fmt.Errorf("%w: stake below join minimum", ErrValidation)
	ErrZeroAmount     = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountRange    = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrNotAdjacent    = fmt.Errorf("%w: bunkers are not adjacent", ErrValidation)
	ErrBadBinding     = fmt.Errorf("%w: proof binding mismatch", ErrValidation)
	ErrBadProof       = fmt.Errorf("%w: proof rejected", ErrValidation)
	ErrCustodyRefused = fmt.Errorf("%w: custody transfer refused", ErrValidation)
)

// State errors.
var (
	ErrWrongPhase        = fmt.Errorf("%w: operation illegal in current phase", ErrState)
	ErrResolveGap        = fmt.Errorf("%w: round closed but not yet resolved", ErrState)
	ErrBunkerDestroyed   = fmt.Errorf("%w: bunker is destroyed", ErrState)
	ErrBunkerAlive       = fmt.Errorf("%w: bunker is not destroyed", ErrState)
	ErrAlreadyPositioned = fmt.Errorf("%w: player already positioned", ErrState)
	ErrNotPositioned     = fmt.Errorf("%w: player not positioned", ErrState)
	ErrAlreadyActed      = fmt.Errorf("%w: player already acted this round", ErrState)
	ErrRoundNotOpen      = fmt.Errorf("%w: no open round", ErrState)
	ErrRoundNotClosed    = fmt.Errorf("%w: round window still open", ErrState)
	ErrAlreadyResolved   = fmt.Errorf("%w: round already resolved", ErrState)
	ErrPriorUnresolved   = fmt.Errorf("%w: prior round not resolved", ErrState)
	ErrCleanupPending    = fmt.Errorf("%w: destroyed bunker still has members", ErrState)
	ErrGraceNotElapsed   = fmt.Errorf("%w: grace period has not elapsed", ErrState)
	ErrReserveExhausted  = fmt.Errorf("%w: reserve exhausted, game ended", ErrState)
	ErrWrongRound        = fmt.Errorf("%w: not the current round", ErrState)
)

// Not-found errors.
var (
	ErrNoPlayer = fmt.Errorf("%w: unknown player", ErrNotFound)
	ErrNoRound  = fmt.Errorf("%w: unknown round", ErrNotFound)
	ErrNoAudit  = fmt.Errorf("%w: round has no audit entry", ErrNotFound)
)

// Internal errors.
var (
	ErrPersist       = fmt.Errorf("%w: persist failed", ErrInternal)
	ErrIndexOverflow = fmt.Errorf("%w: share index overflow", ErrInternal)
)
