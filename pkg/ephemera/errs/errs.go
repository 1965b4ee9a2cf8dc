// Package errs holds the error taxonomy from spec §7, shared across the
// broadcast, block and engine packages so that callers can type-switch on
// sentinel errors rather than string-matching.
package errs

import "errors"

var (
	// ErrVerificationFailed: signature check rejected. The coordinator
	// absorbs it and counts it in metrics; the submit path returns it to
	// the caller (HTTP 400).
	ErrVerificationFailed = errors.New("ephemera: verification failed")

	// ErrUnknownPeer: message from a PeerId outside the relevant snapshot.
	ErrUnknownPeer = errors.New("ephemera: unknown peer")

	// ErrDuplicateEndorsement: same peer endorsed twice in the same phase.
	ErrDuplicateEndorsement = errors.New("ephemera: duplicate endorsement")

	// ErrQuorumStalled: a Context exceeded its stall timeout.
	ErrQuorumStalled = errors.New("ephemera: quorum stalled")

	// ErrCallbackVeto: the application rejected a transition.
	ErrCallbackVeto = errors.New("ephemera: callback veto")

	// ErrPersistence: storage failed for a committed block. Escalates to
	// fatal — re-delivery semantics cannot be preserved once this happens.
	ErrPersistence = errors.New("ephemera: persistence failure")

	// ErrOverloaded: a bounded channel was full. Surfaced to the caller.
	ErrOverloaded = errors.New("ephemera: overloaded")

	// ErrQueueFull: the block producer's pending queue is at capacity.
	ErrQueueFull = errors.New("ephemera: pending queue full")

	// ErrAlreadyExists: a second store_block for an already-stored hash.
	// Callers treat this as idempotent success.
	ErrAlreadyExists = errors.New("ephemera: block already exists")

	// ErrNotFound: a query against persistence found nothing for the key.
	ErrNotFound = errors.New("ephemera: not found")
)
