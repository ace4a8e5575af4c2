package saga

import "context"

// Outcome is the explicit result of dispatching a response event into a
// saga step. Benign races are outcomes, not errors, so callers branch
// instead of unwinding through error type ladders.
type Outcome int

const (
	// OutcomeApplied means the domain mutation and the outbox transition
	// happened in this call.
	OutcomeApplied Outcome = iota

	// OutcomeAlreadyProcessed means no outbox row matched the expected
	// saga status: a duplicate or stale delivery that was already handled.
	OutcomeAlreadyProcessed

	// OutcomeConflict means another writer won an optimistic-concurrency
	// race (version mismatch or duplicate outbox insert). The delivery can
	// be retried or discarded; the winning writer did the work.
	OutcomeConflict

	// OutcomeNotFound means the owned aggregate is gone, typically because
	// a parallel compensating flow already resolved it.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "APPLIED"
	case OutcomeAlreadyProcessed:
		return "ALREADY_PROCESSED"
	case OutcomeConflict:
		return "CONFLICT"
	case OutcomeNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Step is the orchestration contract implemented once per saga transition.
// Process drives the forward leg for a successful response, Rollback the
// compensation for a failed one. Both are expected to run inside one
// atomic unit covering the aggregate mutation and the outbox writes, and
// both must be idempotent: a missing guard row means the event was
// already handled and the call returns OutcomeAlreadyProcessed.
type Step[T any] interface {
	Process(ctx context.Context, response T) (Outcome, error)
	Rollback(ctx context.Context, response T) (Outcome, error)
}
