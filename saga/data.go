package saga

import (
	"time"

	"github.com/google/uuid"
)

// SagaStatus tracks the progress of a saga instance through its forward
// and compensation legs. It is stored on every outbox row.
type SagaStatus string

const (
	SagaStarted      SagaStatus = "STARTED"
	SagaProcessing   SagaStatus = "PROCESSING"
	SagaSucceeded    SagaStatus = "SUCCEEDED"
	SagaFailed       SagaStatus = "FAILED"
	SagaCompensating SagaStatus = "COMPENSATING"
	SagaCompensated  SagaStatus = "COMPENSATED"
)

// Terminal reports whether no further transition is valid from the status.
func (s SagaStatus) Terminal() bool {
	switch s {
	case SagaSucceeded, SagaFailed, SagaCompensated:
		return true
	}
	return false
}

// TerminalSagaStatuses lists every terminal status, in the order the
// cleaner queries them.
func TerminalSagaStatuses() []SagaStatus {
	return []SagaStatus{SagaSucceeded, SagaFailed, SagaCompensated}
}

// OutboxStatus tracks the delivery state of an outbox row: STARTED until
// the transport acknowledges it, COMPLETED afterwards, FAILED only on a
// permanent publish failure.
type OutboxStatus string

const (
	OutboxStarted   OutboxStatus = "STARTED"
	OutboxCompleted OutboxStatus = "COMPLETED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxMessage is the unit of reliable delivery. A row is written in the
// same local transaction as the domain mutation it announces and relayed
// to the transport later by the Scheduler.
type OutboxMessage struct {
	Id           uuid.UUID
	SagaId       uuid.UUID
	CreatedAt    time.Time
	ProcessedAt  time.Time // zero until the row transitions
	Type         string    // saga family discriminator (e.g. "ORDER_SAGA")
	Payload      []byte    // serialized event body, opaque to the store
	DomainStatus string    // business-status snapshot at write time
	SagaStatus   SagaStatus
	OutboxStatus OutboxStatus
	Version      int64 // optimistic concurrency counter, 0 means not yet persisted
}
