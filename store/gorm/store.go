package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foodcourt/ordersaga/saga"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolationCode = "23505"

const (
	insertOutboxSqlTmpl   = "INSERT INTO %s (id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)"
	updateOutboxSqlTmpl   = "UPDATE %s SET processed_at=?, domain_status=?, saga_status=?, outbox_status=?, version=version+1 WHERE id=? AND version=?"
	selectByStatusSqlTmpl = "SELECT id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version FROM %s WHERE type=? AND outbox_status=? AND saga_status IN ? ORDER BY created_at ASC"
	selectBySagaIdSqlTmpl = "SELECT id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version FROM %s WHERE type=? AND saga_id=? AND saga_status IN ?"
	deleteByStatusSqlTmpl = "DELETE FROM %s WHERE type=? AND outbox_status=? AND saga_status IN ?"
)

// OutboxStore is a gorm implementation of saga.Store over one saga leg's
// table. When the context carries a *gorm.DB transaction under the
// configured key the statements join that transaction.
type OutboxStore struct {
	txKey  saga.TxKey
	db     *gorm.DB
	logger saga.Logger

	insertSql         string
	updateSql         string
	selectByStatusSql string
	selectBySagaIdSql string
	deleteByStatusSql string
}

var _ saga.Store = (*OutboxStore)(nil)
var _ saga.Loggable = (*OutboxStore)(nil)

func NewOutboxStore(table string, txKey saga.TxKey, db *gorm.DB) *OutboxStore {
	if table == "" {
		panic("table is mandatory")
	}
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if db == nil {
		panic("db is mandatory")
	}
	return &OutboxStore{
		txKey:             txKey,
		db:                db,
		logger:            &saga.NopLogger{},
		insertSql:         fmt.Sprintf(insertOutboxSqlTmpl, table),
		updateSql:         fmt.Sprintf(updateOutboxSqlTmpl, table),
		selectByStatusSql: fmt.Sprintf(selectByStatusSqlTmpl, table),
		selectBySagaIdSql: fmt.Sprintf(selectBySagaIdSqlTmpl, table),
		deleteByStatusSql: fmt.Sprintf(deleteByStatusSqlTmpl, table),
	}
}

// SetLogger sets an optional logger.
func (s *OutboxStore) SetLogger(l saga.Logger) {
	s.logger = l
}

// Save inserts the message when its version is zero and otherwise
// performs a compare-and-swap update on the version that was read.
func (s *OutboxStore) Save(ctx context.Context, m *saga.OutboxMessage) (*saga.OutboxMessage, error) {
	db := s.session(ctx)
	if m.Version == 0 {
		res := db.Exec(s.insertSql, m.Id, m.SagaId, m.CreatedAt, nullableTime(m.ProcessedAt),
			m.Type, m.Payload, m.DomainStatus, string(m.SagaStatus), string(m.OutboxStatus))
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return nil, fmt.Errorf("%w: %v", saga.ErrDuplicateMessage, res.Error)
			}
			return nil, fmt.Errorf("could not persist the outbox message: %w", res.Error)
		}
		saved := *m
		saved.Version = 1
		return &saved, nil
	}

	res := db.Exec(s.updateSql, nullableTime(m.ProcessedAt), m.DomainStatus,
		string(m.SagaStatus), string(m.OutboxStatus), m.Id, m.Version)
	if res.Error != nil {
		return nil, fmt.Errorf("could not update the outbox message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("updating outbox message %s at version %d: %w", m.Id, m.Version, saga.ErrVersionConflict)
	}
	saved := *m
	saved.Version = m.Version + 1
	return &saved, nil
}

// FindByTypeAndOutboxStatusAndSagaStatus returns the matching messages
// ordered by creation time.
func (s *OutboxStore) FindByTypeAndOutboxStatusAndSagaStatus(ctx context.Context, sagaType string,
	outboxStatus saga.OutboxStatus, sagaStatuses ...saga.SagaStatus) ([]*saga.OutboxMessage, error) {
	rows, err := s.session(ctx).Raw(s.selectByStatusSql, sagaType, string(outboxStatus), statusStrings(sagaStatuses)).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*saga.OutboxMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// FindByTypeAndSagaIdAndSagaStatus returns the single matching message or
// nil when none exists.
func (s *OutboxStore) FindByTypeAndSagaIdAndSagaStatus(ctx context.Context, sagaType string,
	sagaId uuid.UUID, sagaStatuses ...saga.SagaStatus) (*saga.OutboxMessage, error) {
	rows, err := s.session(ctx).Raw(s.selectBySagaIdSql, sagaType, sagaId, statusStrings(sagaStatuses)).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	m, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return m, rows.Err()
}

// DeleteByTypeAndOutboxStatusAndSagaStatus removes the matching messages.
func (s *OutboxStore) DeleteByTypeAndOutboxStatusAndSagaStatus(ctx context.Context, sagaType string,
	outboxStatus saga.OutboxStatus, sagaStatuses ...saga.SagaStatus) error {
	res := s.session(ctx).Exec(s.deleteByStatusSql, sagaType, string(outboxStatus), statusStrings(sagaStatuses))
	if res.Error != nil {
		return res.Error
	}
	s.logger.Debug(fmt.Sprintf("%d outbox messages deleted", res.RowsAffected))
	return nil
}

// session resolves the ambient transaction from the context when present.
func (s *OutboxStore) session(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(s.txKey).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

func scanMessage(rows *sql.Rows) (*saga.OutboxMessage, error) {
	var m saga.OutboxMessage
	var processedAt sql.NullTime
	var sagaStatus, outboxStatus string
	if err := rows.Scan(&m.Id, &m.SagaId, &m.CreatedAt, &processedAt, &m.Type, &m.Payload,
		&m.DomainStatus, &sagaStatus, &outboxStatus, &m.Version); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		m.ProcessedAt = processedAt.Time
	}
	m.SagaStatus = saga.SagaStatus(sagaStatus)
	m.OutboxStatus = saga.OutboxStatus(outboxStatus)
	return &m, nil
}

func statusStrings(sagaStatuses []saga.SagaStatus) []string {
	res := make([]string, len(sagaStatuses))
	for i, st := range sagaStatuses {
		res[i] = string(st)
	}
	return res
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
