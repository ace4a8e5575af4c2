package pgxv5

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/foodcourt/ordersaga/saga"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

const (
	insertOutboxSqlTmpl    = "INSERT INTO %s (id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)"
	updateOutboxSqlTmpl    = "UPDATE %s SET processed_at=$1, domain_status=$2, saga_status=$3, outbox_status=$4, version=version+1 WHERE id=$5 AND version=$6"
	selectByStatusSqlTmpl  = "SELECT id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version FROM %s WHERE type=$1 AND outbox_status=$2 AND saga_status = ANY($3) ORDER BY created_at ASC"
	selectBySagaIdSqlTmpl  = "SELECT id, saga_id, created_at, processed_at, type, payload, domain_status, saga_status, outbox_status, version FROM %s WHERE type=$1 AND saga_id=$2 AND saga_status = ANY($3)"
	deleteByStatusSqlTmpl  = "DELETE FROM %s WHERE type=$1 AND outbox_status=$2 AND saga_status = ANY($3)"
)

// dbpool is a helper interface to work with pgxpool.Pool.
type dbpool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// executor is the subset of dbpool shared by pools and transactions.
type executor interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// OutboxStore is a pgx implementation of saga.Store over one saga leg's
// table. When the context carries a pgx.Tx under the configured key the
// statements join that transaction; otherwise they run on the pool.
type OutboxStore struct {
	txKey  saga.TxKey
	db     dbpool
	logger saga.Logger

	insertSql         string
	updateSql         string
	selectByStatusSql string
	selectBySagaIdSql string
	deleteByStatusSql string
}

var _ saga.Store = (*OutboxStore)(nil)
var _ saga.Loggable = (*OutboxStore)(nil)

func NewOutboxStore(table string, txKey saga.TxKey, pool dbpool) *OutboxStore {
	if table == "" {
		panic("table is mandatory")
	}
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if pool == nil || reflect.ValueOf(pool).IsNil() {
		panic("pool is mandatory")
	}
	return &OutboxStore{
		txKey:             txKey,
		db:                pool,
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
// performs a compare-and-swap update on the version that was read. An
// insert hitting the unique (type, saga_id, saga_status) constraint fails
// with saga.ErrDuplicateMessage; a CAS update matching no row fails with
// saga.ErrVersionConflict.
func (s *OutboxStore) Save(ctx context.Context, m *saga.OutboxMessage) (*saga.OutboxMessage, error) {
	ex := s.executor(ctx)
	if m.Version == 0 {
		_, err := ex.Exec(ctx, s.insertSql, m.Id, m.SagaId, m.CreatedAt, nullableTime(m.ProcessedAt),
			m.Type, m.Payload, m.DomainStatus, string(m.SagaStatus), string(m.OutboxStatus))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: %v", saga.ErrDuplicateMessage, err)
			}
			return nil, fmt.Errorf("could not persist the outbox message: %w", err)
		}
		saved := *m
		saved.Version = 1
		return &saved, nil
	}

	ct, err := ex.Exec(ctx, s.updateSql, nullableTime(m.ProcessedAt), m.DomainStatus,
		string(m.SagaStatus), string(m.OutboxStatus), m.Id, m.Version)
	if err != nil {
		return nil, fmt.Errorf("could not update the outbox message: %w", err)
	}
	if ct.RowsAffected() == 0 {
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
	rows, err := s.executor(ctx).Query(ctx, s.selectByStatusSql, sagaType, string(outboxStatus), statusStrings(sagaStatuses))
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
// nil when none exists. The unique (type, saga_id, saga_status)
// constraint guarantees at most one row can match.
func (s *OutboxStore) FindByTypeAndSagaIdAndSagaStatus(ctx context.Context, sagaType string,
	sagaId uuid.UUID, sagaStatuses ...saga.SagaStatus) (*saga.OutboxMessage, error) {
	rows, err := s.executor(ctx).Query(ctx, s.selectBySagaIdSql, sagaType, sagaId, statusStrings(sagaStatuses))
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
	ct, err := s.executor(ctx).Exec(ctx, s.deleteByStatusSql, sagaType, string(outboxStatus), statusStrings(sagaStatuses))
	if err != nil {
		return err
	}
	s.logger.Debug(fmt.Sprintf("%d outbox messages deleted", ct.RowsAffected()))
	return nil
}

// executor resolves the ambient transaction from the context when present.
func (s *OutboxStore) executor(ctx context.Context) executor {
	if tx, ok := ctx.Value(s.txKey).(pgx.Tx); ok {
		return tx
	}
	return s.db
}

func scanMessage(rows pgx.Rows) (*saga.OutboxMessage, error) {
	var m saga.OutboxMessage
	var processedAt *time.Time
	var sagaStatus, outboxStatus string
	if err := rows.Scan(&m.Id, &m.SagaId, &m.CreatedAt, &processedAt, &m.Type, &m.Payload,
		&m.DomainStatus, &sagaStatus, &outboxStatus, &m.Version); err != nil {
		return nil, err
	}
	if processedAt != nil {
		m.ProcessedAt = *processedAt
	}
	m.SagaStatus = saga.SagaStatus(sagaStatus)
	m.OutboxStatus = saga.OutboxStatus(outboxStatus)
	return &m, nil
}

func statusStrings(sagaStatuses []saga.SagaStatus) []string {
	res := make([]string, len(sagaStatuses))
	for i, s := range sagaStatuses {
		res[i] = string(s)
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
