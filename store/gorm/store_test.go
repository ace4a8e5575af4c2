package gorm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/foodcourt/ordersaga/test"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTable = "restaurant_approval_outbox"
const testSagaType = "ORDER_SAGA"

func newMockedStore(t *testing.T) (*OutboxStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	store := NewOutboxStore(testTable, test.DefaultCtxKey, db)
	store.SetLogger(&saga.NopLogger{})
	return store, mock
}

func TestNewOutboxStore(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxStore("", test.DefaultCtxKey, &gorm.DB{})
	})
	assert.Panics(t, func() {
		NewOutboxStore(testTable, nil, &gorm.DB{})
	})
	assert.Panics(t, func() {
		NewOutboxStore(testTable, test.DefaultCtxKey, nil)
	})
}

func TestSave(t *testing.T) {
	message := func(version int64) *saga.OutboxMessage {
		return &saga.OutboxMessage{
			Id:           uuid.New(),
			SagaId:       uuid.New(),
			CreatedAt:    time.Now().UTC(),
			Type:         testSagaType,
			Payload:      []byte("{}"),
			DomainStatus: "PAID",
			SagaStatus:   saga.SagaProcessing,
			OutboxStatus: saga.OutboxStarted,
			Version:      version,
		}
	}

	testcases := []struct {
		name             string
		version          int64
		mockExpectations func(sqlmock.Sqlmock)
		wantVersion      int64
		wantErr          error
	}{
		{
			name:    "a zero version inserts",
			version: 0,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO restaurant_approval_outbox (.+)").
					WithArgs(test.GenerateAnyArgsSlice(9)...).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 1,
		},
		{
			name:    "a duplicate insert surfaces the sentinel",
			version: 0,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO restaurant_approval_outbox (.+)").
					WithArgs(test.GenerateAnyArgsSlice(9)...).
					WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})
			},
			wantErr: saga.ErrDuplicateMessage,
		},
		{
			name:    "a non-zero version updates with compare-and-swap",
			version: 1,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE restaurant_approval_outbox SET (.+)").
					WithArgs(test.GenerateAnyArgsSlice(6)...).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 2,
		},
		{
			name:    "a moved version surfaces the conflict sentinel",
			version: 1,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE restaurant_approval_outbox SET (.+)").
					WithArgs(test.GenerateAnyArgsSlice(6)...).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: saga.ErrVersionConflict,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockedStore(t)
			tc.mockExpectations(mock)

			saved, err := store.Save(context.Background(), message(tc.version))

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.wantVersion, saved.Version)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindByTypeAndSagaIdAndSagaStatus(t *testing.T) {
	sagaId := uuid.New()
	columns := []string{"id", "saga_id", "created_at", "processed_at", "type", "payload",
		"domain_status", "saga_status", "outbox_status", "version"}

	t.Run("returns the matching message", func(t *testing.T) {
		store, mock := newMockedStore(t)
		rows := sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), sagaId.String(), time.Now(), nil, testSagaType, []byte("{}"),
				"PAID", "PROCESSING", "STARTED", int64(1))
		mock.ExpectQuery("SELECT (.+) FROM restaurant_approval_outbox WHERE type=(.+) AND saga_id=(.+)").
			WithArgs(test.GenerateAnyArgsSlice(3)...).
			WillReturnRows(rows)

		m, err := store.FindByTypeAndSagaIdAndSagaStatus(context.Background(),
			testSagaType, sagaId, saga.SagaProcessing)

		assert.NoError(t, err)
		assert.NotNil(t, m)
		assert.Equal(t, sagaId, m.SagaId)
		assert.Equal(t, saga.SagaProcessing, m.SagaStatus)
		assert.True(t, m.ProcessedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when no row matches", func(t *testing.T) {
		store, mock := newMockedStore(t)
		mock.ExpectQuery("SELECT (.+) FROM restaurant_approval_outbox WHERE type=(.+) AND saga_id=(.+)").
			WithArgs(test.GenerateAnyArgsSlice(3)...).
			WillReturnRows(sqlmock.NewRows(columns))

		m, err := store.FindByTypeAndSagaIdAndSagaStatus(context.Background(),
			testSagaType, sagaId, saga.SagaProcessing)

		assert.NoError(t, err)
		assert.Nil(t, m)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindByTypeAndOutboxStatusAndSagaStatus(t *testing.T) {
	t.Run("returns the matching messages", func(t *testing.T) {
		store, mock := newMockedStore(t)
		test.MockOutboxRows(mock, "PROCESSING", 2)

		messages, err := store.FindByTypeAndOutboxStatusAndSagaStatus(context.Background(),
			testSagaType, saga.OutboxStarted, saga.SagaProcessing)

		test.AssertError(t, err, false)
		assert.Len(t, messages, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		store, mock := newMockedStore(t)
		mock.ExpectQuery("SELECT (.+) FROM restaurant_approval_outbox WHERE type=(.+) AND outbox_status=(.+)").
			WithArgs(test.GenerateAnyArgsSlice(3)...).
			WillReturnError(errors.New("db down"))

		_, err := store.FindByTypeAndOutboxStatusAndSagaStatus(context.Background(),
			testSagaType, saga.OutboxStarted, saga.SagaProcessing)

		test.AssertError(t, err, true)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteByTypeAndOutboxStatusAndSagaStatus(t *testing.T) {
	store, mock := newMockedStore(t)
	mock.ExpectExec("DELETE FROM restaurant_approval_outbox WHERE (.+)").
		WithArgs(test.GenerateAnyArgsSlice(5)...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.DeleteByTypeAndOutboxStatusAndSagaStatus(context.Background(),
		testSagaType, saga.OutboxCompleted, saga.TerminalSagaStatuses()...)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
