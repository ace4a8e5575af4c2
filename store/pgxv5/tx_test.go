package pgxv5

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

func TestTransactorInTx(t *testing.T) {
	boom := errors.New("boom")
	testcases := []struct {
		name             string
		fn               func(ctx context.Context) error
		mockExpectations func(pgxmock.PgxPoolIface)
		wantErr          error
	}{
		{
			name: "commits when the function succeeds",
			fn: func(ctx context.Context) error {
				return nil
			},
			mockExpectations: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
		},
		{
			name: "rolls back when the function fails",
			fn: func(ctx context.Context) error {
				return boom
			},
			mockExpectations: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			wantErr: boom,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			pool, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer pool.Close()
			tc.mockExpectations(pool)

			transactor := NewTransactor(defaultCtxKey, pool)
			err = transactor.InTx(context.Background(), tc.fn)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, pool.ExpectationsWereMet())
		})
	}
}

func TestTransactorCarriesTheTransaction(t *testing.T) {
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	pool.ExpectBegin()
	pool.ExpectCommit()

	transactor := NewTransactor(defaultCtxKey, pool)
	err = transactor.InTx(context.Background(), func(ctx context.Context) error {
		_, ok := ctx.Value(defaultCtxKey).(pgx.Tx)
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}
