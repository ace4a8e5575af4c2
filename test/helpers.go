package test

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/integralist/go-findroot/find"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var DefaultCtxKey any = "myKey"

func AssertError(t *testing.T, err error, expectErr bool) {
	if expectErr {
		assert.Error(t, err)
	} else {
		assert.NoError(t, err)
	}
}

// InitPostgresContainer initializes a local Postgres instance using Testcontainers.
func InitPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, error) {
	root, _ := find.Repo()
	return postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:15.2-alpine"),
		postgres.WithInitScripts(
			filepath.Join(root.Path, "sql/postgres/000001_ordersaga.up.sql"),
		),
		postgres.WithDatabase("dbname"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(5*time.Second)),
	)
}

func GenerateAnyArgsSlice(n int) []driver.Value {
	var result []driver.Value = make([]driver.Value, n)
	for i := 0; i < n; i++ {
		result[i] = sqlmock.AnyArg()
	}
	return result
}

func MockOutboxRows(mock sqlmock.Sqlmock, sagaStatus string, n int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "saga_id", "created_at", "processed_at", "type", "payload", "domain_status", "saga_status", "outbox_status", "version"})
	for i := 0; i < n; i++ {
		rows.AddRow(uuid.NewString(), uuid.NewString(), time.Now(), nil, "ORDER_SAGA", []byte("{}"), "PAID", sagaStatus, "STARTED", 1)
	}
	mock.ExpectQuery("SELECT .+ FROM .*outbox.*").WithArgs(GenerateAnyArgsSlice(3)...).WillReturnRows(rows)
	return rows
}
