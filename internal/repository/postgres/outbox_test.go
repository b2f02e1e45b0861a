package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
)

func TestOutboxRepository_ClaimDue_SortsByCreation(t *testing.T) {
	mock := newMock(t)
	repo := NewOutboxRepository(mock)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "aggregate_id", "event_type", "payload", "status", "attempts", "last_error", "available_at", "created_at"}
	mock.ExpectQuery(`UPDATE outbox_events o .+ FOR UPDATE SKIP LOCKED`).
		WithArgs(now, 10, now.Add(30*time.Second), domain.OutboxStatusPending).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("e-2", "o-1", domain.EventOrderConfirmed, []byte(`{}`), domain.OutboxStatusPending, 0, "", now.Add(30*time.Second), now.Add(-time.Minute)).
			AddRow("e-1", "o-1", domain.EventOrderCreated, []byte(`{}`), domain.OutboxStatusPending, 0, "", now.Add(30*time.Second), now.Add(-2*time.Minute)))

	events, err := repo.ClaimDue(context.Background(), now, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e-1", events[0].ID)
	assert.Equal(t, "e-2", events[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkRetryAndDead(t *testing.T) {
	mock := newMock(t)
	repo := NewOutboxRepository(mock)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE outbox_events SET attempts").
		WithArgs("e-1", 2, at, "broker down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE outbox_events SET status").
		WithArgs("e-1", domain.OutboxStatusDead, 5, "broker down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkRetry(context.Background(), "e-1", 2, at, "broker down"))
	require.NoError(t, repo.MarkDead(context.Background(), "e-1", 5, "broker down"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	uow := NewUnitOfWork(mock, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM outbox_events").
		WithArgs("e-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(ctx context.Context, s repository.Store) error {
		return s.Outbox.Delete(ctx, "e-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	uow := NewUnitOfWork(mock, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM products WHERE id = \$1 FOR UPDATE`).
		WithArgs("p-1").
		WillReturnRows(productRow(1, 0))
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(ctx context.Context, s repository.Store) error {
		return s.Inventory.Reserve(ctx, "p-1", 5, "o-1")
	})
	assert.True(t, errors.Is(err, domain.ErrOutOfStock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
