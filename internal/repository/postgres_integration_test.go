//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/mmeshcher/expense-system/internal/model"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("expenses_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pg, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pg.Close()
	})

	require.NoError(t, Migrate(ctx, pg.DB()))
	return pg
}

func TestExpenseRepository_Lifecycle(t *testing.T) {
	pg := newTestPostgres(t)
	repo := NewExpenseRepository(NewConnector(pg.DB(), zap.NewNop()))
	ctx := context.Background()

	categories, err := repo.GetCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 5)

	statuses, err := repo.GetStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 4)

	users, err := repo.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := repo.CreateExpense(ctx, 1, 2, 1000, date, "Team lunch")
	require.NoError(t, err)
	assert.Positive(t, id)

	expenses, err := repo.GetExpenses(ctx, &model.ExpenseFilter{Category: "meals"})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, id, expenses[0].ExpenseID)
	assert.Equal(t, int64(1000), expenses[0].AmountMinor)
	assert.Equal(t, "GBP", expenses[0].Currency)
	assert.Equal(t, "2024-03-01", expenses[0].ExpenseDate.UTC().Format("2006-01-02"))
	assert.Equal(t, "Draft", expenses[0].StatusName)
	assert.Nil(t, expenses[0].ReviewedBy)

	require.Error(t, repo.ApproveExpense(ctx, id, 2), "draft cannot be approved")

	require.NoError(t, repo.SubmitExpense(ctx, id))

	pending, err := repo.GetPendingExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].SubmittedAt)

	require.NoError(t, repo.ApproveExpense(ctx, id, 2))

	approved, err := repo.GetExpenseByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Approved", approved.StatusName)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, int64(2), *approved.ReviewedBy)
	assert.Equal(t, "Bob Manager", approved.ReviewerName)

	_, err = repo.GetExpenseByID(ctx, id+100)
	assert.True(t, IsNotFound(err))
}
