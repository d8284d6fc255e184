package friends

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupFriendsRepoTest(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewRepository(mockPool, zap.NewNop()), mockPool
}

func requestRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "from_user", "to_user", "created_on", "rejected_on", "viewed_on"})
}

func TestFriendsRepository_AcceptRequest(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("inserts both directed edges and removes requests", func(t *testing.T) {
		repo, mockPool := setupFriendsRepoTest(t)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(requestRows().AddRow(int64(9), int64(1), int64(2), created, nil, nil))
		mockPool.ExpectExec("INSERT INTO friends").
			WithArgs(int64(1), int64(2)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("INSERT INTO friends").
			WithArgs(int64(2), int64(1)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec("DELETE FROM friendship_requests WHERE id").
			WithArgs(int64(9)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectExec("DELETE FROM friendship_requests WHERE from_user").
			WithArgs(int64(2), int64(1)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()

		require.NoError(t, repo.AcceptRequest(ctx, 9))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("missing request aborts the transaction", func(t *testing.T) {
		repo, mockPool := setupFriendsRepoTest(t)

		mockPool.ExpectBegin()
		mockPool.ExpectQuery("FOR UPDATE").
			WithArgs(int64(9)).
			WillReturnRows(requestRows())
		mockPool.ExpectRollback()

		err := repo.AcceptRequest(ctx, 9)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFriendsRepository_RemoveFriend(t *testing.T) {
	ctx := context.Background()

	t.Run("removes both directions at once", func(t *testing.T) {
		repo, mockPool := setupFriendsRepoTest(t)
		mockPool.ExpectExec("DELETE FROM friends").
			WithArgs(int64(1), int64(2)).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))

		removed, err := repo.RemoveFriend(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("not friends reports false", func(t *testing.T) {
		repo, mockPool := setupFriendsRepoTest(t)
		mockPool.ExpectExec("DELETE FROM friends").
			WithArgs(int64(1), int64(2)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		removed, err := repo.RemoveFriend(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestFriendsRepository_AreFriends(t *testing.T) {
	ctx := context.Background()
	repo, mockPool := setupFriendsRepoTest(t)

	mockPool.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.AreFriends(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}
