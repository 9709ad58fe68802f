package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// newTestStore boots an in-memory sqlite database with the real schema so the
// storage invariants run against actual SQL, not against assertions on the
// query text.
func newTestStore(t *testing.T) (*bun.DB, accounts.RepositoryManager) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, accounts.RunMigrations(context.Background(), db))

	return db, accounts.NewRepositoryManager(db)
}

func mustRegister(t *testing.T, repo accounts.RepositoryManager, email string) *accounts.Account {
	t.Helper()

	account, err := repo.Accounts().Register(context.Background(), &accounts.Account{
		Name:         "Account " + email,
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return account
}

func TestAccountLifecycleAgainstStore(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestStore(t)
	store := repo.Accounts()

	created, err := store.Register(ctx, &accounts.Account{
		Name:         "Ada",
		Email:        "Ada@Example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, accounts.AccountStatusUnverified, created.Status)
	require.NotNil(t, created.ConfirmationToken)

	// login lookup shares the lower(email) collation with the unique index
	found, err := store.GetByEmail(ctx, "ada@example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	token := *created.ConfirmationToken

	confirmed, err := store.Confirm(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusActive, confirmed.Status)
	assert.Nil(t, confirmed.ConfirmationToken)

	// the token is consumed exactly once
	_, err = store.Confirm(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrInvalidConfirmation)

	admin := accounts.ActorRef{ID: "admin-1", Type: "account"}

	changed, err := store.Block(ctx, admin, confirmed)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded, err := store.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.AccountStatusBlocked, reloaded.Status)

	// token already consumed, so unblock restores active
	changed, err = store.Unblock(ctx, admin, reloaded)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, accounts.AccountStatusActive, reloaded.Status)

	deleted, err := store.DeleteAll(ctx, []uuid.UUID{created.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = store.GetByEmail(ctx, "ada@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestRegisterDuplicateEmailDifferentCase(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestStore(t)

	mustRegister(t, repo, "Taken@Example.com")

	_, err := repo.Accounts().Register(ctx, &accounts.Account{
		Name:         "Other",
		Email:        "taken@example.COM",
		PasswordHash: "hash",
	})
	require.Error(t, err)
	assert.True(t, accounts.IsUniqueViolation(err))
}

func TestTrackSuccessfulLoginIsMonotonic(t *testing.T) {
	ctx := context.Background()
	db, repo := newTestStore(t)
	store := repo.Accounts()

	account := mustRegister(t, repo, "login@example.com")

	require.NoError(t, store.TrackSuccessfulLogin(ctx, account))

	first, err := store.GetByEmail(ctx, account.Email)
	require.NoError(t, err)
	require.NotNil(t, first.LastLoginAt)

	// a recorded login in the future must never be moved backwards
	future := time.Now().Add(time.Hour).UTC()
	_, err = db.NewUpdate().
		Model((*accounts.Account)(nil)).
		Set("last_login_at = ?", future).
		Where("id = ?", account.ID).
		Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, store.TrackSuccessfulLogin(ctx, account))

	after, err := store.GetByEmail(ctx, account.Email)
	require.NoError(t, err)
	require.NotNil(t, after.LastLoginAt)
	assert.WithinDuration(t, future, *after.LastLoginAt, time.Second)
}

func TestPurgeUnverifiedLeavesOthersUntouched(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestStore(t)
	store := repo.Accounts()
	admin := accounts.ActorRef{ID: "admin-1", Type: "account"}

	mustRegister(t, repo, "stale-1@example.com")
	mustRegister(t, repo, "stale-2@example.com")

	activeAcc := mustRegister(t, repo, "active@example.com")
	_, err := store.Confirm(ctx, *activeAcc.ConfirmationToken)
	require.NoError(t, err)

	blockedAcc := mustRegister(t, repo, "blocked@example.com")
	_, err = store.Block(ctx, admin, blockedAcc)
	require.NoError(t, err)

	purged, err := store.PurgeUnverified(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	records, err := store.Roster(ctx, "email", "asc")
	require.NoError(t, err)
	require.Len(t, records, 2)

	statuses := []string{records[0].Status, records[1].Status}
	assert.Contains(t, statuses, accounts.AccountStatusActive)
	assert.Contains(t, statuses, accounts.AccountStatusBlocked)
}

func TestRosterSortingAgainstStore(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestStore(t)
	store := repo.Accounts()

	mustRegister(t, repo, "b@example.com")
	mustRegister(t, repo, "a@example.com")

	records, err := store.Roster(ctx, "email", "asc")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a@example.com", records[0].Email)

	records, err = store.Roster(ctx, "email", "desc")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", records[0].Email)

	// anything unrecognized still queries on the fallback ordering
	records, err = store.Roster(ctx, "passwd; DROP TABLE accounts", "asc")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBlockAlreadyBlockedConcurrently(t *testing.T) {
	ctx := context.Background()
	_, repo := newTestStore(t)
	store := repo.Accounts()
	admin := accounts.ActorRef{ID: "admin-1", Type: "account"}

	account := mustRegister(t, repo, "locked@example.com")

	changed, err := store.Block(ctx, admin, account)
	require.NoError(t, err)
	require.True(t, changed)

	// parallel no-op blocks share the repository and its state machine
	var wg sync.WaitGroup
	results := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			did, err := store.Block(ctx, admin, account)
			if did {
				results <- assert.AnError
				return
			}
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
}
