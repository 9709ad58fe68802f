package accounts_test

import (
	"context"
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func storedAccount(t *testing.T, status accounts.AccountStatus, password string) *accounts.Account {
	t.Helper()

	hash, err := accounts.HashPassword(password)
	require.NoError(t, err)

	return &accounts.Account{
		ID:           uuid.New(),
		Name:         "Test Account",
		Email:        "test@example.com",
		PasswordHash: hash,
		Status:       status,
	}
}

func TestVerifyIdentitySuccessTracksLogin(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusActive, "password")

	store.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil).Once()
	store.On("TrackSuccessfulLogin", mock.Anything, account).Return(nil).Once()

	provider := accounts.NewAccountProvider(store)

	identity, err := provider.VerifyIdentity(context.Background(), "test@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), identity.ID())
	assert.Equal(t, account.Email, identity.Email())
	store.AssertExpectations(t)
}

func TestVerifyIdentityUnverifiedAccountMayLogIn(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusUnverified, "password")

	store.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil).Once()
	store.On("TrackSuccessfulLogin", mock.Anything, account).Return(nil).Once()

	provider := accounts.NewAccountProvider(store)

	identity, err := provider.VerifyIdentity(context.Background(), "test@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), identity.ID())
	store.AssertExpectations(t)
}

func TestVerifyIdentityUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	unknownStore := &MockAccountStore{}
	unknownStore.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()

	wrongStore := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusActive, "password")
	wrongStore.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil).Once()

	provider := accounts.NewAccountProvider(unknownStore)
	_, unknownErr := provider.VerifyIdentity(context.Background(), "ghost@example.com", "password")

	provider = accounts.NewAccountProvider(wrongStore)
	_, wrongErr := provider.VerifyIdentity(context.Background(), "test@example.com", "nope")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr, wrongErr)
	assert.ErrorIs(t, unknownErr, accounts.ErrMismatchedHashAndPassword)

	wrongStore.AssertNotCalled(t, "TrackSuccessfulLogin", mock.Anything, mock.Anything)
}

func TestVerifyIdentityBlockedAccount(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusBlocked, "password")

	store.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil).Once()

	provider := accounts.NewAccountProvider(store)

	_, err := provider.VerifyIdentity(context.Background(), "test@example.com", "password")
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrAccountBlocked)
	store.AssertNotCalled(t, "TrackSuccessfulLogin", mock.Anything, mock.Anything)
}

func TestVerifyIdentityTrackFailureIsNotFatal(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusActive, "password")

	store.On("GetByEmail", mock.Anything, "test@example.com").Return(account, nil).Once()
	store.On("TrackSuccessfulLogin", mock.Anything, account).
		Return(errors.New("disk full")).Once()

	provider := accounts.NewAccountProvider(store)

	identity, err := provider.VerifyIdentity(context.Background(), "test@example.com", "password")
	require.NoError(t, err)
	assert.NotNil(t, identity)
	store.AssertExpectations(t)
}

func TestFindIdentityByIdentifier(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusActive, "password")

	store.On("GetByID", mock.Anything, account.ID.String()).Return(account, nil).Once()

	provider := accounts.NewAccountProvider(store)

	identity, err := provider.FindIdentityByIdentifier(context.Background(), account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), identity.ID())
	store.AssertExpectations(t)
}

func TestFindIdentityByIdentifierBlocked(t *testing.T) {
	store := &MockAccountStore{}
	account := storedAccount(t, accounts.AccountStatusBlocked, "password")

	store.On("GetByID", mock.Anything, account.ID.String()).Return(account, nil).Once()

	provider := accounts.NewAccountProvider(store)

	_, err := provider.FindIdentityByIdentifier(context.Background(), account.ID.String())
	require.ErrorIs(t, err, accounts.ErrAccountBlocked)
}
