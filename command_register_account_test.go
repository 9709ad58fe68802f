package accounts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestRegisterAccountCreatesUnverifiedAccount(t *testing.T) {
	var created *accounts.Account

	store := &fakeAccountsRepo{
		registerTx: func(_ context.Context, _ bun.IDB, account *accounts.Account) (*accounts.Account, error) {
			// mimic the repository defaults applied at insert time
			account.EnsureStatus()
			token := "confirm-token"
			account.ConfirmationToken = &token
			created = account
			return account, nil
		},
	}

	sink := &recorderSink{}
	var mailedTo, mailedLink string
	mailed := make(chan struct{})

	dispatcher := accounts.NewMailDispatcher(accounts.MailerFunc(func(_ context.Context, toEmail, _, link string) error {
		mailedTo = toEmail
		mailedLink = link
		close(mailed)
		return nil
	}), nil)

	handler := accounts.NewRegisterAccountHandler(
		&fakeRepoManager{store: store},
		accounts.WithRegistrationMailer(dispatcher),
		accounts.WithRegistrationActivitySink(sink),
		accounts.WithConfirmationBaseURL("https://example.com/confirm"),
	)

	err := handler.Execute(context.Background(), accounts.RegisterAccountMessage{
		Name:     "New User",
		Email:    "new@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, accounts.AccountStatusUnverified, created.Status)
	assert.Equal(t, "new@example.com", created.Email)
	assert.NotEmpty(t, created.PasswordHash)
	assert.NotEqual(t, "password123", created.PasswordHash)
	assert.NoError(t, accounts.ComparePasswordAndHash("password123", created.PasswordHash))

	select {
	case <-mailed:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation mail was never dispatched")
	}

	assert.Equal(t, "new@example.com", mailedTo)
	assert.True(t, strings.HasPrefix(mailedLink, "https://example.com/confirm?token="))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActivityEventRegistered, events[0].EventType)
}

func TestRegisterAccountDuplicateEmail(t *testing.T) {
	store := &fakeAccountsRepo{
		registerTx: func(_ context.Context, _ bun.IDB, _ *accounts.Account) (*accounts.Account, error) {
			return nil, errors.New("constraint failed: UNIQUE constraint failed: accounts.email (2067)")
		},
	}

	handler := accounts.NewRegisterAccountHandler(&fakeRepoManager{store: store})

	err := handler.Execute(context.Background(), accounts.RegisterAccountMessage{
		Name:     "Dup",
		Email:    "dup@example.com",
		Password: "password123",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounts.ErrEmailTaken)
}

func TestRegisterAccountEmptyPassword(t *testing.T) {
	store := &fakeAccountsRepo{
		registerTx: func(_ context.Context, _ bun.IDB, account *accounts.Account) (*accounts.Account, error) {
			t.Fatal("register should not be reached with an invalid password")
			return account, nil
		},
	}

	handler := accounts.NewRegisterAccountHandler(&fakeRepoManager{store: store})

	err := handler.Execute(context.Background(), accounts.RegisterAccountMessage{
		Name:  "No Password",
		Email: "nopass@example.com",
	})
	require.Error(t, err)
}

func TestRegisterAccountCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := accounts.NewRegisterAccountHandler(&fakeRepoManager{store: &fakeAccountsRepo{}})

	err := handler.Execute(ctx, accounts.RegisterAccountMessage{
		Name:     "Late",
		Email:    "late@example.com",
		Password: "password123",
	})
	require.Error(t, err)
}
