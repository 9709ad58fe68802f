package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountContextRoundTrip(t *testing.T) {
	account := &accounts.Account{ID: uuid.New(), Email: "ctx@example.com"}

	ctx := accounts.WithContext(context.Background(), account)

	got, ok := accounts.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, account, got)

	_, ok = accounts.FromContext(context.Background())
	assert.False(t, ok)
}

func TestSessionContextRoundTrip(t *testing.T) {
	session := &accounts.SessionObject{UserID: uuid.NewString()}

	ctx := accounts.WithSessionContext(context.Background(), session)

	got, ok := accounts.SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, session.GetUserID(), got.GetUserID())

	_, ok = accounts.SessionFromContext(context.Background())
	assert.False(t, ok)
}
