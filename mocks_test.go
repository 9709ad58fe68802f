package accounts_test

import (
	"context"
	"database/sql"
	"sync"

	accounts "github.com/goliatone/go-accounts"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockStatusUpdater implements accounts.StatusUpdater
type MockStatusUpdater struct {
	mock.Mock
}

func (m *MockStatusUpdater) UpdateStatus(ctx context.Context, id uuid.UUID, status accounts.AccountStatus) (*accounts.Account, error) {
	args := m.Called(ctx, id, status)
	record, _ := args.Get(0).(*accounts.Account)
	return record, args.Error(1)
}

// MockAccountStore implements accounts.AccountTracker and accounts.AccountFinder
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	args := m.Called(ctx, email)
	record, _ := args.Get(0).(*accounts.Account)
	return record, args.Error(1)
}

func (m *MockAccountStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.Account, error) {
	args := m.Called(ctx, id)
	record, _ := args.Get(0).(*accounts.Account)
	return record, args.Error(1)
}

func (m *MockAccountStore) TrackSuccessfulLogin(ctx context.Context, account *accounts.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockIdentityProvider implements accounts.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (accounts.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

// recorderSink captures activity events for assertions.
type recorderSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (r *recorderSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorderSink) Events() []accounts.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounts.ActivityEvent, len(r.events))
	copy(out, r.events)
	return out
}

// testIdentity implements accounts.Identity
type testIdentity struct {
	id    string
	name  string
	email string
}

func (t testIdentity) ID() string    { return t.id }
func (t testIdentity) Name() string  { return t.name }
func (t testIdentity) Email() string { return t.email }

// testConfig implements accounts.Config
type testConfig struct {
	signingKey       string
	contextKey       string
	tokenExpiration  int
	extendedDuration int
	issuer           string
	audience         []string
	rejectedKey      string
	rejectedDefault  string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:       "test-signing-key",
		contextKey:       "accounts_session",
		tokenExpiration:  1,
		extendedDuration: 24,
		issuer:           "accounts-test",
		audience:         []string{"accounts-test"},
		rejectedKey:      "accounts_rejected_route",
		rejectedDefault:  "/admin/accounts",
	}
}

func (c testConfig) GetSigningKey() string           { return c.signingKey }
func (c testConfig) GetContextKey() string           { return c.contextKey }
func (c testConfig) GetTokenExpiration() int         { return c.tokenExpiration }
func (c testConfig) GetExtendedTokenDuration() int   { return c.extendedDuration }
func (c testConfig) GetIssuer() string               { return c.issuer }
func (c testConfig) GetAudience() []string           { return c.audience }
func (c testConfig) GetRejectedRouteKey() string     { return c.rejectedKey }
func (c testConfig) GetRejectedRouteDefault() string { return c.rejectedDefault }

// MockLoginPayload implements accounts.LoginPayload
type MockLoginPayload struct {
	Identifier      string
	Password        string
	ExtendedSession bool
}

func (m MockLoginPayload) GetIdentifier() string    { return m.Identifier }
func (m MockLoginPayload) GetPassword() string      { return m.Password }
func (m MockLoginPayload) GetExtendedSession() bool { return m.ExtendedSession }

// fakeAccountsRepo overrides only the store methods a test exercises; the
// embedded interface panics on anything unexpected.
type fakeAccountsRepo struct {
	accounts.Accounts

	registerTx      func(ctx context.Context, tx bun.IDB, account *accounts.Account) (*accounts.Account, error)
	confirm         func(ctx context.Context, token string) (*accounts.Account, error)
	getAllByID      func(ctx context.Context, ids []uuid.UUID) ([]*accounts.Account, error)
	block           func(ctx context.Context, actor accounts.ActorRef, account *accounts.Account, opts ...accounts.TransitionOption) (bool, error)
	unblock         func(ctx context.Context, actor accounts.ActorRef, account *accounts.Account, opts ...accounts.TransitionOption) (bool, error)
	deleteAll       func(ctx context.Context, ids []uuid.UUID) (int64, error)
	purgeUnverified func(ctx context.Context) (int64, error)
	roster          func(ctx context.Context, sortBy, sortOrder string) ([]*accounts.Account, error)
}

func (f *fakeAccountsRepo) RegisterTx(ctx context.Context, tx bun.IDB, account *accounts.Account) (*accounts.Account, error) {
	return f.registerTx(ctx, tx, account)
}

func (f *fakeAccountsRepo) Confirm(ctx context.Context, token string) (*accounts.Account, error) {
	return f.confirm(ctx, token)
}

func (f *fakeAccountsRepo) GetAllByID(ctx context.Context, ids []uuid.UUID) ([]*accounts.Account, error) {
	return f.getAllByID(ctx, ids)
}

func (f *fakeAccountsRepo) Block(ctx context.Context, actor accounts.ActorRef, account *accounts.Account, opts ...accounts.TransitionOption) (bool, error) {
	return f.block(ctx, actor, account, opts...)
}

func (f *fakeAccountsRepo) Unblock(ctx context.Context, actor accounts.ActorRef, account *accounts.Account, opts ...accounts.TransitionOption) (bool, error) {
	return f.unblock(ctx, actor, account, opts...)
}

func (f *fakeAccountsRepo) DeleteAll(ctx context.Context, ids []uuid.UUID) (int64, error) {
	return f.deleteAll(ctx, ids)
}

func (f *fakeAccountsRepo) PurgeUnverified(ctx context.Context) (int64, error) {
	return f.purgeUnverified(ctx)
}

func (f *fakeAccountsRepo) Roster(ctx context.Context, sortBy, sortOrder string) ([]*accounts.Account, error) {
	return f.roster(ctx, sortBy, sortOrder)
}

// fakeRepoManager runs transaction bodies inline against the fake store.
type fakeRepoManager struct {
	accounts.RepositoryManager
	store accounts.Accounts
}

func (f *fakeRepoManager) Accounts() accounts.Accounts {
	return f.store
}

func (f *fakeRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepoManager) Validate() error { return nil }
func (f *fakeRepoManager) MustValidate()   {}
