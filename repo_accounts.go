package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConfirmAccountSQL consumes a confirmation token atomically: the token is
// cleared exactly once, and only unverified accounts gain active status.
// Blocked accounts keep their status while still clearing the token.
var ConfirmAccountSQL = `UPDATE "accounts" AS "acc"
SET
	"confirmation_token" = NULL,
	"status" = CASE WHEN "status" = 'unverified' THEN 'active' ELSE "status" END
WHERE
	"acc"."confirmation_token" = ?
RETURNING *;`

// Accounts is the persistent store of registered accounts.
type Accounts interface {
	repository.Repository[*Account]

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetAllByID(ctx context.Context, ids []uuid.UUID) ([]*Account, error)

	Confirm(ctx context.Context, token string) (*Account, error)
	ConfirmTx(ctx context.Context, tx bun.IDB, token string) (*Account, error)

	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error)

	Roster(ctx context.Context, sortBy, sortOrder string) ([]*Account, error)
	DeleteAll(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeleteAllTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) (int64, error)
	PurgeUnverified(ctx context.Context) (int64, error)
	PurgeUnverifiedTx(ctx context.Context, tx bun.IDB) (int64, error)

	Block(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error)
	Unblock(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error)
}

type accounts struct {
	repository.Repository[*Account]
	db                  *bun.DB
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

type AccountsOption func(*accounts)

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoAccounts := &accounts{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoAccounts)
		}
	}

	// built once here so concurrent requests share an immutable machine
	if repoAccounts.stateMachine == nil {
		repoAccounts.stateMachine = NewAccountStateMachine(repoAccounts, repoAccounts.stateMachineOptions...)
	}

	return repoAccounts
}

func WithAccountsStateMachineOptions(options ...StateMachineOption) AccountsOption {
	return func(a *accounts) {
		if len(options) == 0 {
			return
		}
		a.stateMachineOptions = append(a.stateMachineOptions, options...)
		a.stateMachine = nil
	}
}

func WithAccountsStateMachine(sm AccountStateMachine) AccountsOption {
	return func(a *accounts) {
		a.stateMachine = sm
	}
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)
	return a.Repository.CreateTx(ctx, tx, account)
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

// GetByEmailTx matches case-insensitively; the storage-level unique index on
// lower(email) uses the same collation so login and uniqueness agree.
func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = lower(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) GetAllByID(ctx context.Context, ids []uuid.UUID) ([]*Account, error) {
	records := []*Account{}
	if len(ids) == 0 {
		return records, nil
	}

	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *accounts) Confirm(ctx context.Context, token string) (*Account, error) {
	return a.ConfirmTx(ctx, a.db, token)
}

func (a *accounts) ConfirmTx(ctx context.Context, tx bun.IDB, token string) (*Account, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidConfirmation
	}

	res, err := a.Repository.RawTx(ctx, tx, ConfirmAccountSQL, token)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		// unknown or already consumed token, reported uniformly
		return nil, ErrInvalidConfirmation
	}

	return res[0], nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

// TrackSuccessfulLoginTx keeps last_login_at monotonic: a slow concurrent
// login can never move the timestamp backwards.
func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET "last_login_at" = ?
		WHERE ("acc"."id" = ?)
		AND ("acc"."last_login_at" IS NULL OR "acc"."last_login_at" < ?);
	`, loggedInAt, account.ID, loggedInAt).Exec(ctx)

	return err
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *accounts) Roster(ctx context.Context, sortBy, sortOrder string) ([]*Account, error) {
	records := []*Account{}
	err := a.db.NewSelect().
		Model(&records).
		OrderExpr(RosterOrderExpr(sortBy, sortOrder)).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *accounts) DeleteAll(ctx context.Context, ids []uuid.UUID) (int64, error) {
	return a.DeleteAllTx(ctx, a.db, ids)
}

func (a *accounts) DeleteAllTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (a *accounts) PurgeUnverified(ctx context.Context) (int64, error) {
	return a.PurgeUnverifiedTx(ctx, a.db)
}

func (a *accounts) PurgeUnverifiedTx(ctx context.Context, tx bun.IDB) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("?TableAlias.status = ?", AccountStatusUnverified).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (a *accounts) Block(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error) {
	return a.lifecycleMachine().Block(ctx, actor, account, opts...)
}

func (a *accounts) Unblock(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error) {
	return a.lifecycleMachine().Unblock(ctx, actor, account, opts...)
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.ConfirmationToken == nil {
		token := uuid.NewString()
		record.ConfirmationToken = &token
	}
}

// rosterSortColumns whitelists the sortable roster fields. User input never
// reaches the ORDER BY clause directly.
var rosterSortColumns = map[string]string{
	"name":          "lower(name)",
	"email":         "lower(email)",
	"status":        "status",
	"last_login_at": "last_login_at",
}

// RosterOrderExpr resolves a sort field/direction pair to a trusted ORDER BY
// expression. Unrecognized combinations fall back to last_login_at DESC, the
// most-recently-active-first default view.
func RosterOrderExpr(sortBy, sortOrder string) string {
	column, ok := rosterSortColumns[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		return "last_login_at DESC"
	}

	switch strings.ToLower(strings.TrimSpace(sortOrder)) {
	case "asc":
		return column + " ASC"
	case "desc":
		return column + " DESC"
	default:
		return "last_login_at DESC"
	}
}

func (a *accounts) lifecycleMachine() AccountStateMachine {
	return a.stateMachine
}
