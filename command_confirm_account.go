package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ConfirmAccountMessage struct {
	Token string `json:"token"`
	// OnConfirmed receives the account after a successful confirmation.
	OnConfirmed func(*Account)
}

func (e ConfirmAccountMessage) Type() string { return "account.confirm" }

// ConfirmAccountHandler consumes a confirmation token. The token clears
// exactly once; unknown and already-consumed tokens are indistinguishable so
// the page cannot be used to probe which emails are registered.
type ConfirmAccountHandler struct {
	repo   RepositoryManager
	logger Logger
	sink   ActivitySink
}

type ConfirmAccountOption func(*ConfirmAccountHandler)

func NewConfirmAccountHandler(repo RepositoryManager, opts ...ConfirmAccountOption) *ConfirmAccountHandler {
	h := &ConfirmAccountHandler{
		repo:   repo,
		logger: defLogger{},
		sink:   noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func WithConfirmationLogger(logger Logger) ConfirmAccountOption {
	return func(h *ConfirmAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithConfirmationActivitySink(sink ActivitySink) ConfirmAccountOption {
	return func(h *ConfirmAccountHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.repo.Accounts().Confirm(ctx, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account confirmation failed")
	}

	h.recordConfirmation(ctx, account)

	if event.OnConfirmed != nil {
		event.OnConfirmed(account)
	}

	return nil
}

func (h *ConfirmAccountHandler) recordConfirmation(ctx context.Context, account *Account) {
	activity := ActivityEvent{
		EventType:  ActivityEventConfirmed,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		FromStatus: AccountStatusUnverified,
		ToStatus:   account.Status,
		OccurredAt: time.Now(),
	}

	if err := h.sink.Record(ctx, activity); err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}
