package accounts

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UseHashid bool
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// RegisterAccountHandler creates an unverified account and hands the
// confirmation link off to the mail dispatcher. Delivery is fire and forget:
// registration succeeds whether or not the mail goes out.
type RegisterAccountHandler struct {
	repo           RepositoryManager
	mail           *MailDispatcher
	logger         Logger
	sink           ActivitySink
	confirmBaseURL string
}

type RegisterAccountOption func(*RegisterAccountHandler)

func NewRegisterAccountHandler(repo RepositoryManager, opts ...RegisterAccountOption) *RegisterAccountHandler {
	h := &RegisterAccountHandler{
		repo:           repo,
		logger:         defLogger{},
		sink:           noopActivitySink{},
		confirmBaseURL: "/confirm",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.mail == nil {
		h.mail = NewMailDispatcher(nil, h.logger)
	}

	return h
}

func WithRegistrationMailer(mail *MailDispatcher) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.mail = mail
	}
}

func WithRegistrationLogger(logger Logger) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithRegistrationActivitySink(sink ActivitySink) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

// WithConfirmationBaseURL sets the route the emailed link points at; the
// token is appended as a query parameter.
func WithConfirmationBaseURL(base string) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if base != "" {
			h.confirmBaseURL = base
		}
	}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	account := &Account{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.PasswordHash = hash
		account.Name = event.Name
		account.Email = event.Email
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				account.ID = id
			}
		}

		if account, err = h.repo.Accounts().RegisterTx(ctx, tx, account); err != nil {
			if IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.recordRegistration(ctx, account)

	if account.ConfirmationToken != nil {
		link := fmt.Sprintf("%s?token=%s", h.confirmBaseURL, *account.ConfirmationToken)
		h.mail.DispatchConfirmation(account.Email, account.Name, link)
	}

	return nil
}

func (h *RegisterAccountHandler) recordRegistration(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType:  ActivityEventRegistered,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		ToStatus:   account.Status,
		OccurredAt: time.Now(),
	}

	if err := h.sink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}
