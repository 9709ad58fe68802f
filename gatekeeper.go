package accounts

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// SessionLocalsKey is where the gatekeeper stashes the validated session.
var SessionLocalsKey = "accounts:session"

// AccountLocalsKey is where the gatekeeper stashes the freshly loaded account.
var AccountLocalsKey = "accounts:current"

// AccountFinder is the slice of the store the gatekeeper needs.
type AccountFinder interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Account, error)
}

// GatekeeperConfig configures the per-request account check.
type GatekeeperConfig struct {
	Auther       *RouteAuthenticator
	Accounts     AccountFinder
	Logger       Logger
	ActivitySink ActivitySink
	// SkipPaths are the unauthenticated entry points; requests there pass
	// through untouched.
	SkipPaths  []string
	LoginRoute string
}

// NewGatekeeper returns middleware that re-reads the session's account from
// the store on every request. A session whose account has been deleted or
// blocked since login is torn down on the spot: the cookie is cleared and the
// user lands back on the login page with an explanation. The account state is
// never trusted from the token and never cached, so status changes take
// effect on the very next request.
func NewGatekeeper(cfg GatekeeperConfig) fiber.Handler {
	if cfg.Auther == nil {
		panic("gatekeeper requires a RouteAuthenticator")
	}

	if cfg.Accounts == nil {
		panic("gatekeeper requires an account store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defLogger{}
	}

	sink := normalizeActivitySink(cfg.ActivitySink)

	loginRoute := cfg.LoginRoute
	if loginRoute == "" {
		loginRoute = "/login"
	}

	skip := map[string]bool{}
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	revoke := func(c *fiber.Ctx, session Session, message string, meta map[string]any) error {
		cfg.Auther.Logout(c)

		event := ActivityEvent{
			EventType:  ActivityEventSessionRevoked,
			AccountID:  session.GetUserID(),
			Metadata:   meta,
			OccurredAt: time.Now(),
		}
		if err := sink.Record(c.Context(), event); err != nil {
			logger.Warn("activity sink error: %s", err)
		}

		SetFlash(c, FlashError, message)
		return c.Redirect(loginRoute, fiber.StatusSeeOther)
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		session, err := cfg.Auther.SessionFromRequest(c)
		if err != nil {
			// Anonymous or stale cookie. Route-level protection decides
			// whether the destination needs a session.
			return c.Next()
		}

		account, err := cfg.Accounts.GetByID(c.Context(), session.GetUserID())
		if err != nil {
			if errors.IsNotFound(err) || repository.IsRecordNotFound(err) {
				logger.Info("session account no longer exists id=%s", session.GetUserID())
				return revoke(c, session, "Your account no longer exists.", map[string]any{
					"reason": "deleted",
				})
			}
			logger.Error("gatekeeper store error: %s", err)
			return errors.Wrap(err, errors.CategoryInternal, "unable to verify account").
				WithCode(errors.CodeInternal)
		}

		if account.IsBlocked() {
			logger.Info("session account is blocked id=%s", session.GetUserID())
			return revoke(c, session, "Your account is blocked.", map[string]any{
				"reason": "blocked",
			})
		}

		c.Locals(SessionLocalsKey, session)
		c.Locals(AccountLocalsKey, account)

		reqCtx := WithContext(c.UserContext(), account)
		c.SetUserContext(WithSessionContext(reqCtx, session))

		return c.Next()
	}
}

// SessionFromLocals retrieves the session the gatekeeper stored, if any.
func SessionFromLocals(c *fiber.Ctx) (Session, error) {
	v := c.Locals(SessionLocalsKey)
	if v == nil {
		return nil, ErrUnableToFindSession
	}

	session, ok := v.(Session)
	if !ok {
		return nil, ErrUnableToDecodeSession
	}

	return session, nil
}

// AccountFromLocals retrieves the account the gatekeeper loaded, if any.
func AccountFromLocals(c *fiber.Ctx) (*Account, bool) {
	account, ok := c.Locals(AccountLocalsKey).(*Account)
	return account, ok && account != nil
}

// RequireSession guards routes that demand an authenticated account. The
// gatekeeper must run first; anonymous requests are bounced to the login page
// with the original URL remembered for the post-login redirect.
func RequireSession(auther *RouteAuthenticator, loginRoute string) fiber.Handler {
	if loginRoute == "" {
		loginRoute = "/login"
	}

	return func(c *fiber.Ctx) error {
		if _, err := SessionFromLocals(c); err != nil {
			auther.SetRedirect(c)

			statusCode := fiber.StatusSeeOther
			if c.Method() == fiber.MethodGet {
				statusCode = fiber.StatusFound
			}
			return c.Redirect(loginRoute, statusCode)
		}
		return c.Next()
	}
}
