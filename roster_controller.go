package accounts

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RegisterRosterRoutes mounts the admin roster under the given router group.
// The group must already run the gatekeeper plus RequireSession.
func RegisterRosterRoutes(app fiber.Router, opts ...RosterControllerOption) *RosterController {
	controller := NewRosterController(opts...)

	app.Get(controller.Routes.Roster, controller.RosterShow).Name("roster.get")
	app.Post(controller.Routes.Block, controller.BlockPost).Name("roster.block")
	app.Post(controller.Routes.Unblock, controller.UnblockPost).Name("roster.unblock")
	app.Post(controller.Routes.Delete, controller.DeletePost).Name("roster.delete")
	app.Post(controller.Routes.Purge, controller.PurgePost).Name("roster.purge")

	return controller
}

type RosterControllerRoutes struct {
	Roster  string
	Block   string
	Unblock string
	Delete  string
	Purge   string
}

type RosterController struct {
	Logger       Logger
	Repo         RepositoryManager
	Routes       *RosterControllerRoutes
	View         string
	ErrorHandler func(*fiber.Ctx, error) error

	blocker   *BlockAccountsHandler
	unblocker *UnblockAccountsHandler
	deleter   *DeleteAccountsHandler
	purger    *PurgeUnverifiedHandler
}

type RosterControllerOption func(*RosterController) *RosterController

func NewRosterController(opts ...RosterControllerOption) *RosterController {
	c := &RosterController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		View:         "roster",
		Routes: &RosterControllerRoutes{
			Roster:  "/admin/accounts",
			Block:   "/admin/accounts/block",
			Unblock: "/admin/accounts/unblock",
			Delete:  "/admin/accounts/delete",
			Purge:   "/admin/accounts/purge-unverified",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in roster controller...")
	}

	if c.blocker == nil {
		c.blocker = NewBlockAccountsHandler(c.Repo, WithRosterOpsLogger(c.Logger))
	}
	if c.unblocker == nil {
		c.unblocker = NewUnblockAccountsHandler(c.Repo, WithRosterOpsLogger(c.Logger))
	}
	if c.deleter == nil {
		c.deleter = NewDeleteAccountsHandler(c.Repo, WithRosterOpsLogger(c.Logger))
	}
	if c.purger == nil {
		c.purger = NewPurgeUnverifiedHandler(c.Repo, WithRosterOpsLogger(c.Logger))
	}

	return c
}

func WithRosterControllerRepo(repo RepositoryManager) RosterControllerOption {
	return func(c *RosterController) *RosterController {
		c.Repo = repo
		return c
	}
}

func WithRosterControllerLogger(logger Logger) RosterControllerOption {
	return func(c *RosterController) *RosterController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithRosterControllerHandlers(
	blocker *BlockAccountsHandler,
	unblocker *UnblockAccountsHandler,
	deleter *DeleteAccountsHandler,
	purger *PurgeUnverifiedHandler,
) RosterControllerOption {
	return func(c *RosterController) *RosterController {
		c.blocker = blocker
		c.unblocker = unblocker
		c.deleter = deleter
		c.purger = purger
		return c
	}
}

func (a *RosterController) RosterShow(c *fiber.Ctx) error {
	sortBy := c.Query("sortBy")
	sortOrder := c.Query("sortOrder")

	records, err := a.Repo.Accounts().Roster(c.Context(), sortBy, sortOrder)
	if err != nil {
		a.Logger.Error("roster query error: %s", err)
		return a.ErrorHandler(c, err)
	}

	current, _ := AccountFromLocals(c)

	return c.Render(a.View, FlashViewContext(c, fiber.Map{
		"records":    records,
		"sort_by":    sortBy,
		"sort_order": sortOrder,
		"current":    current,
	}))
}

func (a *RosterController) BlockPost(c *fiber.Ctx) error {
	return a.bulkOp(c, func(actor ActorRef, ids []uuid.UUID, report func(RosterReport)) error {
		return a.blocker.Execute(c.Context(), BlockAccountsMessage{
			Actor:    actor,
			IDs:      ids,
			OnReport: report,
		})
	})
}

func (a *RosterController) UnblockPost(c *fiber.Ctx) error {
	return a.bulkOp(c, func(actor ActorRef, ids []uuid.UUID, report func(RosterReport)) error {
		return a.unblocker.Execute(c.Context(), UnblockAccountsMessage{
			Actor:    actor,
			IDs:      ids,
			OnReport: report,
		})
	})
}

func (a *RosterController) DeletePost(c *fiber.Ctx) error {
	return a.bulkOp(c, func(actor ActorRef, ids []uuid.UUID, report func(RosterReport)) error {
		return a.deleter.Execute(c.Context(), DeleteAccountsMessage{
			Actor:    actor,
			IDs:      ids,
			OnReport: report,
		})
	})
}

func (a *RosterController) PurgePost(c *fiber.Ctx) error {
	var report RosterReport

	err := a.purger.Execute(c.Context(), PurgeUnverifiedMessage{
		Actor: a.actor(c),
		OnReport: func(r RosterReport) {
			report = r
		},
	})
	if err != nil {
		a.Logger.Error("purge unverified error: %s", err)
		return a.ErrorHandler(c, err)
	}

	level := FlashSuccess
	if report.NothingToDo() {
		level = FlashError
	}

	SetFlash(c, level, report.String())
	return c.Redirect(a.Routes.Roster, fiber.StatusSeeOther)
}

func (a *RosterController) bulkOp(c *fiber.Ctx, run func(ActorRef, []uuid.UUID, func(RosterReport)) error) error {
	ids, err := selectedIDs(c)
	if err != nil {
		// fixed copy; the error's rendering is not a user-facing contract
		SetFlash(c, FlashError, "Invalid account selection.")
		return c.Redirect(a.Routes.Roster, fiber.StatusSeeOther)
	}

	var report RosterReport

	err = run(a.actor(c), ids, func(r RosterReport) {
		report = r
	})
	if err != nil {
		if goerrors.Is(err, ErrEmptySelection) {
			SetFlash(c, FlashError, "Select at least one account first.")
			return c.Redirect(a.Routes.Roster, fiber.StatusSeeOther)
		}
		a.Logger.Error("roster bulk op error: %s", err)
		return a.ErrorHandler(c, err)
	}

	SetFlash(c, FlashSuccess, report.String())
	return c.Redirect(a.Routes.Roster, fiber.StatusSeeOther)
}

func (a *RosterController) actor(c *fiber.Ctx) ActorRef {
	if account, ok := AccountFromLocals(c); ok {
		return ActorRef{ID: account.ID.String(), Type: "account"}
	}

	if session, err := SessionFromLocals(c); err == nil {
		return ActorRef{ID: session.GetUserID(), Type: "session"}
	}

	return ActorRef{Type: "anonymous"}
}

// selectedIDs reads the multi-valued "ids" form field. An absent selection is
// reported by the handlers as ErrEmptySelection; a malformed id is rejected
// here before anything runs.
func selectedIDs(c *fiber.Ctx) ([]uuid.UUID, error) {
	raw := c.Context().PostArgs().PeekMulti("ids")

	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(string(v))
		if err != nil {
			return nil, goerrors.New("invalid account id in selection", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
