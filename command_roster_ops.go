package accounts

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RosterReport summarizes the outcome of a bulk roster operation. Selected is
// how many accounts the operator picked, Changed how many actually moved.
type RosterReport struct {
	Action   string
	Selected int
	Changed  int
}

func (r RosterReport) NothingToDo() bool {
	return r.Changed == 0
}

func (r RosterReport) String() string {
	if r.Action == "purged" {
		if r.Changed == 0 {
			return "No unverified accounts to purge"
		}
		return fmt.Sprintf("Purged %d unverified account(s)", r.Changed)
	}

	return fmt.Sprintf("%s %d of %d selected account(s)",
		capitalizeAction(r.Action), r.Changed, r.Selected)
}

func capitalizeAction(action string) string {
	switch action {
	case "blocked":
		return "Blocked"
	case "unblocked":
		return "Unblocked"
	case "deleted":
		return "Deleted"
	default:
		return action
	}
}

type rosterOpsHandler struct {
	repo   RepositoryManager
	logger Logger
	sink   ActivitySink
}

type RosterOpsOption func(*rosterOpsHandler)

func WithRosterOpsLogger(logger Logger) RosterOpsOption {
	return func(h *rosterOpsHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithRosterOpsActivitySink(sink ActivitySink) RosterOpsOption {
	return func(h *rosterOpsHandler) {
		h.sink = normalizeActivitySink(sink)
	}
}

func newRosterOpsHandler(repo RepositoryManager, opts ...RosterOpsOption) rosterOpsHandler {
	h := rosterOpsHandler{
		repo:   repo,
		logger: defLogger{},
		sink:   noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&h)
		}
	}

	return h
}

func (h rosterOpsHandler) record(ctx context.Context, event ActivityEvent) {
	if err := h.sink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error: %s", err)
	}
}

func guardSelection(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	return nil
}

// --- Block ---

type BlockAccountsMessage struct {
	Actor    ActorRef    `json:"actor"`
	IDs      []uuid.UUID `json:"ids"`
	OnReport func(RosterReport)
}

func (e BlockAccountsMessage) Type() string { return "accounts.block" }

// BlockAccountsHandler blocks every selected account unconditionally.
// Operators may block themselves; the gatekeeper evicts them on their next
// request. Already-blocked accounts are tolerated but not counted as changed.
type BlockAccountsHandler struct {
	rosterOpsHandler
}

func NewBlockAccountsHandler(repo RepositoryManager, opts ...RosterOpsOption) *BlockAccountsHandler {
	return &BlockAccountsHandler{newRosterOpsHandler(repo, opts...)}
}

func (h *BlockAccountsHandler) Execute(ctx context.Context, event BlockAccountsMessage) error {
	if err := guardSelection(event.IDs); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	accounts, err := h.repo.Accounts().GetAllByID(ctx, event.IDs)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load selected accounts")
	}

	changed := 0
	for _, account := range accounts {
		did, err := h.repo.Accounts().Block(ctx, event.Actor, account)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not block account").
				WithMetadata(map[string]any{"account_id": account.ID.String()})
		}
		if did {
			changed++
		}
	}

	if event.OnReport != nil {
		event.OnReport(RosterReport{Action: "blocked", Selected: len(event.IDs), Changed: changed})
	}

	return nil
}

// --- Unblock ---

type UnblockAccountsMessage struct {
	Actor    ActorRef    `json:"actor"`
	IDs      []uuid.UUID `json:"ids"`
	OnReport func(RosterReport)
}

func (e UnblockAccountsMessage) Type() string { return "accounts.unblock" }

// UnblockAccountsHandler releases blocked accounts. The restored status is
// derived from the confirmation token: accounts that never confirmed go back
// to unverified, confirmed ones to active. Non-blocked selections are skipped
// and not counted.
type UnblockAccountsHandler struct {
	rosterOpsHandler
}

func NewUnblockAccountsHandler(repo RepositoryManager, opts ...RosterOpsOption) *UnblockAccountsHandler {
	return &UnblockAccountsHandler{newRosterOpsHandler(repo, opts...)}
}

func (h *UnblockAccountsHandler) Execute(ctx context.Context, event UnblockAccountsMessage) error {
	if err := guardSelection(event.IDs); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	accounts, err := h.repo.Accounts().GetAllByID(ctx, event.IDs)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load selected accounts")
	}

	changed := 0
	for _, account := range accounts {
		did, err := h.repo.Accounts().Unblock(ctx, event.Actor, account)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not unblock account").
				WithMetadata(map[string]any{"account_id": account.ID.String()})
		}
		if did {
			changed++
		}
	}

	if event.OnReport != nil {
		event.OnReport(RosterReport{Action: "unblocked", Selected: len(event.IDs), Changed: changed})
	}

	return nil
}

// --- Delete ---

type DeleteAccountsMessage struct {
	Actor    ActorRef    `json:"actor"`
	IDs      []uuid.UUID `json:"ids"`
	OnReport func(RosterReport)
}

func (e DeleteAccountsMessage) Type() string { return "accounts.delete" }

// DeleteAccountsHandler removes accounts outright. Deletion is terminal; any
// live session of a deleted account dies at the gatekeeper on its next
// request. Self-deletion is allowed.
type DeleteAccountsHandler struct {
	rosterOpsHandler
}

func NewDeleteAccountsHandler(repo RepositoryManager, opts ...RosterOpsOption) *DeleteAccountsHandler {
	return &DeleteAccountsHandler{newRosterOpsHandler(repo, opts...)}
}

func (h *DeleteAccountsHandler) Execute(ctx context.Context, event DeleteAccountsMessage) error {
	if err := guardSelection(event.IDs); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	deleted, err := h.repo.Accounts().DeleteAll(ctx, event.IDs)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete accounts")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventDeleted,
		Actor:     event.Actor,
		Metadata: map[string]any{
			"selected": len(event.IDs),
			"deleted":  deleted,
		},
		OccurredAt: time.Now(),
	})

	if event.OnReport != nil {
		event.OnReport(RosterReport{Action: "deleted", Selected: len(event.IDs), Changed: int(deleted)})
	}

	return nil
}

// --- Purge unverified ---

type PurgeUnverifiedMessage struct {
	Actor    ActorRef `json:"actor"`
	OnReport func(RosterReport)
}

func (e PurgeUnverifiedMessage) Type() string { return "accounts.purge_unverified" }

// PurgeUnverifiedHandler removes every account still waiting on email
// confirmation. An empty purge is a valid, distinct outcome rather than an
// error.
type PurgeUnverifiedHandler struct {
	rosterOpsHandler
}

func NewPurgeUnverifiedHandler(repo RepositoryManager, opts ...RosterOpsOption) *PurgeUnverifiedHandler {
	return &PurgeUnverifiedHandler{newRosterOpsHandler(repo, opts...)}
}

func (h *PurgeUnverifiedHandler) Execute(ctx context.Context, event PurgeUnverifiedMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	purged, err := h.repo.Accounts().PurgeUnverified(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not purge unverified accounts")
	}

	if purged > 0 {
		h.record(ctx, ActivityEvent{
			EventType: ActivityEventPurged,
			Actor:     event.Actor,
			Metadata: map[string]any{
				"purged": purged,
			},
			OccurredAt: time.Now(),
		})
	}

	if event.OnReport != nil {
		event.OnReport(RosterReport{Action: "purged", Selected: int(purged), Changed: int(purged)})
	}

	return nil
}
