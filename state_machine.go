package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// invalidTransition wraps the sentinel into a fresh error before attaching
// metadata. WithMetadata mutates its receiver, so writing onto the shared
// sentinel would leak details across unrelated failures.
func invalidTransition(meta map[string]any) *goerrors.Error {
	return goerrors.Wrap(ErrInvalidTransition, ErrInvalidTransition.Category, ErrInvalidTransition.Message).
		WithTextCode(ErrInvalidTransition.TextCode).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(meta)
}

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine defines lifecycle operations for accounts.
//
// The graph has exactly three states. Any status can be blocked; a blocked
// account is unblocked back to the status its confirmation token implies.
// Confirmation is handled by the store (it must atomically clear the token)
// and only the resulting status change flows through the machine.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	Block(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error)
	Unblock(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error)
	CurrentStatus(account *Account) AccountStatus
}

// StatusUpdater is the slice of the store the machine needs to persist a
// transition.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error)
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the
// provided store.
func NewAccountStateMachine(store StatusUpdater, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		store: store,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusUnverified: {
				AccountStatusActive:  {},
				AccountStatusBlocked: {},
			},
			AccountStatusActive: {
				AccountStatusBlocked: {},
			},
			AccountStatusBlocked: {
				AccountStatusActive:     {},
				AccountStatusUnverified: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	store        StatusUpdater
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata TransitionMetadata
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, invalidTransition(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	account.EnsureStatus()
	from := account.Status
	if !ValidStatus(target) {
		return nil, invalidTransition(map[string]any{
			"target": target,
			"reason": "unknown target status",
		})
	}

	if from == target {
		return account, nil
	}

	if !sm.canTransition(from, target) {
		return nil, invalidTransition(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := sm.buildTransitionOptions(opts...)

	updated, err := sm.store.UpdateStatus(ctx, account.ID, target)
	if err != nil {
		return nil, err
	}

	if updated != nil && updated.Status != "" {
		account.Status = updated.Status
	} else {
		account.Status = target
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(options.cloneMetadata()),
	})

	return account, nil
}

// Block moves any account into the blocked status. It reports whether the
// account actually changed: blocking an already blocked account is a
// tolerated no-op that does not count toward bulk operation totals.
func (sm *accountStateMachine) Block(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error) {
	if account == nil {
		return false, invalidTransition(map[string]any{
			"reason": "account is nil",
		})
	}

	if account.IsBlocked() {
		return false, nil
	}

	if _, err := sm.Transition(ctx, actor, account, AccountStatusBlocked, opts...); err != nil {
		return false, err
	}

	return true, nil
}

// Unblock restores a blocked account to the status implied by its
// confirmation token. Accounts that are not blocked are skipped.
func (sm *accountStateMachine) Unblock(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (bool, error) {
	if account == nil {
		return false, invalidTransition(map[string]any{
			"reason": "account is nil",
		})
	}

	if !account.IsBlocked() {
		return false, nil
	}

	if _, err := sm.Transition(ctx, actor, account, account.RestoredStatus(), opts...); err != nil {
		return false, err
	}

	return true, nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	account.EnsureStatus()
	return account.Status
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func (sm *accountStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
