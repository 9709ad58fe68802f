// Package accounts implements account lifecycle management for a small web
// application: registration with email confirmation, cookie-based login, and
// an administrative roster to list, sort, block/unblock, and delete accounts.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus field persisted via Bun. Statuses cover
//     unverified, active, and blocked. Every new account starts unverified
//     with a fresh confirmation token; confirming the token promotes the
//     account to active and clears the token exactly once.
//   - AccountStateMachine centralizes the transition graph and persistence.
//     Unblocking restores the status the account would have had absent the
//     block, reconstructed from whether the confirmation token is still set.
//
// Request gating:
//   - Gatekeeper is a fiber middleware that re-reads the caller's account from
//     the store on every request and forcibly terminates sessions whose
//     account has been blocked or deleted mid-session. Session claims are
//     never trusted for status.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the authenticator,
//     the state machine, and the roster commands. Sinks run best-effort
//     (errors are logged) so you can forward events without blocking requests.
package accounts
