// Package archive is the Go client SDK for the Iranian legal-document
// archive API: session lifecycle, token persistence, authorized request
// dispatch, and role-based access gating.
//
// Session lifecycle:
//   - SessionManager owns the single client session. It drives a closed
//     state machine (unknown, authenticating, authenticated, anonymous)
//     through Bootstrap, Login, Logout, and token refresh. Transitions are
//     computed by a pure Transition function that also names the side
//     effects to run (persist token, clear token, tear down the realtime
//     channel), so the logic is testable without I/O.
//
// Authorized requests:
//   - Dispatcher wraps outbound API calls, injects the bearer token from
//     the TokenStore, and on a 401 coalesces all concurrent callers onto a
//     single token refresh before replaying each original request exactly
//     once. A second 401 after replay is surfaced, never retried.
//
// Access control:
//   - Role gates are explicit allow-lists. An admin is not implicitly
//     included in a lawyer-only gate; composite sets such as LawyerAndAbove
//     enumerate their members. Guard checks authentication before role.
//
// The realtime subpackage carries the WebSocket status channel used by
// dashboards to follow scraping and document-processing progress.
package archive
