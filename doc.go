// Package sentinel provides user account management primitives: registration,
// profile updates, group assignment, activation, password changes and a
// throttle that gates authentication with suspensions and bans.
//
// Account lifecycle:
//   - Service is the entry point. Every operation takes a plain key/value Input
//     and returns a Result. Expected business failures (validation, missing
//     records, bad credentials) travel inside the Result and carry an
//     ErrorKind; store and connectivity failures are returned as a Go error.
//   - Users move from pending to activated through Activate, or are activated
//     at registration time when the "activate" flag is set or activation is
//     not required by configuration.
//   - Additional profile fields are an allow-list compiled from configuration
//     when the Service is built. Fields outside the list are dropped.
//
// Throttling:
//   - Every user owns a Throttle record. ThrottlePolicy evaluates it lazily:
//     a suspension expires on its own once its deadline passes, a ban stays in
//     place until Unban is called.
//   - Authenticate consults the throttle before checking the password and
//     reports suspended and banned accounts with distinct kinds. Failed
//     attempts accumulate and may suspend, then ban, the account.
//
// Events:
//   - EventSink receives one notification per state change (user.registered,
//     user.activated, user.suspended, ...). Sinks run best-effort: a failure is
//     logged and attached to the Result as a warning, the committed change is
//     kept.
package sentinel
