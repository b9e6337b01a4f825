// Package twofa provides a tenant-scoped, multi-provider two-factor
// authentication engine: tenant-level provider configuration (TOTP, SMS,
// email), the per-user enrollment handshake (generate a candidate credential,
// dispatch or display a challenge, verify a submitted code, persist the
// credential only on success), and login-time code verification against
// committed credentials.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// twofa is the public surface. It exposes [Engine], [Builder], [Config], the
// tagged configuration types ([ProviderConfig], [AccountConfig]), and the
// collaborator interfaces callers implement ([ConfigStore], [CodeSender],
// [Clock]). Transport, identity, and session management stay outside: Engine
// methods are the logical RPCs an external transport layer consumes.
//
// # What this package must NOT do
//
//   - Hold tenant settings as ambient mutable state; settings are loaded from
//     the [ConfigStore] on every request.
//   - Persist a candidate credential before its verification code matched.
//   - Mask delivery failures as success.
//
// # Concurrency contract
//
// Settings writes replace the whole provider set atomically per tenant.
// Pending challenge consumption is compare-and-set: of any number of
// concurrent verification attempts against the same challenge, exactly one
// commits; the rest observe [ErrNoPendingChallenge] or [ErrIncorrectCode].
package twofa
