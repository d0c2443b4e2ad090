// Package authcore is the authentication, session, and abuse-control core
// of the SecurePay transaction gateway. It turns a raw credential or bearer
// token into a trust decision, manages session and failed-login lifecycle,
// throttles request volume per caller, and protects sensitive fields at rest.
//
// The package is designed for concurrent server workloads: Guard and Gate
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build]. All cross-request state (sessions, rate counters)
// lives in Redis; account security state lives behind the injected
// [AccountProvider].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Guard], [Gate], [Builder],
// [Config], and value types. Rate limiting and audit dispatch live under
// internal/ and are never exported. Domain services (password, fieldcrypt,
// mfa, token, session) are standalone subpackages usable on their own.
//
// # Failure semantics
//
// The rate limiter fails open during backend outages; token validation and
// the account guard fail closed. Rejections returned to callers are generic
// and non-enumerable; the audit sink receives the precise reason.
package authcore
