// Package session stores TTL-bound session records in Redis, keyed by a
// cryptographically random opaque identifier.
//
// Absence of a session is a valid terminal state, not an error: Get returns
// (nil, nil) for unknown ids and callers must treat that as an anonymous
// caller. Transient backend errors are retried exactly once with no backoff;
// persistent failures surface as ErrRedisUnavailable and never panic.
package session
