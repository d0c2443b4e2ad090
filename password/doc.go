// Package password implements the credential service: argon2id hashing with
// PHC-encoded output, constant-time verification, and the fixed password
// strength policy enforced at registration and password change.
//
// Hashing is salted per call, so two hashes of the same password never
// compare equal. Callers must only compare via [Hasher.Verify].
package password
