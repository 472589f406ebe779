// Package authkit provides a credential and session lifecycle engine with
// JWT access tokens, rotating opaque refresh tokens, login lockout, and
// one-time-code flows for password reset and email verification.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] integration interface, and value types (TokenPair, Claims,
// RegisterResult, …). Mechanism lives in subpackages: jwt/ signs and verifies
// access tokens, password/ hashes credentials, session/ persists refresh
// sessions in Redis, userstore/ is the bundled SQLite [UserStore], and
// internal/ holds coordination that is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Persist or log a raw refresh token or one-time code; only SHA-256
//     hashes are stored and compared.
//   - Distinguish "no such user" from "wrong password" in anything returned
//     to a caller.
//
// # Token model
//
// Access tokens are stateless HS256 JWTs with a short TTL. Refresh tokens
// are opaque 48-byte values (session id + secret) tracked server-side and
// rotated on every use; presenting an already-rotated token destroys the
// session and fails, which makes token theft observable.
package authkit
