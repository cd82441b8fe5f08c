// Package rotary manages the lifecycle of session tokens: it issues paired
// access and refresh credentials, rotates refresh tokens on every use, detects
// reuse of rotated-away secrets, and revokes whole rotation chains when a
// session ends or a theft is suspected.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// rotary is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (TokenPair, DeviceSession, MetricsSnapshot, etc.). All internal coordination — flow
// orchestration, wire encoding, rate limiting, audit dispatch — lives under internal/ and
// is never exported. The storage and hashing subpackages (token, secret, jwt) are
// importable for callers that embed their own store.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Reveal to a caller why a refresh was denied: [ClientFacing] collapses every
//     rotation denial to one opaque error.
//
// # Performance contract
//
// ValidateAccess is the hot path. It must not allocate beyond the returned Identity and
// must complete without a store round-trip. Refresh pays for one memory-hard digest
// verification per active record of the principal plus one hash for the successor; the
// hashing pool bounds how many of those run at once.
package rotary
