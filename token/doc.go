// Package token provides persistence for refresh-token records: one record per
// issued refresh credential, indexed by principal and by rotation chain.
//
// # Storage layout
//
// The Redis implementation stores each record as a hash under rec:<id>, with
// set indexes pr:<principal> and ch:<chain>. Records carry a TTL of remaining
// lifetime plus a retention grace so revoked ancestors stay queryable for
// reuse forensics.
//
// # Architecture boundaries
//
// This package owns record storage and the atomic revocation primitives. It
// does NOT hash secrets (callers inject a [Verifier]), mint tokens, or decide
// what a revocation means — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Accept or store raw secret material; records hold digests only.
//   - Implement MarkRevoked as a read followed by a write.
//   - Import rotary or any sibling internal package.
package token
