// Package secret implements salted, memory-hard digests of refresh secrets
// with Argon2id, plus a bounded concurrency pool over the hashing work.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification replays the parameters recorded in the digest, so cost changes
// roll out without invalidating stored digests; [Hasher.NeedsUpgrade] reports
// when a digest lags the configured parameters.
//
// # Architecture boundaries
//
// This package owns digest computation and the concurrency cap. Secret
// generation, storage, and rotation policy belong to the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets — callers supply raw bytes and receive digests.
//   - Queue hashing work beyond the caller's context deadline.
//   - Import any other rotary package.
package secret
