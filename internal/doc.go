// Package internal contains helper utilities that are intentionally private to
// rotary, including the refresh-token wire codec and secret generation.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for issuance and rotation
//   - rate — Redis-backed refresh throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public rotary API.
//   - Be imported by any package outside the rotary module.
package internal
