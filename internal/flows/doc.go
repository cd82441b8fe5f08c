// Package flows contains issuance and rotation logic decoupled from the root
// package through dependency structs, keeping the state machines testable
// without Redis or real hashing.
package flows
