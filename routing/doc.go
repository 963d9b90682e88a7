// Package routing turns a classification plus workflow signals and user
// preferences into a routing decision. The engine is a pure decision table:
// it holds no state, performs no I/O, and the same inputs always produce the
// same decision against the same configuration snapshot.
package routing
