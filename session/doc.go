// Package session manages the lifecycle of handover sessions: creation,
// append-only handover chains, phase transitions, bounded rollback, and
// expiry sweeping.
//
// Sessions persist through a pluggable Store (memory, redis, or SQL). The
// manager serializes all mutations per session, so every write the store
// sees is a complete, consistent session snapshot.
package session
