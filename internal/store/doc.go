// Package store provides SQLite-backed storage for the local host.
//
// The engine itself is stateless: every invocation receives the prior hook
// state and returns a delta. The store is what a host keeps between
// invocations:
//   - Sessions: one mounted root component, its props and hook state
//   - Transcripts: every request and response of a session, in order
//   - KV: the key-value service handed to components
//   - Jobs: the scheduler service handed to components
//
// Hook state, KV values and transcript entries are stored as canonical
// JSON text, so equal values compare equal as strings and replays are
// byte-for-byte reproducible.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
