// Package engine implements the incremental block render engine.
//
// The engine turns a declarative component tree plus the persisted hook
// state of the previous invocation into a rendered block tree, a minimal
// state delta, and a list of side-effect instructions for the host.
//
// ARCHITECTURE:
//
// Stateless Invocations:
// Every call to Engine.Handle owns a private invocation (the render
// context). Nothing survives across calls except what the host sends back
// in the next request's state map. Two concurrent Handle calls never share
// mutable data.
//
// Event Processing Flow:
//  1. Incoming events are partitioned into batches: one main-queue event,
//     or a maximal run of consecutive other-queue events.
//  2. Each batch starts with a reload pass: the tree is rendered to
//     re-register hook handlers against the current working state.
//  3. Main-queue events are applied to their hook one at a time; an
//     other-queue batch runs its handlers concurrently and keeps only the
//     effects and events they emit.
//  4. After every successful batch the working state is checkpointed. A
//     failing handler rolls back to the checkpoint and requeues the failed
//     event and everything after it with retry set.
//  5. A final render builds the block tree and the state delta is
//     computed against the prior state.
//
// Hook Identity:
// Hook ids are derived from the structural path of the owning component
// (component names, intrinsic tags, explicit keys) plus the hook namespace
// and a per-namespace index. See identity.go for the grammar.
//
// Suspension:
// A hook that needs a host round trip records a *Suspension on the pass
// instead of unwinding the stack. The pass still completes so hook counts
// stay consistent; the tree it built is discarded.
package engine
