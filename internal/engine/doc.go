// Package engine exposes the barter chain operations: find, propose,
// respond, validate, execute and cancel, plus the expiry sweep.
//
// ARCHITECTURE:
//
// Search is read-only. FindChains builds a bounded compatibility graph from
// the focal item (graph), enumerates cycles and linear chains over it
// (search) and prices every candidate (settlement). Unrelated searches run
// fully in parallel.
//
// Lifecycle writes go through one path. Each mutating operation:
//  1. takes the in-process lock for the chain id
//  2. loads the stored chain and transitions a private copy (chain)
//  3. commits it with its audit events under the store's version check
//  4. releases item reservations if the new status frees them
//
// A failed transition or commit leaves the stored chain as it was.
//
// Reservations are the cross-chain guard. ProposeChain moves every giving
// item AVAILABLE -> RESERVED under the new chain id by compare-and-swap,
// so two proposals racing for one item resolve to exactly one winner.
//
// Execution is a saga (execution) whose last step writes the COMPLETED
// chain and the execution result in one transaction. Items are TRADED if
// and only if that write commits; otherwise every step is compensated and
// the chain returns to ACCEPTED with the failure attached.
//
// The engine holds no timers. ExpireDue applies the chain.IsExpired
// predicate and is meant to be polled by an external scheduler.
package engine
