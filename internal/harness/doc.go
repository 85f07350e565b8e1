// Package harness runs conformance scenarios against the barter engine.
//
// A scenario seeds an in-memory directory and wallet, drives a real
// engine through a flow of operations and asserts on the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	limits:
//	  max_cash_difference: "500"
//	fixture:
//	  users:
//	    - id: A
//	      balance: "1000"
//	      items:
//	        - {id: a-item, category: electronics, value: "1000"}
//	      wants:
//	        - {category: books, min: "900", max: "1000"}
//	flow:
//	  - op: find
//	    item: a-item
//	    expect: {count: 1}
//	  - op: propose
//	    as: A
//	  - op: respond
//	    as: B
//	    accept: true
//	  - op: execute
//	    attempt: attempt-1
//	    expect: {status: COMPLETED}
//	assertions:
//	  - type: item
//	    item: a-item
//	    owner: C
//	  - type: balance
//	    user: A
//	    amount: "1050"
//
// A step without an expect clause must succeed. An expect clause may name
// the error code, the chain status after the step, a candidate count or a
// validator verdict.
//
// # Failure Injection
//
// The fail op breaks one saga step (lock, ledger or transfer) of the
// in-memory directory until a clear op, so rollback paths run exactly as
// they would against a failing downstream service.
//
// # Assertion Types
//
//   - item: owner and/or status of an item
//   - balance: a user's wallet balance
//   - chain_status: status of a chain
//   - event_order: statuses appear in order among a chain's events
//   - journal: number and sum of ledger entries
//
// # Deterministic Testing
//
// The harness uses a manual clock starting at testutil.Epoch and
// sequential ids ("chain-1", "chain-2", ...), so identical scenarios yield
// identical traces for golden file comparison.
package harness
