// Package barter defines the data model shared by every stage of the
// multi-party barter chain engine.
//
// The model has two halves:
//
// Search-time (ephemeral):
//   - Item and WantCriteria are snapshots fetched from the Item/User Directory.
//   - ChainCandidate is an ordered list of Slots produced by the enumerator
//     and priced by the settlement calculator.
//
// Persisted:
//   - BarterChain is the aggregate owned by the engine. It carries a fixed
//     array of ChainParticipant records, so "all accepted" is a fold over
//     that array rather than a join.
//
// ORIENTATION:
//
// Slot 0 is the origin. In a CYCLE slot i gives its item to slot i+1 and
// the last slot gives to slot 0. In a LINEAR chain goods flow toward the
// origin: slot i gives to slot i-1, the origin gives nothing and the tail
// slot receives nothing. The tail is compensated in cash only.
//
// MONEY:
//
// Every monetary value is a shopspring decimal rounded to MoneyPlaces.
// Binary floating point is used only for the fairness score, which is a
// ratio and never feeds back into a settlement.
package barter
