// Package votingledger implements the voting ledger inside the governance
// context.
//
// The module owns per-ledger vote recording (cast/change/clear), the voting
// rights registry whose transfers carry a recorded choice to the new holder,
// and deadline-driven settlement. Settlement runs earliest-deadline-first
// through an in-process scheduler hydrated from storage; deterministic
// ledgers resolve on close, weighted-lottery ledgers resolve when the
// randomness source fulfils the pending request.
package votingledger
