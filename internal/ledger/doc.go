// Package ledger implements token-balance admission control. Every
// generation job debits its fixed cost here before it is allowed to
// start; external payment confirmations credit balances through the same
// service. Each balance mutation writes an immutable activity row in the
// same transaction, so the balance never moves without an audit record.
package ledger
