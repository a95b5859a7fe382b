package visibility

import "errors"

// ErrRetriesExhausted is returned when an in-doubt transaction's outcome
// did not resolve within the configured retry cap (spec.md §4.3's "hard
// cap of ~100 retries"). Per spec.md's open question, exceeding the cap
// fails the reader's query; it does not itself abort the in-doubt
// transaction being waited on.
var ErrRetriesExhausted = errors.New("visibility: failed to get status of XID")
