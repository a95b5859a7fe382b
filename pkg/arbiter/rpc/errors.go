package rpc

import "errors"

// ErrBadMac is returned when an inbound arbiter-socket message's HMAC
// tag does not match, meaning it did not originate from a process
// holding the cluster-shared secret (spec.md §6.1).
var ErrBadMac = errors.New("rpc: message authentication failed")
