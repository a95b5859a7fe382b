package rpc

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Message authentication mirrors this codebase's SCRAM-SHA-256
// credential derivation (pkg/auth.auth.go): a cluster-shared secret is
// stretched with pbkdf2 into a fixed-length signing key, and every
// arbiter-socket message is tagged with an HMAC-SHA256 over its
// canonical fields so a process outside the cluster can't forge a vote.
const (
	arbiterKeySalt       = "laura-mtm-arbiter-channel-v1"
	arbiterKeyIterations = 4096
	arbiterKeyLength     = 32
)

// DeriveSigningKey stretches the cluster-shared secret into the key
// used to sign/verify every arbiter-socket message.
func DeriveSigningKey(clusterSecret []byte) []byte {
	return pbkdf2.Key(clusterSecret, []byte(arbiterKeySalt), arbiterKeyIterations, arbiterKeyLength, sha256.New)
}

func sign(key []byte, parts ...string) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator, avoids "a"+"bc" colliding with "ab"+"c"
	}
	return h.Sum(nil)
}

func verify(key []byte, mac []byte, parts ...string) bool {
	return hmac.Equal(mac, sign(key, parts...))
}

func preparePayload(req *PrepareRequest) []string {
	return []string{req.Gid, fmt.Sprint(req.Node), fmt.Sprint(req.Xid), fmt.Sprint(req.CommitCsn0)}
}

func commitPayload(req *CommitRequest) []string {
	return []string{req.Gid, fmt.Sprint(req.FinalCsn)}
}

func abortPayload(req *AbortRequest) []string {
	return []string{req.Gid}
}

func heartbeatPayload(req *HeartbeatRequest) []string {
	return []string{fmt.Sprint(req.Node)}
}
