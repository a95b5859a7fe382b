package arbiter

import (
	"encoding/json"
	"fmt"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// nodeMaskKey is the shared-config-store key spec.md §6.3 names
// "node-mask-<i>".
func nodeMaskKey(id gtid.NodeID) string {
	return fmt.Sprintf("node-mask-%d", id)
}

const nodeMaskPrefix = "node-mask-"

// nodeMaskRecord is the payload published at nodeMaskKey: one node's
// self-reported connectivity mask and the wall-clock time it was
// published, so peers can apply heartbeat-recv-timeout against it.
type nodeMaskRecord struct {
	NodeID    gtid.NodeID  `json:"node_id"`
	Mask      gtid.NodeSet `json:"mask"`
	Timestamp int64        `json:"timestamp_unix_micro"`
}

func encodeNodeMask(r nodeMaskRecord) ([]byte, error) {
	return json.Marshal(r)
}

func decodeNodeMask(data []byte) (nodeMaskRecord, error) {
	var r nodeMaskRecord
	err := json.Unmarshal(data, &r)
	return r, err
}
