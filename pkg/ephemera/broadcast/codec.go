package broadcast

import (
	"encoding/json"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// encodeBlock/decodeBlock serialise a Block for the BlockBytes field of a
// PrePrepare message. JSON keeps the wire format transport-neutral and easy
// to inspect, matching the teacher's choice of encoding/json for its own
// Message wire type (pkg/mcast/core/transport.go's ReliableTransport).
func encodeBlock(block types.Block) ([]byte, error) {
	return json.Marshal(block)
}

func decodeBlock(data []byte) (types.Block, error) {
	var block types.Block
	err := json.Unmarshal(data, &block)
	return block, err
}
