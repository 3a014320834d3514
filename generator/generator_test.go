package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDbyIP(t *testing.T) {
	assert.Equal(t, uint32(16777217), IDbyIP("1.0.0.1"))
	assert.Equal(t, uint32(2130706433), IDbyIP("127.0.0.1"))
	assert.Zero(t, IDbyIP("not an ip"))
}

func TestNodeIDStaysInSnowflakeRange(t *testing.T) {
	for _, ip := range []string{"10.0.0.1", "192.168.1.77", "255.255.255.255"} {
		id := NodeID(ip)
		assert.GreaterOrEqual(t, id, int64(0), ip)
		assert.Less(t, id, int64(1024), ip)
	}
	// same address, same node id
	assert.Equal(t, NodeID("10.1.2.3"), NodeID("10.1.2.3"))
}
