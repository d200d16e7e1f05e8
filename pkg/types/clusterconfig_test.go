package types

import (
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterConfigRoundTrip(t *testing.T) {
	cfg := ClusterConfig{
		Servers: []ClusterServer{
			{ID: "n1", Address: "10.0.0.1:8300", Suffrage: raft.Voter},
			{ID: "n2", Address: "10.0.0.2:8300", Suffrage: raft.Nonvoter},
		},
	}

	data, err := EncodeClusterConfig(cfg)
	require.NoError(t, err)

	decoded, err := DecodeClusterConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func TestDecodeClusterConfigInvalidPayload(t *testing.T) {
	_, err := DecodeClusterConfig([]byte("not json"))
	assert.Error(t, err)
}

func TestEncodeClusterConfigEmpty(t *testing.T) {
	data, err := EncodeClusterConfig(ClusterConfig{})
	require.NoError(t, err)

	decoded, err := DecodeClusterConfig(data)
	require.NoError(t, err)
	assert.Empty(t, decoded.Servers)
}
