package types

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/raft"
)

// ClusterServer is one member of a cluster configuration, shaped after
// raft.Server so that a Config command's payload round-trips directly
// against the consensus layer's own membership model.
type ClusterServer struct {
	ID       raft.ServerID      `json:"id"`
	Address  raft.ServerAddress `json:"address"`
	Suffrage raft.ServerSuffrage `json:"suffrage"`
}

// ClusterConfig is the value persisted under MetadataKeyConfig by a
// CommandConfig apply. The engine treats it as an opaque blob once encoded;
// only callers that build or read Config commands need this type.
type ClusterConfig struct {
	Servers []ClusterServer `json:"servers"`
}

// EncodeClusterConfig serializes a ClusterConfig for use as a Command's
// Config payload.
func EncodeClusterConfig(cfg ClusterConfig) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode cluster config: %w", err)
	}
	return data, nil
}

// DecodeClusterConfig parses a payload previously produced by
// EncodeClusterConfig, such as the value returned from read_metadata(config).
func DecodeClusterConfig(data []byte) (ClusterConfig, error) {
	var cfg ClusterConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ClusterConfig{}, fmt.Errorf("decode cluster config: %w", err)
	}
	return cfg, nil
}
