package nodeagent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	require.Equal(t, jsonCodecName, codec.Name())

	in := restoreBeginWire{
		NodeID: "node-1",
		RestoreBeginRequest: RestoreBeginRequest{
			TenantID:  "tenant-1",
			BackupKey: "backup-key-1",
		},
	}

	data, err := codec.Marshal(&in)
	require.NoError(t, err)

	var out restoreBeginWire
	require.NoError(t, codec.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestRestoreBeginWireCarriesNodeIDAlongsideRequest(t *testing.T) {
	wire := restoreBeginWire{
		NodeID:              "node-7",
		RestoreBeginRequest: RestoreBeginRequest{TenantID: "tenant-7", BackupKey: "key-7"},
	}

	data, err := json.Marshal(wire)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "node-7", raw["NodeID"])
	require.Equal(t, "tenant-7", raw["TenantID"])
	require.Equal(t, "key-7", raw["BackupKey"])
}

func TestDrainStepWireCarriesNodeIDAlongsideRequest(t *testing.T) {
	wire := drainStepWire{
		NodeID:           "node-3",
		DrainStepRequest: DrainStepRequest{TenantID: "tenant-3"},
	}

	data, err := json.Marshal(wire)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "node-3", raw["NodeID"])
	require.Equal(t, "tenant-3", raw["TenantID"])
}

func TestGRPCClientImplementsClientInterface(t *testing.T) {
	var _ Client = NewGRPCClient("127.0.0.1:9999", 0)
}

func TestGRPCClientCloseWithoutDialIsNoop(t *testing.T) {
	c := NewGRPCClient("127.0.0.1:9999", 0)
	require.NoError(t, c.Close())
}
