package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/types"
)

func TestRouteBroadcastInjectsSenderClientNo(t *testing.T) {
	frame, err := RouteBroadcast(codec.RPC{FnName: "ping", ArgsJSON: "{}"}, 42)
	require.NoError(t, err)

	decoded, err := codec.DecodeRPC(frame[1:])
	require.NoError(t, err)
	require.Equal(t, types.ClientNo(42), decoded.SenderClientNo)
	require.Equal(t, "ping", decoded.FnName)
}

// S5 — targeted RPC: target list passes through unchanged.
func TestRouteTargetedPreservesTargetList(t *testing.T) {
	targets := []types.ClientNo{3, 7, 9}
	frame, err := RouteTargeted(codec.RPCTargeted{TargetClientNos: targets, FnName: "nudge"}, 5)
	require.NoError(t, err)

	decoded, err := codec.DecodeRPCTargeted(frame[1:])
	require.NoError(t, err)
	require.Equal(t, types.ClientNo(5), decoded.SenderClientNo)
	require.Equal(t, targets, decoded.TargetClientNos)
}
