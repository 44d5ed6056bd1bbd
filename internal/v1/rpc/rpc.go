// Package rpc implements C6: the broadcast and targeted RPC relay. The
// server never interprets argumentsJson — it only injects the sender's
// client number (both paths; the targeted path passes the target list
// through unchanged) and republishes once per room topic.
// Grounded on the teacher's room.go Broadcast/broadcastLocked pattern:
// marshal once, fan out to every subscriber.
package rpc

import (
	"github.com/vrnetsync/hub/internal/v1/codec"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/types"
)

// RouteBroadcast stamps the sender's client number onto an incoming
// broadcast RPC and re-encodes it for republication on the room topic.
func RouteBroadcast(msg codec.RPC, sender types.ClientNo) ([]byte, error) {
	msg.SenderClientNo = sender
	frame, err := codec.EncodeRPC(msg)
	if err != nil {
		return nil, err
	}
	metrics.RPCMessages.WithLabelValues("broadcast").Inc()
	return frame, nil
}

// RouteTargeted stamps the sender's client number onto a targeted RPC and
// re-encodes it with its target list unchanged; receivers are responsible
// for filtering by their own client number.
func RouteTargeted(msg codec.RPCTargeted, sender types.ClientNo) ([]byte, error) {
	msg.SenderClientNo = sender
	frame, err := codec.EncodeRPCTargeted(msg)
	if err != nil {
		return nil, err
	}
	metrics.RPCMessages.WithLabelValues("targeted").Inc()
	return frame, nil
}
