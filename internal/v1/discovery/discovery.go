// Package discovery implements C2: a UDP responder that answers probes with
// a connect string, filtered by the application-identity allow-list.
// Grounded on meermanr/LightwaveRF-go's lwl.Client.Listen — a single
// goroutine looping on ReadFromUDP with a deadline so it can be cancelled,
// rather than blocking forever.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"go.uber.org/zap"
)

const (
	probePrefix  = "STYLY-NETSYNC|discover|"
	magic        = "STYLY-NETSYNC"
	readDeadline = 500 * time.Millisecond
)

// Gate decides whether an appId may pass the connection gate. An empty
// allow-list disables the gate entirely (§4.2 step 3).
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a Gate from an allow-list; a nil/empty list disables it.
func NewGate(allowedAppIDs []string) Gate {
	if len(allowedAppIDs) == 0 {
		return Gate{}
	}
	m := make(map[string]struct{}, len(allowedAppIDs))
	for _, id := range allowedAppIDs {
		m[id] = struct{}{}
	}
	return Gate{allowed: m}
}

// Permit reports whether appId passes the gate. Empty appId is always
// denied, even with the gate disabled.
func (g Gate) Permit(appID string) bool {
	if appID == "" {
		return false
	}
	if g.allowed == nil {
		return true
	}
	_, ok := g.allowed[appID]
	return ok
}

// AbuseLimiter throttles probe traffic per source address. Implemented by
// the ratelimit package; nil disables throttling.
type AbuseLimiter interface {
	Allow(key string) bool
}

// Responder answers UDP discovery probes on a fixed port.
type Responder struct {
	gate        Gate
	dealerPort  int
	pubPort     int
	serverName  string
	conn        *net.UDPConn
	done        chan struct{}
	limiter     AbuseLimiter
}

// NewResponder binds the UDP listener. Close releases the socket. limiter
// may be nil to disable probe-rate throttling.
func NewResponder(port int, gate Gate, dealerPort, pubPort int, serverName string, limiter AbuseLimiter) (*Responder, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("discovery: listen on %d: %w", port, err)
	}
	return &Responder{
		gate:       gate,
		dealerPort: dealerPort,
		pubPort:    pubPort,
		serverName: serverName,
		conn:       conn,
		done:       make(chan struct{}),
		limiter:    limiter,
	}, nil
}

// Run loops until ctx is cancelled, answering well-formed permitted probes.
func (r *Responder) Run(ctx context.Context) {
	defer close(r.done)
	logging.Info(ctx, "discovery responder starting", zap.String("addr", r.conn.LocalAddr().String()))
	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "discovery responder stopping")
			r.conn.Close()
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				logging.Warn(ctx, "discovery read error", zap.Error(err))
				continue
			}
		}
		r.handle(ctx, buf[:n], addr)
	}
}

// Wait blocks until Run has returned.
func (r *Responder) Wait() { <-r.done }

func (r *Responder) handle(ctx context.Context, payload []byte, addr *net.UDPAddr) {
	if r.limiter != nil && !r.limiter.Allow(addr.IP.String()) {
		metrics.DiscoveryProbes.WithLabelValues("throttled").Inc()
		return
	}

	appID, ok := parseProbe(string(payload))
	if !ok {
		metrics.DiscoveryProbes.WithLabelValues("denied").Inc()
		return
	}
	if appID == "" {
		metrics.DiscoveryProbes.WithLabelValues("appid_missing").Inc()
		return
	}
	if !r.gate.Permit(appID) {
		metrics.DiscoveryProbes.WithLabelValues("denied").Inc()
		return
	}

	metrics.DiscoveryProbes.WithLabelValues("allowed").Inc()
	reply := fmt.Sprintf("%s|%d|%d|%s", magic, r.dealerPort, r.pubPort, r.serverName)
	if _, err := r.conn.WriteToUDP([]byte(reply), addr); err != nil {
		logging.Warn(ctx, "discovery reply failed", zap.Error(err), zap.String("peer", addr.String()))
	}
}

// parseProbe validates "STYLY-NETSYNC|discover|appId=<ID>|proto=<N>" and
// extracts appId. ok is false for any malformed or legacy form (§4.2 step 2).
func parseProbe(payload string) (appID string, ok bool) {
	if !strings.HasPrefix(payload, probePrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(payload, probePrefix)
	parts := strings.Split(rest, "|")
	if len(parts) != 2 {
		return "", false
	}
	appIDPart, protoPart := parts[0], parts[1]

	id, found := strings.CutPrefix(appIDPart, "appId=")
	if !found {
		return "", false
	}
	protoStr, found := strings.CutPrefix(protoPart, "proto=")
	if !found {
		return "", false
	}
	if _, err := strconv.Atoi(protoStr); err != nil {
		return "", false
	}
	return id, true
}
