package p2pnet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	host "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	peer "github.com/libp2p/go-libp2p/core/peer"
	protocol "github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"paygateway/pkg/proto"
)

const RPCProtocolID = protocol.ID("/paygate/rpc/1.0.0")

// RPCHandlerFunc answers one inbound request; it mirrors the facilitator
// handleRequest contract.
type RPCHandlerFunc func(ctx context.Context, from peer.ID, req proto.RPCRequest) proto.RPCResponse

// RegisterRPCHandler mounts the stream protocol: one JSON request frame in,
// one JSON response frame out, then the stream closes.
func RegisterRPCHandler(h host.Host, log *zap.Logger, handler RPCHandlerFunc) {
	h.SetStreamHandler(RPCProtocolID, func(s network.Stream) {
		defer s.Close()
		from := s.Conn().RemotePeer()

		var req proto.RPCRequest
		if err := json.NewDecoder(s).Decode(&req); err != nil {
			log.Warn("failed to decode rpc request", zap.String("peer", from.String()), zap.Error(err))
			return
		}
		resp := handler(context.Background(), from, req)
		if err := json.NewEncoder(s).Encode(resp); err != nil {
			log.Warn("failed to write rpc response", zap.String("peer", from.String()), zap.Error(err))
		}
	})
}

// RPCClient opens a dedicated stream per call. When identity-based delivery
// fails it falls back to dialing each known multiaddr for the peer, retrying
// the stream once per address.
type RPCClient struct {
	host  host.Host
	log   *zap.Logger
	addrs func(peerID string) []string
}

func NewRPCClient(h host.Host, log *zap.Logger, addrs func(peerID string) []string) *RPCClient {
	if addrs == nil {
		addrs = func(string) []string { return nil }
	}
	return &RPCClient{host: h, log: log, addrs: addrs}
}

func (c *RPCClient) Call(ctx context.Context, target string, req proto.RPCRequest, timeout time.Duration) (proto.RPCResponse, error) {
	pid, err := peer.Decode(target)
	if err != nil {
		return proto.RPCResponse{}, fmt.Errorf("invalid peer id %q: %w", target, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := c.host.NewStream(ctx, pid, RPCProtocolID)
	if err != nil {
		s, err = c.dialFallback(ctx, pid, err)
		if err != nil {
			return proto.RPCResponse{}, err
		}
	}
	defer s.Close()
	// the stream shares the call budget; dialing already consumed part of it
	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}

	if err := json.NewEncoder(s).Encode(req); err != nil {
		return proto.RPCResponse{}, fmt.Errorf("write rpc request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return proto.RPCResponse{}, fmt.Errorf("close write side: %w", err)
	}
	var resp proto.RPCResponse
	if err := json.NewDecoder(s).Decode(&resp); err != nil {
		return proto.RPCResponse{}, fmt.Errorf("read rpc response: %w", err)
	}
	return resp, nil
}

func (c *RPCClient) dialFallback(ctx context.Context, pid peer.ID, streamErr error) (network.Stream, error) {
	lastErr := streamErr
	for _, raw := range c.addrs(pid.String()) {
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			c.log.Warn("skipping invalid fallback multiaddr", zap.String("addr", raw), zap.Error(err))
			continue
		}
		if err := c.host.Connect(ctx, peer.AddrInfo{ID: pid, Addrs: []ma.Multiaddr{addr}}); err != nil {
			lastErr = err
			continue
		}
		s, err := c.host.NewStream(ctx, pid, RPCProtocolID)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("open stream to %s: %w", pid, lastErr)
}
