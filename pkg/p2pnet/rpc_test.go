package p2pnet

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	host "github.com/libp2p/go-libp2p/core/host"
	peer "github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"paygateway/pkg/proto"
)

func loopbackHost(t *testing.T) host.Host {
	t.Helper()
	h, err := NewHost([]string{"/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRPCRoundTrip(t *testing.T) {
	server := loopbackHost(t)
	client := loopbackHost(t)

	RegisterRPCHandler(server, zap.NewNop(), func(ctx context.Context, from peer.ID, req proto.RPCRequest) proto.RPCResponse {
		if req.Method != http.MethodPost || req.Path != "/verify" {
			t.Errorf("unexpected rpc request %s %s", req.Method, req.Path)
		}
		body, _ := json.Marshal(proto.VerifyResponse{IsValid: true})
		return proto.RPCResponse{Status: http.StatusOK, Body: body}
	})

	// seed the client with the server's address so identity delivery works
	client.Peerstore().AddAddrs(server.ID(), server.Addrs(), time.Minute)

	c := NewRPCClient(client, zap.NewNop(), nil)
	resp, err := c.Call(context.Background(), server.ID().String(), proto.RPCRequest{Method: http.MethodPost, Path: "/verify"}, 5*time.Second)
	if err != nil {
		t.Fatalf("rpc call failed: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Status)
	}
	var vr proto.VerifyResponse
	if err := json.Unmarshal(resp.Body, &vr); err != nil || !vr.IsValid {
		t.Fatalf("unexpected verify body %s err=%v", resp.Body, err)
	}
}

func TestRPCFallsBackToKnownAddrs(t *testing.T) {
	server := loopbackHost(t)
	client := loopbackHost(t)

	RegisterRPCHandler(server, zap.NewNop(), func(ctx context.Context, from peer.ID, req proto.RPCRequest) proto.RPCResponse {
		return proto.RPCResponse{Status: http.StatusOK}
	})

	// no peerstore entry: the client only learns the server through the
	// fallback addr lookup
	addrs := make([]string, 0, len(server.Addrs()))
	for _, a := range server.Addrs() {
		addrs = append(addrs, a.String())
	}
	c := NewRPCClient(client, zap.NewNop(), func(peerID string) []string {
		if peerID == server.ID().String() {
			return addrs
		}
		return nil
	})

	resp, err := c.Call(context.Background(), server.ID().String(), proto.RPCRequest{Method: http.MethodGet, Path: "/supported"}, 5*time.Second)
	if err != nil {
		t.Fatalf("fallback call failed: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Status)
	}
}

func TestRPCUnreachablePeerFails(t *testing.T) {
	client := loopbackHost(t)
	c := NewRPCClient(client, zap.NewNop(), nil)

	// a well-formed id nobody is listening on
	other := loopbackHost(t)
	otherID := other.ID().String()
	_ = other.Close()

	_, err := c.Call(context.Background(), otherID, proto.RPCRequest{Method: http.MethodGet, Path: "/supported"}, 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected error for unreachable peer")
	}
}

func TestRPCCallStaysWithinBudget(t *testing.T) {
	server := loopbackHost(t)
	client := loopbackHost(t)

	// a handler that never answers: the call must give up on the shared
	// budget, not grant the stream a fresh timeout after dialing
	RegisterRPCHandler(server, zap.NewNop(), func(ctx context.Context, from peer.ID, req proto.RPCRequest) proto.RPCResponse {
		time.Sleep(2 * time.Second)
		return proto.RPCResponse{Status: http.StatusOK}
	})
	client.Peerstore().AddAddrs(server.ID(), server.Addrs(), time.Minute)

	c := NewRPCClient(client, zap.NewNop(), nil)
	start := time.Now()
	_, err := c.Call(context.Background(), server.ID().String(), proto.RPCRequest{Method: http.MethodPost, Path: "/settle"}, 400*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error from a silent peer")
	}
	if elapsed := time.Since(start); elapsed > 700*time.Millisecond {
		t.Fatalf("call overstayed its budget: %v", elapsed)
	}
}
