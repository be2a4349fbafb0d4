package p2pnet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"paygateway/pkg/proto"
	"paygateway/pkg/transport"
)

// Binding adapts the stream RPC client to the coordinator transport contract,
// so the same quorum and sticky logic runs over libp2p delivery.
type Binding struct {
	client        *RPCClient
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

func NewBinding(client *RPCClient, verifyTimeout, settleTimeout time.Duration) *Binding {
	if verifyTimeout <= 0 {
		verifyTimeout = transport.DefaultVerifyTimeout
	}
	if settleTimeout <= 0 {
		settleTimeout = transport.DefaultSettleTimeout
	}
	if settleTimeout < verifyTimeout {
		settleTimeout = verifyTimeout
	}
	return &Binding{client: client, verifyTimeout: verifyTimeout, settleTimeout: settleTimeout}
}

func (b *Binding) Verify(ctx context.Context, target string, req proto.PaymentRequest) (transport.Result, error) {
	return b.post(ctx, target, "/verify", req, b.verifyTimeout)
}

func (b *Binding) Settle(ctx context.Context, target string, req proto.PaymentRequest) (transport.Result, error) {
	return b.post(ctx, target, "/settle", req, b.settleTimeout)
}

func (b *Binding) Supported(ctx context.Context, target string) ([]proto.Kind, error) {
	resp, err := b.client.Call(ctx, target, proto.RPCRequest{Method: http.MethodGet, Path: "/supported"}, b.verifyTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("peer supported status %d", resp.Status)
	}
	var out proto.SupportedResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode supported response: %w", err)
	}
	return out.Kinds, nil
}

func (b *Binding) post(ctx context.Context, target string, path string, req proto.PaymentRequest, timeout time.Duration) (transport.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return transport.Result{}, err
	}
	resp, err := b.client.Call(ctx, target, proto.RPCRequest{Method: http.MethodPost, Path: path, Body: body}, timeout)
	if err != nil {
		return transport.Result{}, err
	}
	return transport.Result{Status: resp.Status, Body: resp.Body}, nil
}
