package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paygateway/pkg/proto"
)

const (
	DefaultVerifyTimeout = 10 * time.Second
	DefaultSettleTimeout = 30 * time.Second
)

// HTTPBinding delivers to peers addressed by base URL: POST <url>/verify and
// <url>/settle, GET <url>/supported.
type HTTPBinding struct {
	client        *http.Client
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

func NewHTTPBinding(client *http.Client, verifyTimeout, settleTimeout time.Duration) *HTTPBinding {
	if client == nil {
		client = &http.Client{}
	}
	if verifyTimeout <= 0 {
		verifyTimeout = DefaultVerifyTimeout
	}
	if settleTimeout <= 0 {
		settleTimeout = DefaultSettleTimeout
	}
	if settleTimeout < verifyTimeout {
		settleTimeout = verifyTimeout
	}
	return &HTTPBinding{client: client, verifyTimeout: verifyTimeout, settleTimeout: settleTimeout}
}

func (b *HTTPBinding) Verify(ctx context.Context, target string, req proto.PaymentRequest) (Result, error) {
	return b.post(ctx, target, "/verify", req, b.verifyTimeout)
}

func (b *HTTPBinding) Settle(ctx context.Context, target string, req proto.PaymentRequest) (Result, error) {
	return b.post(ctx, target, "/settle", req, b.settleTimeout)
}

func (b *HTTPBinding) Supported(ctx context.Context, target string) ([]proto.Kind, error) {
	ctx, cancel := context.WithTimeout(ctx, b.verifyTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(target, "/")+"/supported", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer supported status %d", resp.StatusCode)
	}
	var out proto.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode supported response: %w", err)
	}
	return out.Kinds, nil
}

func (b *HTTPBinding) post(ctx context.Context, target string, path string, req proto.PaymentRequest, timeout time.Duration) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(target, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read peer response: %w", err)
	}
	return Result{Status: resp.StatusCode, Body: body}, nil
}
