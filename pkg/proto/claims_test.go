package proto

import (
	"encoding/base64"
	"testing"
)

func TestNormalizeLegacyHeader(t *testing.T) {
	header := base64.StdEncoding.EncodeToString([]byte(`{"x402Version":1,"scheme":"exact","network":"base-sepolia","payload":{"authorization":{"from":"0xPayer","to":"0xMerchant","value":"1000"}}}`))
	req := PaymentRequest{PaymentHeader: header}
	if err := req.Normalize(); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if req.PaymentPayload == nil || req.PaymentPayload.Network != "base-sepolia" {
		t.Fatalf("unexpected payload after normalize: %+v", req.PaymentPayload)
	}
	if got := req.CorrelationKey(); got != "0xPayer" {
		t.Fatalf("expected payer correlation key, got %q", got)
	}
}

func TestNormalizeRejectsGarbageHeader(t *testing.T) {
	req := PaymentRequest{PaymentHeader: "not base64!!"}
	if err := req.Normalize(); err == nil {
		t.Fatal("expected error for malformed header")
	}
	req = PaymentRequest{}
	if err := req.Normalize(); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestCorrelationKeyFallsBackToHeader(t *testing.T) {
	req := PaymentRequest{
		PaymentHeader:  "raw-header-value",
		PaymentPayload: &PaymentPayload{Scheme: "exact", Network: "base"},
	}
	if got := req.CorrelationKey(); got != "raw-header-value" {
		t.Fatalf("expected header fallback, got %q", got)
	}
	if got := (&PaymentRequest{}).CorrelationKey(); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestNetworkPrefersRequirements(t *testing.T) {
	req := PaymentRequest{
		PaymentPayload:      &PaymentPayload{Network: "base"},
		PaymentRequirements: &PaymentRequirements{Network: "base-sepolia"},
	}
	if got := req.Network(); got != "base-sepolia" {
		t.Fatalf("expected requirements network, got %q", got)
	}
	req.PaymentRequirements = nil
	if got := req.Network(); got != "base" {
		t.Fatalf("expected payload network, got %q", got)
	}
}
