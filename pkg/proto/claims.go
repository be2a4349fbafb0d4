package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize folds the legacy paymentHeader shape into the structured one. The
// header is base64-encoded JSON of a PaymentPayload. A structured payload, if
// present, wins over the header.
func (r *PaymentRequest) Normalize() error {
	if r.PaymentPayload != nil {
		return nil
	}
	header := strings.TrimSpace(r.PaymentHeader)
	if header == "" {
		return fmt.Errorf("missing payment payload")
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("invalid payment header: %w", err)
	}
	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid payment header: %w", err)
	}
	r.PaymentPayload = &payload
	return nil
}

// CorrelationKey derives the sticky-routing key for this claim: the payer
// identity from the authorization when present, otherwise the raw payment
// header. Empty means no stickiness is recorded for this request.
func (r *PaymentRequest) CorrelationKey() string {
	if r.PaymentPayload != nil && r.PaymentPayload.Payload != nil {
		if from := strings.TrimSpace(r.PaymentPayload.Payload.Authorization.From); from != "" {
			return from
		}
	}
	return strings.TrimSpace(r.PaymentHeader)
}

// Network reports the claim's target network, used for capability filtering.
func (r *PaymentRequest) Network() string {
	if r.PaymentRequirements != nil && strings.TrimSpace(r.PaymentRequirements.Network) != "" {
		return strings.TrimSpace(r.PaymentRequirements.Network)
	}
	if r.PaymentPayload != nil {
		return strings.TrimSpace(r.PaymentPayload.Network)
	}
	return ""
}
