package proto

import "encoding/json"

// Kind is a capability descriptor a peer advertises: the payment scheme it can
// handle on a given network.
type Kind struct {
	Scheme  string          `json:"scheme"`
	Network string          `json:"network"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired,omitempty"`
	Resource          string          `json:"resource,omitempty"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	PayTo             string          `json:"payTo,omitempty"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds,omitempty"`
	Asset             string          `json:"asset,omitempty"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

type ExactAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter,omitempty"`
	ValidBefore string `json:"validBefore,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

type ExactPayload struct {
	Signature     string             `json:"signature,omitempty"`
	Authorization ExactAuthorization `json:"authorization"`
}

type PaymentPayload struct {
	X402Version int           `json:"x402Version,omitempty"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     *ExactPayload `json:"payload,omitempty"`
}

// PaymentRequest is the body of both /rpc/verify and /rpc/settle. Legacy
// callers send the payload as a base64 payment header instead of the
// structured form; Normalize folds that shape into PaymentPayload.
type PaymentRequest struct {
	PaymentPayload      *PaymentPayload      `json:"paymentPayload,omitempty"`
	PaymentHeader       string               `json:"paymentHeader,omitempty"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements,omitempty"`
}

type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason"`
}

type SettleResponse struct {
	Success   bool    `json:"success"`
	Error     *string `json:"error"`
	TxHash    *string `json:"txHash"`
	NetworkID *string `json:"networkId"`
}

type SupportedResponse struct {
	Kinds []Kind `json:"kinds"`
}

// Announcement is the payload peers publish on the broadcast topic. The sender
// identity comes from the transport, never from the message body.
type Announcement struct {
	Version int    `json:"version"`
	Kinds   []Kind `json:"kinds"`
}

// RPCRequest and RPCResponse are the single-frame envelope the stream binding
// carries; they mirror the facilitator handleRequest contract.
type RPCRequest struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type RPCResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
