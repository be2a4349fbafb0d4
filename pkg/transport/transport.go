// Package transport defines the one peer-delivery contract both coordinators
// are programmed against. The HTTP binding lives here; the stream binding is
// supplied by pkg/p2pnet. Each binding owns its own timeouts and never blocks
// past them.
package transport

import (
	"context"
	"encoding/json"
	"strings"

	"paygateway/pkg/proto"
)

// Result is the raw status+body a peer answered with. Body may be non-JSON;
// bindings pass it through as opaque bytes.
type Result struct {
	Status int
	Body   []byte
}

// ErrorMessage extracts a forwardable message from the result body.
func (r Result) ErrorMessage() string {
	return errorMessage(r.Body)
}

type Transport interface {
	Verify(ctx context.Context, target string, req proto.PaymentRequest) (Result, error)
	Settle(ctx context.Context, target string, req proto.PaymentRequest) (Result, error)
	Supported(ctx context.Context, target string) ([]proto.Kind, error)
}

// OutcomeKind classifies one verify attempt against one peer.
type OutcomeKind int

const (
	// OutcomeTrue: the peer returned a usable boolean true.
	OutcomeTrue OutcomeKind = iota
	// OutcomeFalse: the peer returned a usable boolean false.
	OutcomeFalse
	// OutcomeError: the peer explicitly rejected the request with a
	// structured application error, forwardable to the caller.
	OutcomeError
	// OutcomeFail: timeout, unreachable peer, or malformed response.
	OutcomeFail
)

type Outcome struct {
	Peer   string
	Kind   OutcomeKind
	Status int
	Reason string
}

// ClassifyVerify reduces one attempt's (Result, error) pair into an Outcome.
// A 2xx body that does not parse as a verify response counts as a transport
// failure, the same as an unreachable peer.
func ClassifyVerify(peer string, res Result, err error) Outcome {
	if err != nil {
		return Outcome{Peer: peer, Kind: OutcomeFail, Reason: err.Error()}
	}
	if res.Status >= 200 && res.Status < 300 {
		var vr proto.VerifyResponse
		if json.Unmarshal(res.Body, &vr) != nil {
			return Outcome{Peer: peer, Kind: OutcomeFail, Status: res.Status, Reason: "malformed verify response"}
		}
		if vr.IsValid {
			return Outcome{Peer: peer, Kind: OutcomeTrue, Status: res.Status}
		}
		reason := ""
		if vr.InvalidReason != nil {
			reason = *vr.InvalidReason
		}
		return Outcome{Peer: peer, Kind: OutcomeFalse, Status: res.Status, Reason: reason}
	}
	return Outcome{Peer: peer, Kind: OutcomeError, Status: res.Status, Reason: errorMessage(res.Body)}
}

// errorMessage pulls a human-readable message from an error body, falling back
// to the raw text for non-JSON payloads.
func errorMessage(body []byte) string {
	var er proto.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return er.Error
	}
	var vr proto.VerifyResponse
	if json.Unmarshal(body, &vr) == nil && vr.InvalidReason != nil && *vr.InvalidReason != "" {
		return *vr.InvalidReason
	}
	return strings.TrimSpace(string(body))
}
