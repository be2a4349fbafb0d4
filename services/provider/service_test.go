package provider

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paygateway/pkg/proto"
)

type mockRoundTripper struct {
	handlers map[string]func(*http.Request) (*http.Response, error)
}

func (m mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if h, ok := m.handlers[req.URL.String()]; ok {
		return h(req)
	}
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader("not found"))}, nil
}

func newTestService(handlers map[string]func(*http.Request) (*http.Response, error)) *Service {
	return &Service{
		backendURL: "http://facilitator.local",
		httpClient: &http.Client{Transport: mockRoundTripper{handlers: handlers}},
	}
}

func TestParseKinds(t *testing.T) {
	kinds := parseKinds("exact:base, exact:base-sepolia ,broken,:x,y:")
	if len(kinds) != 2 {
		t.Fatalf("expected two valid kinds, got %v", kinds)
	}
	if kinds[0].Scheme != "exact" || kinds[0].Network != "base" {
		t.Fatalf("unexpected first kind %+v", kinds[0])
	}
	if kinds[1].Network != "base-sepolia" {
		t.Fatalf("unexpected second kind %+v", kinds[1])
	}
}

func TestForwardVerify(t *testing.T) {
	s := newTestService(map[string]func(*http.Request) (*http.Response, error){
		"http://facilitator.local/verify": func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPost {
				t.Fatalf("unexpected backend method %s", req.Method)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"isValid":true,"invalidReason":null}`)),
			}, nil
		},
	})

	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"paymentPayload":{}}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var vr proto.VerifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &vr); err != nil || !vr.IsValid {
		t.Fatalf("unexpected response %s err=%v", rec.Body.String(), err)
	}
}

func TestForwardBackendUnreachable(t *testing.T) {
	s := newTestService(map[string]func(*http.Request) (*http.Response, error){
		"http://facilitator.local/settle": func(req *http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		},
	})

	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/settle", strings.NewReader("{}")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error shape, got %d", rec.Code)
	}
	var er proto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || er.Error == "" {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestSupportedIsGetOnly(t *testing.T) {
	s := newTestService(map[string]func(*http.Request) (*http.Response, error){
		"http://facilitator.local/supported": func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"kinds":[{"scheme":"exact","network":"base"}]}`)),
			}, nil
		},
	})

	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/supported", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /supported, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodGet, "/supported", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestForwardPassesBackendStatusThrough(t *testing.T) {
	s := newTestService(map[string]func(*http.Request) (*http.Response, error){
		"http://facilitator.local/verify": func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader(`{"error":"unsupported scheme"}`)),
			}, nil
		},
	})
	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{}")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected backend status forwarded, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported scheme") {
		t.Fatalf("expected backend body forwarded, got %s", rec.Body.String())
	}
}
