// Package provider runs the peer side of the gateway protocol: it answers
// verify/settle/supported over both bindings by forwarding each request to an
// opaque facilitator backend, and periodically announces its capabilities.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"paygateway/pkg/p2pnet"
	"paygateway/pkg/proto"
)

type Service struct {
	addr             string
	backendURL       string
	kinds            []proto.Kind
	announceInterval time.Duration
	p2pListen        []string
	httpClient       *http.Client
	httpSrv          *http.Server
}

func New() *Service {
	addr := os.Getenv("PROVIDER_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8091"
	}
	backendURL := strings.TrimSpace(os.Getenv("FACILITATOR_URL"))
	if backendURL == "" {
		backendURL = "http://127.0.0.1:8402"
	}
	backendURL = strings.TrimRight(backendURL, "/")

	announceInterval := p2pnet.DefaultAnnounceInterval
	if v, err := strconv.Atoi(os.Getenv("PROVIDER_ANNOUNCE_SEC")); err == nil && v > 0 {
		announceInterval = time.Duration(v) * time.Second
	}
	var p2pListen []string
	for _, v := range strings.Split(os.Getenv("PROVIDER_P2P_LISTEN"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			p2pListen = append(p2pListen, v)
		}
	}

	return &Service{
		addr:             addr,
		backendURL:       backendURL,
		kinds:            parseKinds(os.Getenv("PROVIDER_KINDS")),
		announceInterval: announceInterval,
		p2pListen:        p2pListen,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
	}
}

// parseKinds reads comma-separated scheme:network pairs, e.g.
// "exact:base,exact:base-sepolia".
func parseKinds(raw string) []proto.Kind {
	var kinds []proto.Kind
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		scheme, network, ok := strings.Cut(pair, ":")
		if !ok || scheme == "" || network == "" {
			log.Printf("provider skipping malformed kind %q", pair)
			continue
		}
		kinds = append(kinds, proto.Kind{Scheme: scheme, Network: network})
	}
	return kinds
}

func (s *Service) Run(ctx context.Context) error {
	log.Printf("provider backend=%s kinds=%d announce_sec=%d p2p=%t",
		s.backendURL, len(s.kinds), int(s.announceInterval/time.Second), len(s.p2pListen) > 0)

	if len(s.p2pListen) > 0 {
		if err := s.startP2P(ctx); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/verify", s.handleRPC)
	mux.HandleFunc("/settle", s.handleRPC)
	mux.HandleFunc("/supported", s.handleRPC)
	mux.HandleFunc("/v1/health", s.handleHealth)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("provider listening on %s", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Service) startP2P(ctx context.Context) error {
	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	h, err := p2pnet.NewHost(s.p2pListen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = h.Close()
	}()
	log.Printf("provider p2p host id=%s", h.ID())

	p2pnet.RegisterRPCHandler(h, zlog, func(ctx context.Context, from peer.ID, req proto.RPCRequest) proto.RPCResponse {
		status, body := s.forward(ctx, req.Method, req.Path, req.Body)
		return proto.RPCResponse{Status: status, Body: body}
	})

	ann, err := p2pnet.NewAnnouncer(ctx, zlog, h)
	if err != nil {
		return err
	}
	go ann.PublishLoop(ctx, s.kinds, s.announceInterval)
	return nil
}

// handleRPC serves one of the three peer routes by forwarding it verbatim to
// the facilitator backend.
func (s *Service) handleRPC(w http.ResponseWriter, r *http.Request) {
	wantMethod := http.MethodPost
	if r.URL.Path == "/supported" {
		wantMethod = http.MethodGet
	}
	if r.Method != wantMethod {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body []byte
	if r.Body != nil {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
	}
	status, respBody := s.forward(r.Context(), r.Method, r.URL.Path, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// forward implements the handleRequest collaborator contract against the
// backend. Transport-level failures surface as a 400 error body, matching the
// thrown-error shape of the contract.
func (s *Service) forward(ctx context.Context, method string, path string, body []byte) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, method, s.backendURL+path, bytes.NewReader(body))
	if err != nil {
		return errorBody(fmt.Sprintf("build backend request: %v", err))
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errorBody(fmt.Sprintf("facilitator backend unreachable: %v", err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorBody(fmt.Sprintf("read backend response: %v", err))
	}
	return resp.StatusCode, respBody
}

func errorBody(msg string) (int, []byte) {
	body, _ := json.Marshal(proto.ErrorResponse{Error: msg})
	return http.StatusBadRequest, body
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
