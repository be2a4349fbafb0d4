package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"paygateway/pkg/p2pnet"
	"paygateway/pkg/proto"
	"paygateway/pkg/registry"
	"paygateway/pkg/sticky"
	"paygateway/pkg/transport"
)

type Service struct {
	addr            string
	basePath        string
	transportMode   string
	quorum          int
	peerTTL         time.Duration
	verifyTimeout   time.Duration
	settleTimeout   time.Duration
	stickyTTL       time.Duration
	staticPeers     []string
	httpPeers       []string
	peerMultiaddrs  []string
	p2pListen       []string
	stickyRedisAddr string

	reg     *registry.Registry
	sticky  sticky.Store
	tr      transport.Transport
	httpSrv *http.Server
}

func New() *Service {
	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	basePath := normalizeBasePath(os.Getenv("GATEWAY_BASE_PATH"))
	mode := strings.TrimSpace(os.Getenv("GATEWAY_TRANSPORT"))
	if mode == "" {
		mode = "http"
	}
	quorum := 1
	if v, err := strconv.Atoi(os.Getenv("GATEWAY_VERIFY_QUORUM")); err == nil && v > 1 {
		quorum = v
	}
	peerTTL := registry.DefaultPeerTTL
	if v, err := strconv.Atoi(os.Getenv("GATEWAY_PEER_TTL_SEC")); err == nil && v > 0 {
		peerTTL = time.Duration(v) * time.Second
	}
	verifyTimeout := transport.DefaultVerifyTimeout
	if v, err := strconv.Atoi(os.Getenv("GATEWAY_VERIFY_TIMEOUT_SEC")); err == nil && v > 0 {
		verifyTimeout = time.Duration(v) * time.Second
	}
	settleTimeout := transport.DefaultSettleTimeout
	if v, err := strconv.Atoi(os.Getenv("GATEWAY_SETTLE_TIMEOUT_SEC")); err == nil && v > 0 {
		settleTimeout = time.Duration(v) * time.Second
	}
	if settleTimeout < verifyTimeout {
		settleTimeout = verifyTimeout
	}
	stickyTTL := sticky.DefaultTTL
	if v, err := strconv.Atoi(os.Getenv("GATEWAY_STICKY_TTL_SEC")); err == nil && v > 0 {
		stickyTTL = time.Duration(v) * time.Second
	}
	p2pListen := splitList(os.Getenv("GATEWAY_P2P_LISTEN"))
	if len(p2pListen) == 0 {
		p2pListen = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	s := &Service{
		addr:            addr,
		basePath:        basePath,
		transportMode:   mode,
		quorum:          quorum,
		peerTTL:         peerTTL,
		verifyTimeout:   verifyTimeout,
		settleTimeout:   settleTimeout,
		stickyTTL:       stickyTTL,
		staticPeers:     splitList(os.Getenv("GATEWAY_STATIC_PEERS")),
		httpPeers:       normalizePeerURLs(splitList(os.Getenv("GATEWAY_HTTP_PEERS"))),
		peerMultiaddrs:  splitList(os.Getenv("GATEWAY_PEER_MULTIADDRS")),
		p2pListen:       p2pListen,
		stickyRedisAddr: strings.TrimSpace(os.Getenv("GATEWAY_STICKY_REDIS_ADDR")),
		reg:             registry.New(peerTTL),
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	if s.sticky == nil {
		if s.stickyRedisAddr != "" {
			store := sticky.NewRedisStore(s.stickyRedisAddr, s.stickyTTL)
			defer store.Close()
			s.sticky = store
		} else {
			store := sticky.NewMemoryStore(s.stickyTTL)
			go store.Janitor(ctx, time.Minute)
			s.sticky = store
		}
	}
	if s.tr == nil {
		switch s.transportMode {
		case "http":
			s.reg.SeedStatic(s.httpPeers)
			s.tr = transport.NewHTTPBinding(&http.Client{}, s.verifyTimeout, s.settleTimeout)
		case "p2p":
			if err := s.startP2P(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown gateway transport %q", s.transportMode)
		}
	}

	log.Printf("gateway peers: mode=%s quorum=%d static=%d http=%d peer_ttl_sec=%d sticky_redis=%t",
		s.transportMode, s.quorum, len(s.staticPeers), len(s.httpPeers), int(s.peerTTL/time.Second), s.stickyRedisAddr != "")

	mux := http.NewServeMux()
	mux.HandleFunc(s.route("/rpc/verify"), s.handleVerify)
	mux.HandleFunc(s.route("/rpc/settle"), s.handleSettle)
	mux.HandleFunc(s.route("/supported"), s.handleSupported)
	mux.HandleFunc("/v1/health", s.handleHealth)

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("gateway listening on %s", s.addr)
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
	log.Printf("gateway p2p host id=%s", h.ID())

	s.reg.SeedStatic(s.staticPeers)
	for _, raw := range s.peerMultiaddrs {
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			log.Printf("gateway skipping invalid peer multiaddr %q: %v", raw, err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Printf("gateway peer multiaddr %q has no peer id: %v", raw, err)
			continue
		}
		id := info.ID.String()
		s.reg.SeedStatic([]string{id})
		addrs := s.reg.Addrs(id)
		for _, a := range info.Addrs {
			addrs = append(addrs, a.String())
		}
		s.reg.SetAddrs(id, addrs)
	}

	ann, err := p2pnet.NewAnnouncer(ctx, zlog, h)
	if err != nil {
		return err
	}
	ann.Subscribe(func(from string, a proto.Announcement) {
		s.reg.Upsert(from, a.Kinds, time.Now())
	})

	client := p2pnet.NewRPCClient(h, zlog, s.reg.Addrs)
	s.tr = p2pnet.NewBinding(client, s.verifyTimeout, s.settleTimeout)
	return nil
}

func (s *Service) route(path string) string {
	return s.basePath + path
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer s.recoverInternal(w)

	var req proto.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, proto.ErrorResponse{Error: "invalid json"})
		return
	}
	if err := req.Normalize(); err != nil {
		writeJSON(w, http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}
	status, body := s.coordinateVerify(r.Context(), req)
	writeJSON(w, status, body)
}

func (s *Service) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer s.recoverInternal(w)

	var req proto.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, proto.ErrorResponse{Error: "invalid json"})
		return
	}
	if err := req.Normalize(); err != nil {
		writeJSON(w, http.StatusBadRequest, proto.ErrorResponse{Error: err.Error()})
		return
	}
	status, body := s.coordinateSettle(r.Context(), req)
	writeJSON(w, status, body)
}

func (s *Service) handleSupported(w http.ResponseWriter, r *http.Request) {
	defer s.recoverInternal(w)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, body := s.aggregateSupported(r.Context())
	writeJSON(w, status, body)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// recoverInternal turns a coordinator panic into a 500 with a diagnostic
// message; such a panic is always a gateway bug, never a peer condition.
func (s *Service) recoverInternal(w http.ResponseWriter) {
	if rec := recover(); rec != nil {
		log.Printf("gateway internal error: %v", rec)
		writeJSON(w, http.StatusInternalServerError, proto.ErrorResponse{Error: fmt.Sprintf("internal error: %v", rec)})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func normalizeBasePath(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || v == "/" {
		return ""
	}
	if !strings.HasPrefix(v, "/") {
		v = "/" + v
	}
	return strings.TrimRight(v, "/")
}

func normalizePeerURLs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			v = "http://" + v
		}
		out = append(out, strings.TrimRight(v, "/"))
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
