package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"paygateway/services/gateway"
	"paygateway/services/provider"
)

type Roles struct {
	Gateway  bool
	Provider bool
}

func (r Roles) Any() bool {
	return r.Gateway || r.Provider
}

type Config struct {
	Roles Roles
}

func Run(ctx context.Context, cfg Config) error {
	autoWireRoleURLs(cfg.Roles)

	var runners []func(context.Context) error
	if cfg.Roles.Provider {
		svc := provider.New()
		runners = append(runners, svc.Run)
	}
	if cfg.Roles.Gateway {
		svc := gateway.New()
		runners = append(runners, svc.Run)
	}
	if len(runners) == 0 {
		return errors.New("no services enabled")
	}

	errCh := make(chan error, len(runners))
	for _, runner := range runners {
		go func(runFn func(context.Context) error) {
			errCh <- runFn(ctx)
		}(runner)
	}

	for i := 0; i < len(runners); i++ {
		err := <-errCh
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		return fmt.Errorf("node stopped: %w", err)
	}

	log.Println("node stopped")
	return nil
}

// autoWireRoleURLs points a co-located gateway at the local provider when no
// peer list was configured explicitly.
func autoWireRoleURLs(roles Roles) {
	if !roles.Gateway || !roles.Provider {
		return
	}
	if strings.TrimSpace(os.Getenv("GATEWAY_HTTP_PEERS")) != "" {
		return
	}
	addr := strings.TrimSpace(os.Getenv("PROVIDER_ADDR"))
	if addr == "" {
		addr = "127.0.0.1:8091"
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	_ = os.Setenv("GATEWAY_HTTP_PEERS", addr)
}
