// Package p2pnet is the point-to-point binding: a libp2p host carrying the
// verify/settle RPC stream protocol and the capability announcement topic.
package p2pnet

import (
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	host "github.com/libp2p/go-libp2p/core/host"
	ma "github.com/multiformats/go-multiaddr"
)

func NewHost(listenAddrs []string) (host.Host, error) {
	opts := []libp2p.Option{}
	if len(listenAddrs) > 0 {
		addrs := make([]ma.Multiaddr, 0, len(listenAddrs))
		for _, raw := range listenAddrs {
			addr, err := ma.NewMultiaddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid listen multiaddr %q: %w", raw, err)
			}
			addrs = append(addrs, addr)
		}
		opts = append(opts, libp2p.ListenAddrs(addrs...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}
	return h, nil
}
