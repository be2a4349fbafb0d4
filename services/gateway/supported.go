package gateway

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"paygateway/pkg/proto"
)

// aggregateSupported queries every known peer for its kinds and returns the
// de-duplicated union. Unreachable peers contribute nothing and never fail
// the request.
func (s *Service) aggregateSupported(ctx context.Context) (int, any) {
	peers := s.reg.ActivePeers(time.Now())
	results := make([][]proto.Kind, len(peers))
	var wg sync.WaitGroup
	for i, peerID := range peers {
		wg.Add(1)
		go func(i int, peerID string) {
			defer wg.Done()
			kinds, err := s.tr.Supported(ctx, peerID)
			if err != nil {
				log.Printf("gateway supported query failed peer=%s err=%v", peerID, err)
				return
			}
			results[i] = kinds
		}(i, peerID)
	}
	wg.Wait()

	union := make([]proto.Kind, 0)
	seen := make(map[string]struct{})
	for _, kinds := range results {
		for _, k := range kinds {
			key := k.Scheme + "|" + k.Network + "|" + string(k.Extra)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			union = append(union, k)
		}
	}
	sort.Slice(union, func(i, j int) bool {
		if union[i].Scheme != union[j].Scheme {
			return union[i].Scheme < union[j].Scheme
		}
		return union[i].Network < union[j].Network
	})
	return http.StatusOK, proto.SupportedResponse{Kinds: union}
}
