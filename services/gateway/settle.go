package gateway

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"

	"paygateway/pkg/proto"
)

// coordinateSettle contacts one peer at a time, sticky-preferred first, and
// advances through the randomized remainder on any non-success outcome.
// Settlement is never fanned out: double-submitting the same claim to two
// peers at once is the one thing this path must not do.
func (s *Service) coordinateSettle(ctx context.Context, req proto.PaymentRequest) (int, any) {
	active := s.reg.ActivePeers(time.Now())
	if len(active) == 0 {
		return http.StatusServiceUnavailable, settleUnavailable()
	}

	preferred := ""
	if key := req.CorrelationKey(); key != "" {
		pinned, ok, err := s.sticky.Get(ctx, key)
		if err != nil {
			log.Printf("gateway sticky lookup failed key=%q err=%v", key, err)
		} else if ok {
			preferred = pinned
		}
	}

	var lastAppStatus int
	var lastAppResp proto.SettleResponse
	for _, peerID := range settleOrder(active, preferred) {
		res, err := s.tr.Settle(ctx, peerID, req)
		if err != nil {
			log.Printf("gateway settle attempt failed peer=%s err=%v", peerID, err)
			continue
		}
		if res.Status >= 200 && res.Status < 300 {
			var sr proto.SettleResponse
			if json.Unmarshal(res.Body, &sr) != nil {
				log.Printf("gateway settle malformed response peer=%s status=%d", peerID, res.Status)
				continue
			}
			if sr.Success {
				sr.Error = nil
				return http.StatusOK, sr
			}
			lastAppStatus, lastAppResp = res.Status, sr
			continue
		}
		msg := res.ErrorMessage()
		lastAppStatus = res.Status
		lastAppResp = proto.SettleResponse{Success: false, Error: &msg}
	}

	if lastAppStatus != 0 {
		// only the failure message is forwarded; a failed settle never
		// carries a transaction or network identifier
		lastAppResp.Success = false
		lastAppResp.TxHash = nil
		lastAppResp.NetworkID = nil
		if lastAppResp.Error == nil {
			msg := "settle failed"
			lastAppResp.Error = &msg
		}
		return lastAppStatus, lastAppResp
	}
	return http.StatusServiceUnavailable, settleUnavailable()
}

// settleOrder shuffles the active set and moves the preferred peer to the
// front, so retries after a broken preferred peer spread across the rest.
func settleOrder(active []string, preferred string) []string {
	order := append([]string(nil), active...)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	if preferred == "" {
		return order
	}
	for i, id := range order {
		if id == preferred {
			order[0], order[i] = order[i], order[0]
			break
		}
	}
	return order
}

func settleUnavailable() proto.SettleResponse {
	msg := "Settle unavailable"
	return proto.SettleResponse{Success: false, Error: &msg}
}
