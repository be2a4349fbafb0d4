package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"paygateway/pkg/proto"
	"paygateway/pkg/transport"
)

// coordinateVerify fans one verify attempt out to every candidate peer,
// waits for all of them, and reduces the outcome set under the quorum rules.
// The reduction is a pure function of the set: candidate order is the sorted
// registry order, never completion order.
func (s *Service) coordinateVerify(ctx context.Context, req proto.PaymentRequest) (int, any) {
	active := s.reg.ActivePeers(time.Now())
	if len(active) == 0 {
		return http.StatusServiceUnavailable, proto.ErrorResponse{Error: "No peers available"}
	}
	candidates := active
	if network := req.Network(); network != "" {
		candidates = s.reg.FilterByNetwork(active, network)
	}

	outcomes := make([]transport.Outcome, len(candidates))
	var wg sync.WaitGroup
	for i, peerID := range candidates {
		wg.Add(1)
		go func(i int, peerID string) {
			defer wg.Done()
			res, err := s.tr.Verify(ctx, peerID, req)
			outcomes[i] = transport.ClassifyVerify(peerID, res, err)
		}(i, peerID)
	}
	wg.Wait()

	quorum := s.quorum
	if quorum < 1 {
		quorum = 1
	}
	trueCount := 0
	firstTrue := ""
	anyFalse := false
	var firstErr *transport.Outcome
	for i := range outcomes {
		switch outcomes[i].Kind {
		case transport.OutcomeTrue:
			trueCount++
			if firstTrue == "" {
				firstTrue = outcomes[i].Peer
			}
		case transport.OutcomeFalse:
			anyFalse = true
		case transport.OutcomeError:
			if firstErr == nil {
				firstErr = &outcomes[i]
			}
		}
	}

	if trueCount >= quorum {
		if key := req.CorrelationKey(); key != "" {
			if err := s.sticky.Put(ctx, key, firstTrue); err != nil {
				log.Printf("gateway sticky pin failed peer=%s err=%v", firstTrue, err)
			}
		}
		return http.StatusOK, proto.VerifyResponse{IsValid: true}
	}
	if anyFalse {
		// an explicit negative from any peer is trusted once quorum-true
		// is out of reach
		return http.StatusOK, proto.VerifyResponse{IsValid: false}
	}
	if firstErr != nil {
		reason := firstErr.Reason
		return firstErr.Status, proto.VerifyResponse{IsValid: false, InvalidReason: &reason}
	}
	return http.StatusServiceUnavailable, proto.ErrorResponse{Error: "Verification unavailable"}
}
