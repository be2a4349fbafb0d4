package p2pnet

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	host "github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/zap"

	"paygateway/pkg/proto"
)

const (
	AnnounceTopic           = "paygate.announce.v1"
	DefaultAnnounceInterval = 60 * time.Second
	AnnouncementVersion     = 1
)

// AnnounceHandler receives one decoded announcement. The from id is the
// sender identity reported by the pubsub layer, not the payload.
type AnnounceHandler func(from string, ann proto.Announcement)

// Announcer joins the fixed gossip topic, fans inbound announcements out to
// registered handlers, and publishes this node's own capabilities.
type Announcer struct {
	log   *zap.Logger
	self  string
	topic *pubsub.Topic

	mu       sync.Mutex
	handlers map[int]AnnounceHandler
	nextID   int
}

func NewAnnouncer(ctx context.Context, log *zap.Logger, h host.Host) (*Announcer, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	topic, err := ps.Join(AnnounceTopic)
	if err != nil {
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, err
	}
	a := &Announcer{
		log:      log,
		self:     h.ID().String(),
		topic:    topic,
		handlers: make(map[int]AnnounceHandler),
	}
	go a.recvLoop(ctx, sub)
	return a, nil
}

// Subscribe registers a handler and returns its unsubscribe func. The func is
// safe to call more than once and from inside a handler callback.
func (a *Announcer) Subscribe(fn AnnounceHandler) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.handlers, id)
	}
}

func (a *Announcer) Publish(ctx context.Context, ann proto.Announcement) error {
	payload, err := json.Marshal(ann)
	if err != nil {
		return err
	}
	return a.topic.Publish(ctx, payload)
}

// PublishLoop announces immediately and then on every tick until cancelled.
func (a *Announcer) PublishLoop(ctx context.Context, kinds []proto.Kind, every time.Duration) {
	if every <= 0 {
		every = DefaultAnnounceInterval
	}
	ann := proto.Announcement{Version: AnnouncementVersion, Kinds: kinds}
	if err := a.Publish(ctx, ann); err != nil {
		a.log.Warn("announce publish failed", zap.Error(err))
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Publish(ctx, ann); err != nil {
				a.log.Warn("announce publish failed", zap.Error(err))
			}
		}
	}
}

func (a *Announcer) recvLoop(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		from := msg.GetFrom().String()
		if from == a.self {
			continue
		}
		ann, ok := DecodeAnnouncement(msg.Data)
		if !ok {
			a.log.Debug("dropping malformed announcement", zap.String("peer", from))
			continue
		}
		a.dispatch(from, ann)
	}
}

func (a *Announcer) dispatch(from string, ann proto.Announcement) {
	a.mu.Lock()
	handlers := make([]AnnounceHandler, 0, len(a.handlers))
	for _, fn := range a.handlers {
		handlers = append(handlers, fn)
	}
	a.mu.Unlock()
	for _, fn := range handlers {
		fn(from, ann)
	}
}

// DecodeAnnouncement is the typed parse step of the never-fatal listener
// contract: malformed or empty payloads report !ok and are dropped.
func DecodeAnnouncement(data []byte) (proto.Announcement, bool) {
	if len(data) == 0 {
		return proto.Announcement{}, false
	}
	var ann proto.Announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		return proto.Announcement{}, false
	}
	if len(ann.Kinds) == 0 {
		return proto.Announcement{}, false
	}
	return ann, true
}
