package p2pnet

import (
	"testing"

	"go.uber.org/zap"

	"paygateway/pkg/proto"
)

func TestDecodeAnnouncement(t *testing.T) {
	if _, ok := DecodeAnnouncement(nil); ok {
		t.Fatal("empty payload must be dropped")
	}
	if _, ok := DecodeAnnouncement([]byte("{not json")); ok {
		t.Fatal("malformed payload must be dropped")
	}
	if _, ok := DecodeAnnouncement([]byte(`{"version":1,"kinds":[]}`)); ok {
		t.Fatal("announcement without kinds must be dropped")
	}
	ann, ok := DecodeAnnouncement([]byte(`{"version":1,"kinds":[{"scheme":"exact","network":"base"}]}`))
	if !ok || len(ann.Kinds) != 1 || ann.Kinds[0].Scheme != "exact" {
		t.Fatalf("expected valid announcement, got %+v ok=%t", ann, ok)
	}
}

func TestSubscribeDispatchAndUnsubscribe(t *testing.T) {
	a := &Announcer{log: zap.NewNop(), handlers: make(map[int]AnnounceHandler)}
	ann := proto.Announcement{Version: 1, Kinds: []proto.Kind{{Scheme: "exact", Network: "base"}}}

	var first, second int
	unsubFirst := a.Subscribe(func(from string, got proto.Announcement) {
		if from != "peer-x" || len(got.Kinds) != 1 {
			t.Fatalf("handler got unexpected announcement from=%s %+v", from, got)
		}
		first++
	})
	a.Subscribe(func(string, proto.Announcement) { second++ })

	a.dispatch("peer-x", ann)
	if first != 1 || second != 1 {
		t.Fatalf("expected both handlers called once, got %d/%d", first, second)
	}

	unsubFirst()
	unsubFirst() // second call must be a no-op
	a.dispatch("peer-x", ann)
	if first != 1 || second != 2 {
		t.Fatalf("expected only remaining handler called, got %d/%d", first, second)
	}
}

func TestUnsubscribeFromInsideHandler(t *testing.T) {
	a := &Announcer{log: zap.NewNop(), handlers: make(map[int]AnnounceHandler)}
	calls := 0
	var unsub func()
	unsub = a.Subscribe(func(string, proto.Announcement) {
		calls++
		unsub()
	})
	ann := proto.Announcement{Version: 1, Kinds: []proto.Kind{{Scheme: "exact", Network: "base"}}}
	a.dispatch("peer-x", ann)
	a.dispatch("peer-x", ann)
	if calls != 1 {
		t.Fatalf("expected handler to run once after self-unsubscribe, got %d", calls)
	}
}
