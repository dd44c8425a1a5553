package daemon

import (
	"testing"

	"tradepost.dev/go/tradepost/internal/protocol"
)

func TestRateLimiterBurst(t *testing.T) {
	config := &RateLimitConfig{
		PeerMessagesPerSecond: 1,
		PeerBurst:             3,
	}
	rl := NewRateLimiter(config)

	for i := 0; i < 3; i++ {
		if err := rl.Allow("s1", protocol.MsgChat, 10); err != nil {
			t.Fatalf("message %d within burst rejected: %v", i, err)
		}
	}
	if err := rl.Allow("s1", protocol.MsgChat, 10); err == nil {
		t.Error("message beyond burst must be rejected")
	}
	if got := rl.Drops.Load(); got != 1 {
		t.Errorf("Drops = %d, want 1", got)
	}
}

func TestRateLimiterPerPeer(t *testing.T) {
	config := &RateLimitConfig{
		PeerMessagesPerSecond: 1,
		PeerBurst:             1,
	}
	rl := NewRateLimiter(config)

	if err := rl.Allow("s1", protocol.MsgChat, 10); err != nil {
		t.Fatalf("s1 first message: %v", err)
	}
	if err := rl.Allow("s1", protocol.MsgChat, 10); err == nil {
		t.Error("s1 second message must be rejected")
	}

	// A different session has its own budget
	if err := rl.Allow("s2", protocol.MsgChat, 10); err != nil {
		t.Errorf("s2 first message: %v", err)
	}
}

func TestRateLimiterTypeLimit(t *testing.T) {
	config := &RateLimitConfig{
		PeerMessagesPerSecond: 100,
		PeerBurst:             100,
		TypeLimits: map[protocol.MessageType]TypeLimit{
			protocol.MsgLockIn: {PerMinute: 1, Burst: 2},
		},
	}
	rl := NewRateLimiter(config)

	for i := 0; i < 2; i++ {
		if err := rl.Allow("s1", protocol.MsgLockIn, 10); err != nil {
			t.Fatalf("lockin %d: %v", i, err)
		}
	}
	if err := rl.Allow("s1", protocol.MsgLockIn, 10); err == nil {
		t.Error("lockin beyond type burst must be rejected")
	}

	// Types without a configured limit pass the type check
	if err := rl.Allow("s1", protocol.MsgChat, 10); err != nil {
		t.Errorf("chat: %v", err)
	}
}

func TestRateLimiterSizeLimit(t *testing.T) {
	config := &RateLimitConfig{
		PeerMessagesPerSecond: 100,
		PeerBurst:             100,
		TypeSizeLimits: map[protocol.MessageType]int{
			protocol.MsgChat: 64,
		},
	}
	rl := NewRateLimiter(config)

	if err := rl.Allow("s1", protocol.MsgChat, 64); err != nil {
		t.Errorf("at limit: %v", err)
	}
	if err := rl.Allow("s1", protocol.MsgChat, 65); err == nil {
		t.Error("oversized message must be rejected")
	}
}

func TestRateLimiterRemovePeerResets(t *testing.T) {
	config := &RateLimitConfig{
		PeerMessagesPerSecond: 1,
		PeerBurst:             1,
	}
	rl := NewRateLimiter(config)

	rl.Allow("s1", protocol.MsgChat, 10)
	if err := rl.Allow("s1", protocol.MsgChat, 10); err == nil {
		t.Fatal("budget should be exhausted")
	}

	rl.RemovePeer("s1")

	if err := rl.Allow("s1", protocol.MsgChat, 10); err != nil {
		t.Errorf("fresh session after removal rejected: %v", err)
	}
}

func TestDefaultRateLimitConfigCoversAllTypes(t *testing.T) {
	config := DefaultRateLimitConfig()

	types := []protocol.MessageType{
		protocol.MsgAddress,
		protocol.MsgTradeRequest,
		protocol.MsgOffer,
		protocol.MsgLockIn,
		protocol.MsgChat,
		protocol.MsgAccept,
	}
	for _, msgType := range types {
		if _, ok := config.TypeLimits[msgType]; !ok {
			t.Errorf("no type limit for %s", msgType)
		}
		if _, ok := config.TypeSizeLimits[msgType]; !ok {
			t.Errorf("no size limit for %s", msgType)
		}
	}
}
