package daemon

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"tradepost.dev/go/tradepost/internal/protocol"
)

// RateLimitConfig defines inbound message rate limits, applied before a
// message reaches the negotiation engine.
type RateLimitConfig struct {
	// Per-peer limits
	PeerMessagesPerSecond float64
	PeerBurst             int

	// Per-peer per-type limits (messages per minute)
	TypeLimits map[protocol.MessageType]TypeLimit

	// Size limits per message type (bytes)
	TypeSizeLimits map[protocol.MessageType]int
}

// TypeLimit defines the rate limit for a specific message type
type TypeLimit struct {
	PerMinute int
	Burst     int
}

// DefaultRateLimitConfig returns sensible defaults. Negotiation traffic is
// human-paced, so the limits are tight; chat gets more headroom.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		PeerMessagesPerSecond: 10,
		PeerBurst:             20,

		TypeLimits: map[protocol.MessageType]TypeLimit{
			protocol.MsgAddress:      {PerMinute: 10, Burst: 3},
			protocol.MsgTradeRequest: {PerMinute: 10, Burst: 3},
			protocol.MsgOffer:        {PerMinute: 30, Burst: 5},
			protocol.MsgLockIn:       {PerMinute: 30, Burst: 5},
			protocol.MsgAccept:       {PerMinute: 10, Burst: 3},
			protocol.MsgChat:         {PerMinute: 60, Burst: 10},
		},

		TypeSizeLimits: map[protocol.MessageType]int{
			protocol.MsgAddress:      1024,
			protocol.MsgTradeRequest: 1024,
			protocol.MsgOffer:        64 * 1024,
			protocol.MsgLockIn:       1024,
			protocol.MsgAccept:       1024,
			protocol.MsgChat:         8 * 1024,
		},
	}
}

// RateLimiter enforces per-peer and per-type inbound limits
type RateLimiter struct {
	config *RateLimitConfig

	peerLimiters     sync.Map // session ID -> *rate.Limiter
	peerTypeLimiters sync.Map // "session:type" -> *rate.Limiter

	// Drops counts rejected messages
	Drops atomic.Int64
}

// NewRateLimiter creates a rate limiter; nil config uses defaults
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{config: config}
}

// Allow checks whether a message from the given session may proceed
func (rl *RateLimiter) Allow(sessionID string, msgType protocol.MessageType, size int) error {
	if limit, ok := rl.config.TypeSizeLimits[msgType]; ok && size > limit {
		rl.Drops.Add(1)
		return fmt.Errorf("message size %d exceeds limit %d for type %s", size, limit, msgType)
	}

	if !rl.peerLimiter(sessionID).Allow() {
		rl.Drops.Add(1)
		return fmt.Errorf("peer rate limit exceeded")
	}

	if tl := rl.typeLimiter(sessionID, msgType); tl != nil && !tl.Allow() {
		rl.Drops.Add(1)
		return fmt.Errorf("message type %s rate limit exceeded", msgType)
	}

	return nil
}

// RemovePeer drops the limiters for a closed session
func (rl *RateLimiter) RemovePeer(sessionID string) {
	rl.peerLimiters.Delete(sessionID)
	for msgType := range rl.config.TypeLimits {
		rl.peerTypeLimiters.Delete(sessionID + ":" + string(msgType))
	}
}

func (rl *RateLimiter) peerLimiter(sessionID string) *rate.Limiter {
	if limiter, ok := rl.peerLimiters.Load(sessionID); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(rl.config.PeerMessagesPerSecond), rl.config.PeerBurst)
	rl.peerLimiters.Store(sessionID, limiter)
	return limiter
}

func (rl *RateLimiter) typeLimiter(sessionID string, msgType protocol.MessageType) *rate.Limiter {
	key := sessionID + ":" + string(msgType)
	if limiter, ok := rl.peerTypeLimiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	typeLimit, ok := rl.config.TypeLimits[msgType]
	if !ok {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(float64(typeLimit.PerMinute)/60.0), typeLimit.Burst)
	rl.peerTypeLimiters.Store(key, limiter)
	return limiter
}
