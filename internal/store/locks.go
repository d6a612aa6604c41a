package store

import (
	"context"
	"time"

	"llm-duet/backend/pkg/logger"
	"llm-duet/backend/shared/redis"

	"github.com/google/uuid"
)

// ConversationLocker serializes stream runs per conversation. The
// original design allowed two concurrent runs against one conversation
// to race last-write-wins; a redis SETNX lock rejects the second run
// instead.
type ConversationLocker struct {
	redis *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewConversationLocker creates a locker. The TTL bounds how long a
// crashed run can hold a conversation; it should exceed the longest
// plausible run.
func NewConversationLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *ConversationLocker {
	return &ConversationLocker{redis: client, ttl: ttl, log: log}
}

// Acquire claims the conversation for one run. It returns a release
// function and whether the claim succeeded. Redis being unreachable
// degrades to no locking rather than blocking all streaming.
func (l *ConversationLocker) Acquire(ctx context.Context, convID string) (release func(), ok bool) {
	if l == nil || l.redis == nil {
		return func() {}, true
	}

	key := "duet:stream-lock:" + convID
	token := uuid.NewString()

	claimed, err := l.redis.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		l.log.Warn("stream lock unavailable, continuing without it",
			"conversation_id", convID,
			"error", err.Error(),
		)
		return func() {}, true
	}
	if !claimed {
		return func() {}, false
	}

	return func() {
		// Release must not inherit a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.redis.Del(releaseCtx, key); err != nil {
			l.log.Warn("failed to release stream lock", "conversation_id", convID, "error", err.Error())
		}
	}, true
}
