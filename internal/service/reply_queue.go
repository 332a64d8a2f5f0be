package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/windfall/storyspeak/internal/client"
	apperrors "github.com/windfall/storyspeak/internal/errors"
)

const (
	// Redis key prefix for roleplay reply results
	roleplayReplyKeyPrefix = "roleplay:reply:"
)

// ErrReplyNotReady is returned when no reply arrived within the wait window.
var ErrReplyNotReady = apperrors.New(apperrors.ErrAITimeout, "AI reply not ready, please try again")

// PartnerReply is the result of one roleplay partner request.
type PartnerReply struct {
	RequestID string `json:"requestId"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplyQueue hands partner replies from the producing goroutine to the
// client waiting for them. A reply is delivered once.
type ReplyQueue interface {
	Push(ctx context.Context, reply PartnerReply) error
	Wait(ctx context.Context, requestID string) (*PartnerReply, error)
}

// RedisReplyQueue uses RPUSH with a TTL on the producer side and BLPOP on
// the consumer side, so any instance can serve the wait.
type RedisReplyQueue struct {
	redis   *client.RedisClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisReplyQueue creates a Redis-backed queue.
func NewRedisReplyQueue(redis *client.RedisClient, ttl, timeout time.Duration) *RedisReplyQueue {
	return &RedisReplyQueue{redis: redis, ttl: ttl, timeout: timeout}
}

func (q *RedisReplyQueue) Push(ctx context.Context, reply PartnerReply) error {
	if err := q.redis.PushWithExpiry(ctx, roleplayReplyKeyPrefix+reply.RequestID, reply, q.ttl); err != nil {
		return apperrors.Storage("failed to push reply", err)
	}
	return nil
}

func (q *RedisReplyQueue) Wait(ctx context.Context, requestID string) (*PartnerReply, error) {
	data, err := q.redis.BLPop(ctx, q.timeout, roleplayReplyKeyPrefix+requestID)
	if errors.Is(err, client.ErrNoReply) {
		return nil, ErrReplyNotReady
	}
	if err != nil {
		return nil, apperrors.Storage("failed to get reply", err)
	}

	var reply PartnerReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, apperrors.InternalWrap("failed to decode reply", err)
	}
	return &reply, nil
}

// MemoryReplyQueue is the single-instance queue used when Redis is not
// configured.
type MemoryReplyQueue struct {
	mu      sync.Mutex
	slots   map[string]chan PartnerReply
	ttl     time.Duration
	timeout time.Duration
}

// NewMemoryReplyQueue creates an in-process queue. Undelivered replies are
// dropped after ttl.
func NewMemoryReplyQueue(ttl, timeout time.Duration) *MemoryReplyQueue {
	return &MemoryReplyQueue{
		slots:   make(map[string]chan PartnerReply),
		ttl:     ttl,
		timeout: timeout,
	}
}

func (q *MemoryReplyQueue) slot(requestID string) chan PartnerReply {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.slots[requestID]
	if !ok {
		ch = make(chan PartnerReply, 1)
		q.slots[requestID] = ch
	}
	return ch
}

func (q *MemoryReplyQueue) drop(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.slots, requestID)
}

func (q *MemoryReplyQueue) dropIfEmpty(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.slots[requestID]; ok && len(ch) == 0 {
		delete(q.slots, requestID)
	}
}

func (q *MemoryReplyQueue) Push(ctx context.Context, reply PartnerReply) error {
	q.mu.Lock()
	ch, ok := q.slots[reply.RequestID]
	if !ok {
		ch = make(chan PartnerReply, 1)
		q.slots[reply.RequestID] = ch
	}
	select {
	case ch <- reply:
		q.mu.Unlock()
	default:
		q.mu.Unlock()
		return apperrors.Conflict("reply already queued")
	}
	if q.ttl > 0 {
		time.AfterFunc(q.ttl, func() { q.drop(reply.RequestID) })
	}
	return nil
}

func (q *MemoryReplyQueue) Wait(ctx context.Context, requestID string) (*PartnerReply, error) {
	ch := q.slot(requestID)
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		q.drop(requestID)
		return &reply, nil
	case <-timer.C:
		q.dropIfEmpty(requestID)
		return nil, ErrReplyNotReady
	case <-ctx.Done():
		q.dropIfEmpty(requestID)
		return nil, ctx.Err()
	}
}
