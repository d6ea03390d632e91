package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/domain"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "cinelog:reviews"

// ChangeEvent is the JSON payload published for every ledger change.
type ChangeEvent struct {
	Type     string    `json:"type"`
	ReviewID int64     `json:"review_id,omitempty"`
	UserID   int64     `json:"user_id,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher is the subset of *redis.Client used by RedisPublisher.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards ledger changes to a Redis channel so other running
// instances can refresh their views.
type RedisPublisher struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client Publisher, channel string, logger zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "redis-publisher").Str("channel", channel).Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnAdded implements Listener.
func (p *RedisPublisher) OnAdded(review *domain.Review) {
	p.publish(ChangeEvent{Type: "added", ReviewID: review.ID, UserID: review.UserID})
}

// OnUpdated implements Listener.
func (p *RedisPublisher) OnUpdated(review *domain.Review) {
	p.publish(ChangeEvent{Type: "updated", ReviewID: review.ID, UserID: review.UserID})
}

// OnDeleted implements Listener.
func (p *RedisPublisher) OnDeleted(id int64) {
	p.publish(ChangeEvent{Type: "deleted", ReviewID: id})
}

// OnBulkDeleted implements Listener.
func (p *RedisPublisher) OnBulkDeleted(count int) {
	p.publish(ChangeEvent{Type: "bulk_deleted", Count: count})
}

// OnCleared implements Listener.
func (p *RedisPublisher) OnCleared() {
	p.publish(ChangeEvent{Type: "cleared"})
}

func (p *RedisPublisher) publish(ev ChangeEvent) {
	ev.At = p.now()
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to encode change event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn().Err(err).Str("type", ev.Type).Msg("failed to publish change event")
	}
}

var _ Listener = (*RedisPublisher)(nil)
