// Package events fans committed engine changes out over redis pub/sub so that the
// notification scheduler and reporting jobs can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "engine.support."

type Type string

const (
	TypeSupportSuggested    Type = "suggested"
	TypeSupportTransitioned Type = "transitioned"
	TypeSupportSuperseded   Type = "superseded"
	TypeProgressUpdated     Type = "progress_updated"
	TypeAssessmentFinished  Type = "assessment_finished"
	TypeShareChanged        Type = "share_changed"
)

// Event is the JSON payload published for every committed change.
type Event struct {
	Type               Type      `json:"type"`
	InnovationID       string    `json:"innovation_id"`
	OrganisationUnitID string    `json:"organisation_unit_id,omitempty"`
	OrganisationID     string    `json:"organisation_id,omitempty"`
	SupportID          string    `json:"support_id,omitempty"`
	MajorAssessmentID  string    `json:"major_assessment_id,omitempty"`
	FromStatus         string    `json:"from_status,omitempty"`
	ToStatus           string    `json:"to_status,omitempty"`
	CloseReason        string    `json:"close_reason,omitempty"`
	Operation          string    `json:"operation,omitempty"`
	ActorRoleID        string    `json:"actor_role_id,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Channel returns the redis channel events of type t are published on.
func Channel(t Type) string {
	return channelPrefix + string(t)
}

type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Subscribe listens on the channels of the given types, or on every engine
// channel when none are given. The subscription is confirmed before returning.
func (p *RedisPublisher) Subscribe(ctx context.Context, types ...Type) (*redis.PubSub, error) {
	var sub *redis.PubSub
	if len(types) == 0 {
		sub = p.client.PSubscribe(ctx, channelPrefix+"*")
	} else {
		channels := make([]string, 0, len(types))
		for _, t := range types {
			channels = append(channels, Channel(t))
		}
		sub = p.client.Subscribe(ctx, channels...)
	}
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// Decode parses a message received from a subscription.
func Decode(msg *redis.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return Event{}, fmt.Errorf("decode event on %s: %w", msg.Channel, err)
	}
	return event, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
