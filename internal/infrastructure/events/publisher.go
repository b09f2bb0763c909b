package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

const (
	MatchExchange      = "discovery.matches"
	MatchCreatedRoute  = "match.created"
	matchEventType     = "match.created"
	publishContentType = "application/json"
)

// MatchPublisher announces new matches to the messaging and call services.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, match *domain.Match) error
	Close() error
}

type EventPayload struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type matchCreated struct {
	User1ID     int       `json:"user1_id"`
	User2ID     int       `json:"user2_id"`
	MatchedAt   time.Time `json:"matched_at"`
	Icebreakers []string  `json:"icebreakers"`
}

// EncodeMatch builds the message body published for a match.
func EncodeMatch(match *domain.Match) ([]byte, error) {
	icebreakers := match.Icebreakers
	if icebreakers == nil {
		icebreakers = []string{}
	}
	data, err := json.Marshal(matchCreated{
		User1ID:     match.User1ID,
		User2ID:     match.User2ID,
		MatchedAt:   match.MatchedAt.UTC(),
		Icebreakers: icebreakers,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal match: %w", err)
	}
	return json.Marshal(EventPayload{EventType: matchEventType, Data: data})
}

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

func NewAMQPPublisher(url string, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	err = channel.ExchangeDeclare(
		MatchExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", MatchExchange, err)
	}

	logger.Info("rabbitmq exchange declared", zap.String("exchange", MatchExchange))
	return &AMQPPublisher{conn: conn, logger: logger}, nil
}

func (p *AMQPPublisher) PublishMatch(ctx context.Context, match *domain.Match) error {
	body, err := EncodeMatch(match)
	if err != nil {
		return err
	}

	channel, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	err = channel.PublishWithContext(ctx,
		MatchExchange,
		MatchCreatedRoute,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  publishContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    match.MatchedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish match: %w", err)
	}

	p.logger.Debug("match published",
		zap.Int("user1_id", match.User1ID),
		zap.Int("user2_id", match.User2ID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct {
	logger *zap.Logger
}

func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) PublishMatch(_ context.Context, match *domain.Match) error {
	p.logger.Debug("match not published, no broker configured",
		zap.Int("user1_id", match.User1ID),
		zap.Int("user2_id", match.User2ID))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
