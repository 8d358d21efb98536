package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"enforcement_scraper/internal/domain"
)

// RabbitMQ publishes progress events to a topic exchange. Routing keys are
// "<routing_key>.<agency>.<data_type>" so consumers can bind per agency.
type RabbitMQ struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	// QueueName, when set, is declared durable and bound to every
	// progress key so events survive while no consumer is attached.
	QueueName string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "rabbitmq"),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	const (
		durable    = true
		autoDelete = false
		internal   = false
		exclusive  = false
		noWait     = false
	)

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if cfg.QueueName == "" {
		return nil
	}

	q, err := ch.QueueDeclare(cfg.QueueName, durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey+".#", cfg.Exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}

// ProgressMessage is the JSON body of every published message.
type ProgressMessage struct {
	Event     domain.ProgressEvent `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
}

func (r *RabbitMQ) routingKeyFor(event domain.ProgressEvent) string {
	return fmt.Sprintf("%s.%s.%s", r.routingKey, event.Agency, event.DataType)
}

// Publish sends event as a transient message. Progress is best effort; a
// missed event can be recovered from the processing log.
func (r *RabbitMQ) Publish(ctx context.Context, event domain.ProgressEvent) error {
	now := time.Now().UTC()
	body, err := json.Marshal(ProgressMessage{Event: event, Timestamp: now})
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Headers:      amqp.Table{"session_id": event.SessionID},
		Timestamp:    now,
		Body:         body,
	}
	key := r.routingKeyFor(event)

	r.mu.Lock()
	err = r.channel.PublishWithContext(ctx, r.exchange, key, false, false, msg)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish progress to %s: %w", key, err)
	}

	r.logger.Debug("published progress", "session_id", event.SessionID, "page", event.Page, "routing_key", key)
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
