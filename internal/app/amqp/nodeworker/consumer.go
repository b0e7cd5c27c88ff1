package nodeworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"search-analytics-node/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrHandlerMissing = errors.New("nodeworker handler missing")

type Handler interface {
	Handle(ctx context.Context, msg NodeExecutionRequestedEnvelope) error
}

type Consumer struct {
	cfg     *config.Config
	channel *amqp.Channel
	handler Handler
	logger  *zap.SugaredLogger

	consumerTag string
}

type NewConsumerParams struct {
	fx.In

	Config  *config.Config
	Channel *amqp.Channel `optional:"true"`
	Handler Handler       `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewConsumer(p NewConsumerParams) *Consumer {
	h := p.Handler
	if h == nil {
		h = missingHandler{}
	}

	return &Consumer{
		cfg:         p.Config,
		channel:     p.Channel,
		handler:     h,
		logger:      p.Logger,
		consumerTag: "nodeworker",
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg == nil || strings.TrimSpace(c.cfg.RabbitMQ.URL) == "" || c.channel == nil {
		c.logger.Infow("nodeworker_disabled", "reason", "missing rabbitmq config or channel")
		return nil
	}

	if c.cfg.RabbitMQ.DeclareTopology {
		if err := DeclareTopology(c.channel, c.cfg.RabbitMQ, c.logger); err != nil {
			return err
		}
	}

	prefetch := c.cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.cfg.RabbitMQ.Queue,
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Infow("nodeworker_started",
		"queue", c.cfg.RabbitMQ.Queue,
		"prefetch", prefetch,
	)

	// The fx start context ends once startup completes; deliveries run until
	// the channel is canceled in Stop.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		for d := range deliveries {
			c.handleDelivery(runCtx, d)
		}
		c.logger.Infow("nodeworker_deliveries_closed")
	}()

	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Cancel(c.consumerTag, false)
}

// DeclareTopology declares the exchange, the work queue and its dead-letter pair.
func DeclareTopology(ch *amqp.Channel, cfg config.RabbitMQConfig, logger *zap.SugaredLogger) error {
	ex, queueName, routingKey := topologyNames(cfg)
	dlx := ex + ".dlx"
	dlq := queueName + ".dlq"

	if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %q: %w", ex, err)
	}
	if err := ch.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlx exchange declare %q: %w", dlx, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": dlx,
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare %q: %w", queueName, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq declare %q: %w", dlq, err)
	}

	if err := ch.QueueBind(queueName, routingKey, ex, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue bind queue=%q key=%q ex=%q: %w", queueName, routingKey, ex, err)
	}
	if err := ch.QueueBind(dlq, routingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq bind queue=%q key=%q ex=%q: %w", dlq, routingKey, dlx, err)
	}

	logger.Infow("nodeworker_topology_declared",
		"exchange", ex,
		"queue", queueName,
		"routing_key", routingKey,
		"dlx", dlx,
		"dlq", dlq,
	)
	return nil
}

func topologyNames(cfg config.RabbitMQConfig) (exchange, queue, routingKey string) {
	exchange = strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "events"
	}
	queue = strings.TrimSpace(cfg.Queue)
	if queue == "" {
		queue = "node.execution.requested.v1"
	}
	routingKey = strings.TrimSpace(cfg.RoutingKey)
	if routingKey == "" {
		routingKey = "node.execution.requested.v1"
	}
	return exchange, queue, routingKey
}

// RoutingTarget returns the exchange and routing key publishers should use.
func RoutingTarget(cfg config.RabbitMQConfig) (exchange, routingKey string) {
	exchange, _, routingKey = topologyNames(cfg)
	return exchange, routingKey
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	eventID := strings.TrimSpace(d.MessageId)
	if eventID == "" {
		eventID = strings.TrimSpace(d.CorrelationId)
	}

	var msg NodeExecutionRequestedEnvelope
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Errorw("nodeworker_invalid_json",
			"err", err,
			"message_id", eventID,
		)
		_ = d.Reject(false)
		return
	}

	if strings.TrimSpace(msg.EventID) == "" && eventID != "" {
		msg.EventID = eventID
	}

	if strings.TrimSpace(msg.EventID) == "" {
		c.logger.Errorw("nodeworker_missing_event_id",
			"message_id", eventID,
			"event_name", msg.EventName,
		)
		_ = d.Reject(false)
		return
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Errorw("nodeworker_handle_failed",
			"err", err,
			"event_id", msg.EventID,
			"run_id", msg.Data.RunID,
		)
		_ = d.Reject(false)
		return
	}

	_ = d.Ack(false)
}

type missingHandler struct{}

func (missingHandler) Handle(ctx context.Context, msg NodeExecutionRequestedEnvelope) error {
	return ErrHandlerMissing
}
