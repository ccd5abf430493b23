package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game/events"
)

// StreamConsumer reads room events off JetStream and hands them to the
// connection manager. Each gateway instance runs its own ephemeral consumer
// so every instance sees every event and serves its local sockets.
type StreamConsumer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	cfg     StreamConfig
	cm      *ConnectionManager
	consume jetstream.ConsumeContext
}

// NewStreamConsumer connects to NATS and prepares a consumer over the
// event stream.
func NewStreamConsumer(cfg StreamConfig, cm *ConnectionManager) (*StreamConsumer, error) {
	nc, js, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}
	return &StreamConsumer{nc: nc, js: js, cfg: cfg, cm: cm}, nil
}

// Start creates the ephemeral consumer and begins delivering events to the
// connection manager. Delivery starts at the newest message; a gateway that
// restarts has no sockets that care about history.
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("look up stream %s: %w", c.cfg.StreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.cfg.SubjectPrefix + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.consume = cc

	log.Info().Str("stream", c.cfg.StreamName).Msg("stream consumer started")
	return nil
}

func (c *StreamConsumer) handleMessage(msg jetstream.Msg) {
	var ev events.Envelope
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to unmarshal envelope")
		_ = msg.Ack()
		return
	}

	c.cm.Enqueue(ev)
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to ack message")
	}
}

// Stop drains the consumer and closes the connection.
func (c *StreamConsumer) Stop() {
	if c.consume != nil {
		c.consume.Stop()
	}
	if c.nc != nil {
		c.nc.Close()
	}
}
