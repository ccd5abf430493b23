package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game/events"
)

// StreamConfig holds the JetStream settings shared by the publisher and the
// consumer. One subject per room keeps per-room ordering intact.
type StreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultStreamConfig returns default JetStream settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "MAZAD_EVENTS",
		SubjectPrefix: "mazad.rooms",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

func connectNATS(cfg StreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// StreamPublisher publishes room events to JetStream so any number of
// gateway instances can fan them out.
type StreamPublisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg StreamConfig
}

// NewStreamPublisher connects to NATS and ensures the event stream exists.
func NewStreamPublisher(ctx context.Context, cfg StreamConfig) (*StreamPublisher, error) {
	nc, js, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().Str("stream", cfg.StreamName).Str("url", cfg.URL).Msg("stream publisher connected")
	return &StreamPublisher{nc: nc, js: js, cfg: cfg}, nil
}

// Publish implements events.Publisher. Failures are logged, not propagated;
// one room's publish error must not disturb the caller's state transition.
func (p *StreamPublisher) Publish(ev events.Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("room_id", ev.RoomID).Msg("failed to marshal envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subject := p.cfg.SubjectPrefix + "." + subjectToken(ev.RoomID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Str("event_type", string(ev.Type)).Msg("failed to publish envelope")
	}
}

// Close shuts the NATS connection down.
func (p *StreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// subjectToken makes a room id safe to use as a NATS subject token.
func subjectToken(roomID string) string {
	if roomID == "" {
		return "_none"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '-'
		}
		return r
	}, roomID)
}
