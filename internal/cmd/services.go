package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mazad-game/mazad/internal/game"
	"github.com/mazad-game/mazad/internal/game/events"
	"github.com/mazad-game/mazad/internal/gateway"
	"github.com/mazad-game/mazad/internal/questions"
)

// Services holds the wired application components.
type Services struct {
	Bank       *questions.Bank
	Registry   *game.Registry
	Manager    *gateway.ConnectionManager
	Dispatcher *gateway.Dispatcher
	WebSocket  *gateway.WebSocketHandler
	State      *gateway.StateHandler

	streamPub      *gateway.StreamPublisher
	streamConsumer *gateway.StreamConsumer
}

// setupServices wires the question bank, room registry and gateway together.
// With NATS enabled, room events round-trip through JetStream so multiple
// instances stay in sync; otherwise they go straight to the local sockets.
func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Load never fails hard; a bad document leaves the placeholder bank in place.
	bank, _ := questions.Load(getEnv("QUESTIONS_PATH", "questions.json"))

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	svc := &Services{
		Bank:    bank,
		Manager: manager,
	}

	var pub events.Publisher
	if getEnvAsBool("NATS_ENABLED", false) {
		streamCfg := gateway.DefaultStreamConfig()
		streamCfg.URL = getEnv("NATS_URL", streamCfg.URL)

		streamPub, err := gateway.NewStreamPublisher(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("setup stream publisher: %w", err)
		}
		consumer, err := gateway.NewStreamConsumer(streamCfg, manager)
		if err != nil {
			streamPub.Close()
			return nil, fmt.Errorf("setup stream consumer: %w", err)
		}
		if err := consumer.Start(ctx); err != nil {
			streamPub.Close()
			consumer.Stop()
			return nil, fmt.Errorf("start stream consumer: %w", err)
		}

		svc.streamPub = streamPub
		svc.streamConsumer = consumer
		pub = streamPub
	} else {
		pub = gateway.NewLocalPublisher(manager)
	}

	registry := game.NewRegistry(bank, pub, clockwork.NewRealClock(), config.Rules, config.Settings)
	dispatcher := gateway.NewDispatcher(registry, pub, manager)
	manager.SetHandler(dispatcher)

	svc.Registry = registry
	svc.Dispatcher = dispatcher
	svc.WebSocket = gateway.NewWebSocketHandler(manager)
	svc.State = gateway.NewStateHandler(registry)
	return svc, nil
}

// Shutdown stops room timers and closes the stream connections.
func (s *Services) Shutdown() {
	s.Registry.Shutdown()
	if s.streamConsumer != nil {
		s.streamConsumer.Stop()
	}
	if s.streamPub != nil {
		s.streamPub.Close()
	}
}
