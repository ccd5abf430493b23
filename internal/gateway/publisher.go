package gateway

import (
	"github.com/mazad-game/mazad/internal/game/events"
)

// LocalPublisher delivers room events straight into the connection manager's
// broadcast channel. It is the single-process mode; multi-instance
// deployments use the stream publisher/consumer pair instead.
type LocalPublisher struct {
	cm *ConnectionManager
}

// NewLocalPublisher wraps the connection manager as an event publisher.
func NewLocalPublisher(cm *ConnectionManager) *LocalPublisher {
	return &LocalPublisher{cm: cm}
}

// Publish implements events.Publisher.
func (p *LocalPublisher) Publish(ev events.Envelope) {
	p.cm.Enqueue(ev)
}
