package events

import (
	"fmt"

	"github.com/nerrad567/labpanel-core/internal/infrastructure/mqtt"
)

// Subscriber is the part of the MQTT client the bridge needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Bridge feeds instrument events received over MQTT into a Router.
type Bridge struct {
	router *Router
	sub    Subscriber
	qos    byte
	logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - router: destination for decoded events
//   - sub: MQTT client (or a mock in tests)
//   - qos: subscription QoS
//   - logger: may be nil
func NewBridge(router *Router, sub Subscriber, qos byte, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{router: router, sub: sub, qos: qos, logger: logger}
}

// Start subscribes to every instrument event topic.
func (b *Bridge) Start() error {
	topic := mqtt.Topics{}.AllInstrumentEvents()
	if err := b.sub.Subscribe(topic, b.qos, b.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("instrument event bridge started", "topic", topic)
	return nil
}

// Stop removes the subscription.
func (b *Bridge) Stop() error {
	topic := mqtt.Topics{}.AllInstrumentEvents()
	if err := b.sub.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

// Handle is the MQTT message handler. The event type comes from the topic;
// the payload must name the same instrument as the topic.
//
// Errors are returned to the MQTT client, which logs them. Nothing is
// delivered for a rejected message.
func (b *Bridge) Handle(topic string, payload []byte) error {
	instrumentID, rawType, ok := mqtt.ParseInstrumentEvent(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	e, err := Decode(Type(rawType), payload)
	if err != nil {
		return err
	}
	if e.Instrument() != instrumentID {
		return fmt.Errorf("%w: topic %s, payload %s", ErrInstrumentMismatch, instrumentID, e.Instrument())
	}

	b.logger.Debug("instrument event received", "type", rawType, "instrument_id", instrumentID)
	b.router.Publish(e)
	return nil
}
