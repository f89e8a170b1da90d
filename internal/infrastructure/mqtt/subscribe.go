package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure = 0x80

// Subscribe registers interest in topic. Messages are delivered to the
// session's OnMessage handler in arrival order.
//
// Subscriptions do not survive a reconnect; the OnConnect handler is
// expected to subscribe again.
//
// Parameters:
//   - topic: The topic to subscribe to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if s.isClosed() {
		return ErrClosed
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := s.client.Subscribe(topic, defaultQoS, s.onMessage)
	if err := s.waitToken(token, ErrSubscribeFailed); err != nil {
		return err
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if rc, found := st.Result()[topic]; found && rc == subackFailure {
			return fmt.Errorf("%w: %s rejected by broker", ErrSubscribeFailed, topic)
		}
	}

	s.logger.Debug("subscribed", "topic", topic)
	return nil
}

// onMessage queues an inbound message. It runs on paho's router goroutine
// and must not block.
func (s *Session) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.post(event{kind: eventMessage, topic: msg.Topic(), payload: msg.Payload()})
}
