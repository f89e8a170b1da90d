package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// A full devices.control batch stays far below this.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends payload to topic at QoS 1 (not retained) and waits for the
// broker's acknowledgment.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "hobby/control/devices/cmd")
//   - payload: The message payload (JSON, max 1MB)
//
// Returns:
//   - error: nil on success, ErrNotConnected while the connection is down,
//     or a wrapped ErrPublishFailed
func (s *Session) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if s.isClosed() {
		return ErrClosed
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	return s.waitToken(s.client.Publish(topic, defaultQoS, false, payload), ErrPublishFailed)
}
