package protocol

import "fmt"

// TopicPrefix is the base of every Hobby API topic.
const TopicPrefix = "hobby/control/devices"

// Topic names of the three logical channels.
const (
	// TopicCommand carries client requests (devices.list, devices.control).
	TopicCommand = TopicPrefix + "/cmd"

	// TopicEvent carries controller pushes (devices.status).
	TopicEvent = TopicPrefix + "/evt"

	// TopicResponse carries controller replies to commands.
	TopicResponse = TopicPrefix + "/rsp"
)

// Topics provides the Hobby API topic set.
//
//	for _, t := range (protocol.Topics{}).Subscriptions() {
//	    session.Subscribe(t)
//	}
type Topics struct{}

// Subscriptions returns the topics a client subscribes to after connecting.
func (Topics) Subscriptions() []string {
	return []string{TopicEvent, TopicResponse}
}

// Channel returns the short channel name of topic ("cmd", "evt", "rsp"),
// used as a metrics label.
func Channel(topic string) string {
	switch topic {
	case TopicCommand:
		return "cmd"
	case TopicEvent:
		return "evt"
	case TopicResponse:
		return "rsp"
	default:
		return fmt.Sprintf("other:%s", topic)
	}
}
